package nostrevent

import (
	"testing"

	nostr "github.com/nbd-wtf/go-nostr"
)

func newEvent(kind int, tags nostr.Tags) Event {
	return FromNostr(nostr.Event{
		Kind: kind,
		Tags: tags,
	})
}

func TestReplyTo(t *testing.T) {
	e := newEvent(int(KindMessage), nostr.Tags{{"e", "parent-msg"}})
	id, ok := e.ReplyTo()
	if !ok || id != "parent-msg" {
		t.Fatalf("ReplyTo() = %q, %v", id, ok)
	}

	e2 := newEvent(int(KindThread), nil)
	if _, ok := e2.ReplyTo(); ok {
		t.Fatal("expected no reply-to on thread root")
	}
}

func TestProjectATag(t *testing.T) {
	e := newEvent(int(KindThread), nostr.Tags{{"a", "31933:abc:proj1"}})
	tag, ok := e.ProjectATag()
	if !ok || tag != "31933:abc:proj1" {
		t.Fatalf("ProjectATag() = %q, %v", tag, ok)
	}
}

func TestMentions(t *testing.T) {
	e := newEvent(int(KindMessage), nostr.Tags{
		{"p", "pk1"},
		{"e", "reply"},
		{"p", "pk2"},
	})
	got := e.Mentions()
	if len(got) != 2 || got[0] != "pk1" || got[1] != "pk2" {
		t.Fatalf("Mentions() = %v", got)
	}
}

func TestQuoteAndDelegation(t *testing.T) {
	e := newEvent(int(KindThread), nostr.Tags{{"q", "child-1"}})
	id, ok := e.QuoteParent()
	if !ok || id != "child-1" {
		t.Fatalf("QuoteParent() = %q, %v", id, ok)
	}

	e2 := newEvent(int(KindThread), nostr.Tags{{"delegation", "parent-1"}})
	pid, ok := e2.DelegationParent()
	if !ok || pid != "parent-1" {
		t.Fatalf("DelegationParent() = %q, %v", pid, ok)
	}
}

func TestRuntimeMillis(t *testing.T) {
	e := newEvent(int(KindMessage), nostr.Tags{{"llm-runtime", "12345"}})
	ms, ok := e.RuntimeMillis()
	if !ok || ms != 12345 {
		t.Fatalf("RuntimeMillis() = %d, %v", ms, ok)
	}

	bad := newEvent(int(KindMessage), nostr.Tags{{"llm-runtime", "not-a-number"}})
	if _, ok := bad.RuntimeMillis(); ok {
		t.Fatal("expected RuntimeMillis() to reject non-numeric tag value")
	}

	missing := newEvent(int(KindMessage), nil)
	if _, ok := missing.RuntimeMillis(); ok {
		t.Fatal("expected RuntimeMillis() to report absent tag")
	}
}

func TestTokensAndCost(t *testing.T) {
	e := newEvent(int(KindMessage), nostr.Tags{
		{"llm-tokens-in", "100"},
		{"llm-tokens-out", "250"},
		{"llm-cost", "0.0042"},
	})
	in, ok := e.TokensIn()
	if !ok || in != 100 {
		t.Fatalf("TokensIn() = %d, %v", in, ok)
	}
	out, ok := e.TokensOut()
	if !ok || out != 250 {
		t.Fatalf("TokensOut() = %d, %v", out, ok)
	}
	cost, ok := e.CostUSD()
	if !ok || cost != "0.0042" {
		t.Fatalf("CostUSD() = %q, %v", cost, ok)
	}
}

func TestOptionalMetadataTags(t *testing.T) {
	e := newEvent(int(KindMessage), nostr.Tags{
		{"branch", "main"},
		{"status", "active"},
		{"activity", "reviewing"},
	})
	if v, ok := e.Branch(); !ok || v != "main" {
		t.Fatalf("Branch() = %q, %v", v, ok)
	}
	if v, ok := e.Status(); !ok || v != "active" {
		t.Fatalf("Status() = %q, %v", v, ok)
	}
	if v, ok := e.Activity(); !ok || v != "reviewing" {
		t.Fatalf("Activity() = %q, %v", v, ok)
	}
}
