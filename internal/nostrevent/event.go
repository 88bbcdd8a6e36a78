// Package nostrevent defines the signed wire event shape the relay layer
// delivers and the tag-extraction helpers the classifier and stores build
// on. It is a thin wrapper around github.com/nbd-wtf/go-nostr's Event type,
// adding the tag vocabulary this client recognizes (e, a, p, q, delegation,
// llm-runtime, llm-cost, llm-tokens-in, llm-tokens-out, branch, status,
// activity) without inventing a parallel wire format.
package nostrevent

import (
	nostr "github.com/nbd-wtf/go-nostr"
)

// Kind is the set of event kinds this client recognizes. This client's
// relay protocol reuses standard NIP-01 kinds where one already fits (metadata,
// deletion) and reserves an application-specific range otherwise.
type Kind int

const (
	KindProfile  Kind = 0 // NIP-01 metadata, replaceable
	KindDeletion Kind = 5 // NIP-09 deletion marker

	KindThread         Kind = 11000 // conversation root, no reply-to tag
	KindMessage        Kind = 11001 // reply within a conversation
	KindAsk            Kind = 11002 // ask/answer payload attached to a message
	KindReport         Kind = 11003
	KindLesson         Kind = 11004

	KindProject       Kind = 31933 // parameterized replaceable, addressed by a-tag
	KindProjectStatus Kind = 31934 // ephemeral-ish status snapshot, also a-tag addressed
	KindNudge         Kind = 31925 // parameterized replaceable
)

// Event is a decoded, signature-verified wire event. It embeds the go-nostr
// Event so callers can use its JSON (un)marshaling and signature-checking
// machinery directly, while this package supplies the tag lookups the
// classifier needs.
type Event struct {
	nostr.Event
}

// Tag is a single ordered tag, e.g. ["e", "<event-id>"].
type Tag = nostr.Tag

// FromNostr wraps an already-decoded go-nostr event.
func FromNostr(e nostr.Event) Event {
	return Event{Event: e}
}

// firstTagValue returns the first value (element index 1) of the first tag
// whose name (element index 0) matches, and whether one was found.
func (e Event) firstTagValue(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// allTagValues returns every value (element index 1) of tags matching name,
// in tag order.
func (e Event) allTagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1])
		}
	}
	return out
}

// ReplyTo returns the parent message event id from an ["e", id] tag.
func (e Event) ReplyTo() (string, bool) {
	return e.firstTagValue("e")
}

// ProjectATag returns the project coordinate from an ["a", coord] tag.
func (e Event) ProjectATag() (string, bool) {
	return e.firstTagValue("a")
}

// Mentions returns every participant pubkey from ["p", pubkey] tags.
func (e Event) Mentions() []string {
	return e.allTagValues("p")
}

// QuoteParent returns the parent→child delegation target from a ["q", id]
// tag: the parent conversation is quoting (dispatching to) the child.
func (e Event) QuoteParent() (string, bool) {
	return e.firstTagValue("q")
}

// DelegationParent returns the child→parent evidence from a
// ["delegation", id] tag: the conversation carrying this tag is delegating
// to (is a child of) id.
func (e Event) DelegationParent() (string, bool) {
	return e.firstTagValue("delegation")
}

// RuntimeMillis returns the ["llm-runtime", ms] tag value parsed as an
// integer, and whether the tag was present and well-formed.
func (e Event) RuntimeMillis() (uint64, bool) {
	return parseUintTag(e, "llm-runtime")
}

// CostUSD returns the raw ["llm-cost", usd] tag string (kept as a string to
// avoid float precision loss; callers parse on demand) and whether present.
func (e Event) CostUSD() (string, bool) {
	return e.firstTagValue("llm-cost")
}

// TokensIn returns the ["llm-tokens-in", n] tag value.
func (e Event) TokensIn() (uint64, bool) {
	return parseUintTag(e, "llm-tokens-in")
}

// TokensOut returns the ["llm-tokens-out", n] tag value.
func (e Event) TokensOut() (uint64, bool) {
	return parseUintTag(e, "llm-tokens-out")
}

// Branch returns the ["branch", name] tag value.
func (e Event) Branch() (string, bool) {
	return e.firstTagValue("branch")
}

// Status returns the ["status", label] tag value.
func (e Event) Status() (string, bool) {
	return e.firstTagValue("status")
}

// Activity returns the ["activity", label] tag value.
func (e Event) Activity() (string, bool) {
	return e.firstTagValue("activity")
}

// AskMarker returns the ["ask", payload] tag value that marks a message as
// carrying an ask/answer payload rather than plain content.
func (e Event) AskMarker() (string, bool) {
	return e.firstTagValue("ask")
}

func parseUintTag(e Event, name string) (uint64, bool) {
	raw, ok := e.firstTagValue(name)
	if !ok {
		return 0, false
	}
	var n uint64
	var parsed int
	for i, c := range raw {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
		parsed = i + 1
	}
	if parsed == 0 {
		return 0, false
	}
	return n, true
}
