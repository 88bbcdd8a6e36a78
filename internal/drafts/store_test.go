package drafts

import (
	"testing"
	"time"

	"github.com/relaycore/relaycore/internal/common/logger"
)

type memPersister struct {
	saved File
	fail  bool
}

func (m *memPersister) Save(f File) error {
	if m.fail {
		return errPersist
	}
	m.saved = f
	return nil
}

func (m *memPersister) Load() (File, error) {
	return File{Version: CurrentFileVersion, Drafts: map[string]ChatDraft{}}, nil
}

var errPersist = &persistError{"simulated disk failure"}

type persistError struct{ msg string }

func (e *persistError) Error() string { return e.msg }

func newTestStore(p Persister) *Store {
	s := New(p, logger.Default())
	s.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestUpdateTypingCreatesDraft(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("c1", "p1", "hello", "", false, "")

	d, ok := s.Get("c1")
	if !ok || d.Content != "hello" || d.State != Typing {
		t.Fatalf("expected Typing draft with content, got %+v ok=%v", d, ok)
	}
}

func TestFullSendLifecycle(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("c1", "p1", "hello", "", false, "")

	d, ok := s.BeginSend("c1")
	if !ok || d.State != PendingSend {
		t.Fatalf("expected PendingSend, got %+v ok=%v", d, ok)
	}

	d, ok = s.ConfirmSendAccepted("c1", "pub1", "conv1")
	if !ok || d.State != SentAwaiting || d.PublishID != "pub1" {
		t.Fatalf("expected SentAwaiting with publish id, got %+v ok=%v", d, ok)
	}

	d, ok = s.MarkPublishConfirmed("pub1")
	if !ok || d.State != Confirmed {
		t.Fatalf("expected Confirmed, got %+v ok=%v", d, ok)
	}

	pending := s.PendingSnapshots()
	if len(pending) != 0 {
		t.Fatalf("expected no pending snapshots after confirmation, got %d", len(pending))
	}
}

func TestFailSendReturnsToTyping(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("c1", "p1", "hello", "", false, "")
	s.BeginSend("c1")
	s.FailSend("c1", "network error")

	d, ok := s.Get("c1")
	if !ok || d.State != Typing || d.Content != "hello" || d.LastError != "network error" {
		t.Fatalf("expected Typing with content preserved and error set, got %+v ok=%v", d, ok)
	}
}

func TestBeginSendRejectsDoubleSend(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("c1", "p1", "hello", "", false, "")
	s.BeginSend("c1")
	if _, ok := s.BeginSend("c1"); ok {
		t.Fatal("expected second BeginSend to fail while already PendingSend")
	}
}

func TestClearContentPreservesAgentSelection(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("c1", "p1", "hello", "agentX", true, "main")
	s.ClearContent("c1")

	d, ok := s.Get("c1")
	if !ok || d.Content != "" || d.AgentPubkey != "agentX" || !d.HasAgent {
		t.Fatalf("expected content cleared but agent preserved, got %+v", d)
	}
}

func TestMigratePreConversationDraft(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("p1/sess1", "p1", "hello", "", false, "")
	s.MigratePreConversationDraft("p1/sess1", "conv-real-1")

	if _, ok := s.Get("p1/sess1"); ok {
		t.Fatal("expected old key to be gone after migration")
	}
	d, ok := s.Get("conv-real-1")
	if !ok || d.ConversationID != "conv-real-1" {
		t.Fatalf("expected draft migrated to new key, got %+v ok=%v", d, ok)
	}
}

func TestCleanupConfirmedPublishesRespectsGracePeriod(t *testing.T) {
	s := newTestStore(nil)
	s.UpdateTyping("c1", "p1", "hello", "", false, "")
	s.BeginSend("c1")
	s.ConfirmSendAccepted("c1", "pub1", "c1")
	s.MarkPublishConfirmed("pub1")

	if n := s.CleanupConfirmedPublishes(); n != 0 {
		t.Fatalf("expected 0 archived immediately after confirmation, got %d", n)
	}

	s.now = func() time.Time { return time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC) }
	if n := s.CleanupConfirmedPublishes(); n != 1 {
		t.Fatalf("expected 1 archived after grace period, got %d", n)
	}
	if _, ok := s.Get("c1"); ok {
		t.Fatal("expected draft removed from live map after archival")
	}
	if len(s.Archived()) != 1 {
		t.Fatal("expected archived draft recorded")
	}
}

func TestDraftStorageFailureRecordsLastError(t *testing.T) {
	p := &memPersister{fail: true}
	s := newTestStore(p)
	s.UpdateTyping("c1", "p1", "hello", "", false, "")

	if s.LastError() == "" {
		t.Fatal("expected a last-error string after a simulated flush failure")
	}
	// In-memory state must still be intact despite the storage failure.
	d, ok := s.Get("c1")
	if !ok || d.Content != "hello" {
		t.Fatal("expected in-memory draft to survive a storage failure")
	}
}
