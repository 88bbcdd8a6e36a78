// Package drafts implements durable local storage of in-progress user
// input through the Typing -> PendingSend -> SentAwaiting -> Confirmed
// state machine, plus a versioned publish-snapshot ledger for
// crash-restart reconciliation. Writes happen on every keystroke;
// Confirmed drafts are archived, never deleted synchronously, to bound
// the live working set.
package drafts

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// Store holds the live draft map in memory and delegates durability to a
// Persister (a JSON file with a rotated sidecar backup).
type Store struct {
	mu sync.Mutex

	drafts    map[string]*ChatDraft
	versioned []ChatDraft
	archived  []ChatDraft
	snapshots map[string]*PublishSnapshot // publish id -> snapshot

	persister Persister
	logger    *logger.Logger
	now       func() time.Time

	lastError string
}

// Persister durably writes and loads the draft file. A nil Persister
// degrades the store to memory-only (used by tests).
type Persister interface {
	Save(File) error
	Load() (File, error)
}

// New builds a Store, loading any existing draft file through persister.
// A load failure is recorded as a last-error and the store starts empty —
// a draft-storage failure must never block the UI from starting, only
// surface a last-error string.
func New(persister Persister, log *logger.Logger) *Store {
	s := &Store{
		drafts:    make(map[string]*ChatDraft),
		snapshots: make(map[string]*PublishSnapshot),
		persister: persister,
		logger:    log.WithFields(zap.String("component", "drafts")),
		now:       time.Now,
	}

	if persister != nil {
		file, err := persister.Load()
		if err != nil {
			s.lastError = err.Error()
			s.logger.Warn("failed to load draft file, starting empty", zap.Error(err))
		} else {
			s.hydrate(file)
		}
	}

	return s
}

func (s *Store) hydrate(file File) {
	for key, d := range file.Drafts {
		cp := d
		s.drafts[key] = &cp
	}
	s.versioned = append([]ChatDraft(nil), file.Versioned...)
	s.archived = append([]ChatDraft(nil), file.Archived...)
	for _, snap := range file.PendingPublishes {
		cp := snap
		s.snapshots[snap.PublishID] = &cp
	}
}

// LastError returns the most recent persistence failure message, if any,
// for the UI to surface.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// UpdateTyping records keystroke content for key, creating the draft in
// Typing state if it doesn't exist, or resetting a failed send back to
// Typing with the new content. Writes through to durable storage
// immediately: every keystroke is persisted.
func (s *Store) UpdateTyping(key, projectATag, content, agentPubkey string, hasAgent bool, branch string) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok {
		d = &ChatDraft{Key: key, ProjectATag: projectATag}
		s.drafts[key] = d
	}
	d.Content = content
	d.AgentPubkey = agentPubkey
	d.HasAgent = hasAgent
	d.Branch = branch
	d.State = Typing
	d.UpdatedAt = s.now()
	s.mu.Unlock()

	s.flush()
}

// ClearContent blanks a draft's content while preserving its agent/branch
// selection — distinct from Delete, which removes the draft entirely.
func (s *Store) ClearContent(key string) {
	s.mu.Lock()
	if d, ok := s.drafts[key]; ok {
		d.Content = ""
		d.State = Typing
		d.UpdatedAt = s.now()
	}
	s.mu.Unlock()

	s.flush()
}

// Delete removes a draft entirely, agent/branch selection included.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.drafts, key)
	s.mu.Unlock()

	s.flush()
}

// Get returns the current draft for key, if any.
func (s *Store) Get(key string) (ChatDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[key]
	if !ok {
		return ChatDraft{}, false
	}
	return *d, true
}

// BeginSend transitions a draft from Typing to PendingSend when the user
// presses send, recording a versioned snapshot of the content at send time
// so a later undo/history view can recover it. Returns false if no draft
// exists for key or it is not in Typing state (a double-send).
func (s *Store) BeginSend(key string) (ChatDraft, bool) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok || d.State != Typing {
		s.mu.Unlock()
		return ChatDraft{}, false
	}
	d.State = PendingSend
	d.UpdatedAt = s.now()
	s.versioned = append(s.versioned, *d)
	cp := *d
	s.mu.Unlock()

	s.flush()
	return cp, true
}

// ConfirmSendAccepted transitions PendingSend -> SentAwaiting once the wire
// send succeeds, assigning publishID and recording a PublishSnapshot of the
// exact content sent for crash-restart reconciliation.
func (s *Store) ConfirmSendAccepted(key, publishID, conversationID string) (ChatDraft, bool) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok || d.State != PendingSend {
		s.mu.Unlock()
		return ChatDraft{}, false
	}
	d.State = SentAwaiting
	d.PublishID = publishID
	d.ConversationID = conversationID
	d.UpdatedAt = s.now()

	s.snapshots[publishID] = &PublishSnapshot{
		PublishID:      publishID,
		ConversationID: conversationID,
		ProjectATag:    d.ProjectATag,
		Content:        d.Content,
		SentAt:         d.UpdatedAt,
	}
	cp := *d
	s.mu.Unlock()

	s.flush()
	return cp, true
}

// FailSend transitions PendingSend or SentAwaiting back to Typing when the
// wire send fails. The content is preserved so the user can retry or edit.
func (s *Store) FailSend(key, reason string) {
	s.mu.Lock()
	d, ok := s.drafts[key]
	if !ok || (d.State != PendingSend && d.State != SentAwaiting) {
		s.mu.Unlock()
		return
	}
	if d.PublishID != "" {
		delete(s.snapshots, d.PublishID)
	}
	d.State = Typing
	d.PublishID = ""
	d.LastError = reason
	d.UpdatedAt = s.now()
	s.mu.Unlock()

	s.flush()
}

// MarkPublishConfirmed transitions SentAwaiting -> Confirmed once the
// relay echoes the signed event back, matched by publishID.
func (s *Store) MarkPublishConfirmed(publishID string) (ChatDraft, bool) {
	s.mu.Lock()
	var found *ChatDraft
	for _, d := range s.drafts {
		if d.PublishID == publishID && d.State == SentAwaiting {
			found = d
			break
		}
	}
	if found == nil {
		s.mu.Unlock()
		return ChatDraft{}, false
	}
	found.State = Confirmed
	found.ConfirmedAt = s.now()
	if snap, ok := s.snapshots[publishID]; ok {
		snap.Confirmed = true
		snap.ConfirmedAt = found.ConfirmedAt
	}
	cp := *found
	s.mu.Unlock()

	s.flush()
	return cp, true
}

// RemovePublishSnapshot drops a publish snapshot without confirming it —
// used to roll back bookkeeping when a send is later discovered to have
// failed after ConfirmSendAccepted already ran.
func (s *Store) RemovePublishSnapshot(publishID string) {
	s.mu.Lock()
	delete(s.snapshots, publishID)
	s.mu.Unlock()
	s.flush()
}

// PendingSnapshots returns every publish snapshot not yet confirmed, for
// crash-restart reconciliation against the relay's event history.
func (s *Store) PendingSnapshots() []PublishSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []PublishSnapshot
	for _, snap := range s.snapshots {
		if !snap.Confirmed {
			out = append(out, *snap)
		}
	}
	return out
}

// MigratePreConversationDraft moves a pre-conversation draft (keyed by
// project a-tag + session id) to the real conversation id once the first
// message under it is confirmed.
func (s *Store) MigratePreConversationDraft(oldKey, newConversationID string) {
	s.mu.Lock()
	d, ok := s.drafts[oldKey]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.drafts, oldKey)
	d.Key = newConversationID
	d.ConversationID = newConversationID
	s.drafts[newConversationID] = d
	s.mu.Unlock()

	s.flush()
}

// CleanupConfirmedPublishes archives Confirmed drafts once they are past
// their 24h grace period. Intended to be run at startup and periodically
// thereafter.
func (s *Store) CleanupConfirmedPublishes() int {
	s.mu.Lock()
	now := s.now()
	var archivedCount int
	for key, d := range s.drafts {
		if d.eligibleForArchive(now) {
			s.archived = append(s.archived, *d)
			delete(s.drafts, key)
			archivedCount++
		}
	}
	s.mu.Unlock()

	if archivedCount > 0 {
		s.flush()
	}
	return archivedCount
}

// Archived returns every archived draft.
func (s *Store) Archived() []ChatDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatDraft, len(s.archived))
	copy(out, s.archived)
	return out
}

func (s *Store) snapshotFileLocked() File {
	drafts := make(map[string]ChatDraft, len(s.drafts))
	for k, d := range s.drafts {
		drafts[k] = *d
	}
	pending := make([]PublishSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		pending = append(pending, *snap)
	}
	return File{
		Version:          CurrentFileVersion,
		Drafts:           drafts,
		Versioned:        append([]ChatDraft(nil), s.versioned...),
		Archived:         append([]ChatDraft(nil), s.archived...),
		PendingPublishes: pending,
	}
}

// flush persists the current state. A failure is recorded as a last-error
// string and the store continues operating in memory: a disk-full
// condition must never lose in-memory draft content or crash the UI.
func (s *Store) flush() {
	if s.persister == nil {
		return
	}
	s.mu.Lock()
	file := s.snapshotFileLocked()
	s.mu.Unlock()

	if err := s.persister.Save(file); err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.mu.Unlock()
		s.logger.Warn("draft flush failed, will retry on next write", zap.Error(err))
	}
}
