// Package navigation implements tab and navigation state: the ordered
// list of open conversations, unread bits, the active index, and a
// recency stack for cycling tabs back and forth. Closing a tab preserves
// the relative order of its neighbours.
package navigation

import (
	"sync"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// Tab is one open conversation in the tab bar.
type Tab struct {
	ConversationID string
	Unread         bool
}

// State holds the ordered tab list, active index, and recency stack.
type State struct {
	mu sync.RWMutex

	tabs    []Tab
	active  int // index into tabs, -1 when empty
	recency []string
	logger  *logger.Logger
}

// New builds an empty State.
func New(log *logger.Logger) *State {
	return &State{
		active: -1,
		logger: log.WithFields(zap.String("component", "navigation")),
	}
}

// OpenTab opens conversationID, or activates it if already open, and
// pushes it to the front of the recency stack.
func (s *State) OpenTab(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOfLocked(conversationID); idx >= 0 {
		s.active = idx
		s.pushRecencyLocked(conversationID)
		return
	}

	s.tabs = append(s.tabs, Tab{ConversationID: conversationID})
	s.active = len(s.tabs) - 1
	s.pushRecencyLocked(conversationID)
}

// CloseTab closes conversationID's tab, preserving the relative order of
// the remaining tabs. If the closed tab was active, activates its
// neighbour (the tab that slid into its index, or the new last tab if it
// was the rightmost).
func (s *State) CloseTab(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(conversationID)
	if idx < 0 {
		return
	}

	s.tabs = append(s.tabs[:idx], s.tabs[idx+1:]...)
	s.removeRecencyLocked(conversationID)

	switch {
	case len(s.tabs) == 0:
		s.active = -1
	case idx < len(s.tabs):
		s.active = idx
	default:
		s.active = len(s.tabs) - 1
	}
}

// MarkUnread flags conversationID's tab as unread. A no-op if the
// conversation is the currently active tab (the user is looking at it) or
// not open.
func (s *State) MarkUnread(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(conversationID)
	if idx < 0 || idx == s.active {
		return
	}
	s.tabs[idx].Unread = true
}

// Activate switches the active tab to conversationID and clears its
// unread bit, pushing it to the front of the recency stack.
func (s *State) Activate(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(conversationID)
	if idx < 0 {
		return false
	}
	s.active = idx
	s.tabs[idx].Unread = false
	s.pushRecencyLocked(conversationID)
	return true
}

// ActiveTab returns the currently active tab, if any.
func (s *State) ActiveTab() (Tab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active < 0 || s.active >= len(s.tabs) {
		return Tab{}, false
	}
	return s.tabs[s.active], true
}

// Tabs returns the open tabs in their display order.
func (s *State) Tabs() []Tab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tab, len(s.tabs))
	copy(out, s.tabs)
	return out
}

// Back activates the conversation one step older in the recency stack than
// the current tab, returning its id. Returns false if there is no older
// entry. The recency stack's last entry is the newest, so "older" moves
// toward index 0.
func (s *State) Back() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepRecencyLocked(-1)
}

// Forward activates the conversation one step newer in the recency stack.
// Returns false if there is no newer entry.
func (s *State) Forward() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepRecencyLocked(1)
}

func (s *State) stepRecencyLocked(direction int) (string, bool) {
	if len(s.recency) == 0 {
		return "", false
	}
	active, ok := s.activeConversationLocked()
	if !ok {
		return "", false
	}
	curPos := -1
	for i, id := range s.recency {
		if id == active {
			curPos = i
			break
		}
	}
	if curPos < 0 {
		return "", false
	}
	targetPos := curPos + direction
	if targetPos < 0 || targetPos >= len(s.recency) {
		return "", false
	}
	target := s.recency[targetPos]
	idx := s.indexOfLocked(target)
	if idx < 0 {
		return "", false
	}
	s.active = idx
	s.tabs[idx].Unread = false
	return target, true
}

func (s *State) activeConversationLocked() (string, bool) {
	if s.active < 0 || s.active >= len(s.tabs) {
		return "", false
	}
	return s.tabs[s.active].ConversationID, true
}

func (s *State) indexOfLocked(conversationID string) int {
	for i, t := range s.tabs {
		if t.ConversationID == conversationID {
			return i
		}
	}
	return -1
}

func (s *State) pushRecencyLocked(conversationID string) {
	for i, id := range s.recency {
		if id == conversationID {
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			break
		}
	}
	s.recency = append(s.recency, conversationID)
}

func (s *State) removeRecencyLocked(conversationID string) {
	for i, id := range s.recency {
		if id == conversationID {
			s.recency = append(s.recency[:i], s.recency[i+1:]...)
			return
		}
	}
}
