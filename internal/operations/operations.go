// Package operations implements the operations tracker: the live set of
// in-flight agent activity, keyed by conversation. A project-status
// event is the sole ground truth for "who is working where" — message
// arrivals never mutate this set. Stop commands are tracked against a
// timeout so the UI can show "stop pending" without the tracker itself
// guessing at completion.
package operations

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// stopTimeout bounds how long a stop command waits for a confirming
// project-status event before the UI is told the stop is still pending.
const stopTimeout = 30 * time.Second

// Operation describes the agents currently working on a conversation and
// when the tracker first observed them there.
type Operation struct {
	ConversationID string
	AgentPubkeys   map[string]struct{}
	StartedAt      time.Time
}

// pendingStop records a stop command issued against a conversation, used
// only to compute the "stop pending" timeout; it does not alter the
// tracked working-agent set by itself.
type pendingStop struct {
	agentPubkeys map[string]struct{}
	issuedAt     time.Time
}

// Tracker holds the current working-agent set per conversation.
type Tracker struct {
	mu sync.RWMutex

	operations   map[string]*Operation
	pendingStops map[string]*pendingStop

	logger *logger.Logger
	now    func() time.Time
}

// New builds an empty Tracker.
func New(log *logger.Logger) *Tracker {
	return &Tracker{
		operations:   make(map[string]*Operation),
		pendingStops: make(map[string]*pendingStop),
		logger:       log.WithFields(zap.String("component", "operations")),
		now:          time.Now,
	}
}

// SetWorkingAgents replaces the working-agent set for conversationID from
// a fresh project-status event. An empty set clears the operation entirely
// (the agents have stopped or completed). Any pending stop whose agents no
// longer intersect the new set is considered acknowledged and cleared.
func (t *Tracker) SetWorkingAgents(conversationID string, agentPubkeys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(agentPubkeys) == 0 {
		delete(t.operations, conversationID)
		delete(t.pendingStops, conversationID)
		return
	}

	set := make(map[string]struct{}, len(agentPubkeys))
	for _, p := range agentPubkeys {
		set[p] = struct{}{}
	}

	if existing, ok := t.operations[conversationID]; ok {
		existing.AgentPubkeys = set
	} else {
		t.operations[conversationID] = &Operation{
			ConversationID: conversationID,
			AgentPubkeys:   set,
			StartedAt:      t.now(),
		}
	}

	if stop, ok := t.pendingStops[conversationID]; ok {
		if !intersects(stop.agentPubkeys, set) {
			delete(t.pendingStops, conversationID)
		}
	}
}

// RecordStopRequested notes that a stop command was sent for the given
// conversation and agents, starting the stop-pending timeout clock.
func (t *Tracker) RecordStopRequested(conversationID string, agentPubkeys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	set := make(map[string]struct{}, len(agentPubkeys))
	for _, p := range agentPubkeys {
		set[p] = struct{}{}
	}
	t.pendingStops[conversationID] = &pendingStop{agentPubkeys: set, issuedAt: t.now()}
}

// IsStopPending reports whether conversationID has an outstanding stop
// request that has not been acknowledged by a status refresh, however long
// ago it was issued; IsStopTimedOut tells the two UI states apart (within
// the 30s timeout "stopping", past it "stop pending"). Either way the
// tracker leaves the working set untouched until a status event confirms it.
func (t *Tracker) IsStopPending(conversationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pendingStops[conversationID]
	return ok
}

// IsStopTimedOut reports whether a pending stop for conversationID has
// exceeded the 30s acknowledgement timeout.
func (t *Tracker) IsStopTimedOut(conversationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	stop, ok := t.pendingStops[conversationID]
	if !ok {
		return false
	}
	return t.now().Sub(stop.issuedAt) >= stopTimeout
}

// WorkingAgents returns the set of agent pubkeys currently working on
// conversationID, or nil if none.
func (t *Tracker) WorkingAgents(conversationID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	op, ok := t.operations[conversationID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(op.AgentPubkeys))
	for p := range op.AgentPubkeys {
		out = append(out, p)
	}
	return out
}

// IsBusy reports whether any agent is currently working on conversationID.
func (t *Tracker) IsBusy(conversationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.operations[conversationID]
	return ok
}

// ActiveConversations returns every conversation id with at least one
// working agent, unordered.
func (t *Tracker) ActiveConversations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.operations))
	for id := range t.operations {
		out = append(out, id)
	}
	return out
}

// Clear discards all tracked operations and pending stops.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operations = make(map[string]*Operation)
	t.pendingStops = make(map[string]*pendingStop)
}

func intersects(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
