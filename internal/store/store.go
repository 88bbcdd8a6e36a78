// Package store implements the authoritative in-memory model of
// projects, conversations, messages, agents, profiles,
// nudges, reports, and lessons, with the dictionary-style read surface the
// UI layer queries. Writes come only from the classifier's fold methods
// and from a small set of internal mutation methods (mark-read,
// toggle-collapse); the store never itself emits outbound relay commands.
package store

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
)

// Store is the mutex-protected, in-memory data model. Entities are never
// hard-deleted; Clear (logout) is the only wholesale reset.
type Store struct {
	mu sync.RWMutex

	projects       map[string]*Project
	projectStatus  map[string]*ProjectStatus
	conversations  map[string]*Conversation
	messages       map[string]*Message
	messagesByConv map[string][]string // conversation id -> ordered message ids
	agents         map[string]*Agent
	profileNames   map[string]string
	nudges         map[string]*Nudge
	reports        map[string]*Report
	lessons        map[string]*Lesson

	logger *logger.Logger
}

// New builds an empty Store.
func New(log *logger.Logger) *Store {
	return &Store{
		projects:       make(map[string]*Project),
		projectStatus:  make(map[string]*ProjectStatus),
		conversations:  make(map[string]*Conversation),
		messages:       make(map[string]*Message),
		messagesByConv: make(map[string][]string),
		agents:         make(map[string]*Agent),
		profileNames:   make(map[string]string),
		nudges:         make(map[string]*Nudge),
		reports:        make(map[string]*Report),
		lessons:        make(map[string]*Lesson),
		logger:         log.WithFields(zap.String("component", "store")),
	}
}

// UpsertProject creates or revises a project by a-tag. Revisions overwrite
// attributes; the deletion flag is preserved unless explicitly cleared by
// the caller via SetProjectDeleted.
func (s *Store) UpsertProject(p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.projects[p.ATag]; ok {
		p.IsDeleted = existing.IsDeleted
	}
	cp := p
	s.projects[p.ATag] = &cp
}

// SetProjectDeleted flags a project as deleted without removing it.
func (s *Store) SetProjectDeleted(aTag string, deleted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[aTag]; ok {
		p.IsDeleted = deleted
	}
}

// GetProjects returns every known project, unordered.
func (s *Store) GetProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out
}

// GetProject returns a single project by a-tag.
func (s *Store) GetProject(aTag string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[aTag]
	if !ok {
		return Project{}, false
	}
	return *p, true
}

// UpsertProjectStatus replaces a project's online-agents / working-agents
// snapshot wholesale; status events are not incremental.
func (s *Store) UpsertProjectStatus(ps ProjectStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ps
	s.projectStatus[ps.ATag] = &cp
}

// GetProjectStatus returns the latest status snapshot for a project.
func (s *Store) GetProjectStatus(aTag string) (ProjectStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.projectStatus[aTag]
	if !ok {
		return ProjectStatus{}, false
	}
	return *ps, true
}

// GetOnlineAgents returns the online-agent pubkeys for a project.
func (s *Store) GetOnlineAgents(aTag string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ps, ok := s.projectStatus[aTag]
	if !ok {
		return nil
	}
	return append([]string(nil), ps.OnlineAgents...)
}

// UpsertConversation creates a conversation on first sighting or revises
// its mutable fields on replay, preserving fields (read, collapsed) the
// classifier never sets directly.
func (s *Store) UpsertConversation(c Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[c.ID]; ok {
		c.Collapsed = existing.Collapsed
		c.Read = existing.Read
	}
	cp := c
	s.conversations[c.ID] = &cp
}

// SetConversationParent mirrors the runtime hierarchy's parent edge onto
// the stored conversation for convenience reads (the hierarchy remains the
// source of truth for traversal).
func (s *Store) SetConversationParent(conversationID, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		c.ParentID = parentID
		c.HasParent = parentID != ""
	}
}

// SetConversationStatus updates the status/current-activity labels on a
// conversation from a project-status or activity-tagged event.
func (s *Store) SetConversationStatus(conversationID, status, activity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		if status != "" {
			c.Status = status
		}
		if activity != "" {
			c.CurrentActivity = activity
		}
	}
}

// SetConversationLastActivity updates the stored effective-last-activity
// mirror (the runtime hierarchy computes the authoritative subtree value;
// the store tracks each conversation's own last-seen activity timestamp).
func (s *Store) SetConversationLastActivity(conversationID string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok && ts > c.EffectiveLastActive {
		c.EffectiveLastActive = ts
	}
}

// GetThreads returns every conversation belonging to a project, unordered.
func (s *Store) GetThreads(aTag string) []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Conversation
	for _, c := range s.conversations {
		if c.ProjectATag == aTag {
			out = append(out, *c)
		}
	}
	return out
}

// GetThreadByID returns a single conversation by id.
func (s *Store) GetThreadByID(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// FindProjectForThread returns the project a-tag owning a conversation.
func (s *Store) FindProjectForThread(threadID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[threadID]
	if !ok {
		return "", false
	}
	return c.ProjectATag, true
}

// MarkRead sets a conversation's read state to read.
func (s *Store) MarkRead(conversationID string, read bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[conversationID]; ok {
		c.Read = read
	}
}

// ToggleCollapse flips a conversation's collapsed display state and
// returns the new value.
func (s *Store) ToggleCollapse(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	c.Collapsed = !c.Collapsed
	return c.Collapsed
}

// AppendMessage adds a message to its conversation's ordered message list.
// Re-appending the same id (a replay) replaces the stored message in place
// without adding a second entry to the conversation's order.
func (s *Store) AppendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[m.ID]; exists {
		cp := m
		s.messages[m.ID] = &cp
		return
	}
	cp := m
	s.messages[m.ID] = &cp
	s.messagesByConv[m.ConversationID] = append(s.messagesByConv[m.ConversationID], m.ID)
}

// AttachToolCalls records the tool calls parsed from a message body.
func (s *Store) AttachToolCalls(messageID string, calls []ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[messageID]; ok {
		m.ToolCalls = calls
	}
}

// AttachAskPayload records an ask-event payload on a message.
func (s *Store) AttachAskPayload(messageID, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[messageID]; ok {
		m.AskPayload = payload
		m.HasAsk = true
	}
}

// GetMessages returns every message in a conversation in arrival order.
func (s *Store) GetMessages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.messagesByConv[conversationID]
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, *m)
		}
	}
	return out
}

// GetMessage returns a single message by id.
func (s *Store) GetMessage(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// AllMessages returns every message across every conversation, unordered.
// It is the source a stats MessageRecord snapshot can be built from; no
// caller in this tree builds one.
func (s *Store) AllMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// UpsertAgent creates or revises an agent definition.
func (s *Store) UpsertAgent(a Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.agents[a.Pubkey] = &cp
}

// GetAgent returns an agent by pubkey.
func (s *Store) GetAgent(pubkey string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[pubkey]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// SetProfileName caches a pubkey's display name from a profile event.
func (s *Store) SetProfileName(pubkey, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileNames[pubkey] = name
}

// GetProfileName returns the cached display name for a pubkey, falling
// back to the raw pubkey when no profile has been seen.
func (s *Store) GetProfileName(pubkey string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if name, ok := s.profileNames[pubkey]; ok && name != "" {
		return name
	}
	return pubkey
}

// UpsertNudge creates or revises a nudge template.
func (s *Store) UpsertNudge(n Nudge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := n
	s.nudges[n.ID] = &cp
}

// DeleteNudge removes a nudge template (nudges, unlike projects and
// conversations, are genuinely removable — they carry no derived state).
func (s *Store) DeleteNudge(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nudges, id)
}

// GetNudges returns every known nudge, sorted by id for stable display.
func (s *Store) GetNudges() []Nudge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Nudge, 0, len(s.nudges))
	for _, n := range s.nudges {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpsertReport creates or revises a report.
func (s *Store) UpsertReport(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := r
	s.reports[r.ID] = &cp
}

// GetReport returns a report by id.
func (s *Store) GetReport(id string) (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return Report{}, false
	}
	return *r, true
}

// UpsertLesson creates or revises a lesson.
func (s *Store) UpsertLesson(l Lesson) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.lessons[l.ID] = &cp
}

// GetLesson returns a lesson by id.
func (s *Store) GetLesson(id string) (Lesson, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	if !ok {
		return Lesson{}, false
	}
	return *l, true
}

// Clear discards all entities. Only called on logout: entities are
// otherwise never hard-deleted.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = make(map[string]*Project)
	s.projectStatus = make(map[string]*ProjectStatus)
	s.conversations = make(map[string]*Conversation)
	s.messages = make(map[string]*Message)
	s.messagesByConv = make(map[string][]string)
	s.agents = make(map[string]*Agent)
	s.profileNames = make(map[string]string)
	s.nudges = make(map[string]*Nudge)
	s.reports = make(map[string]*Report)
	s.lessons = make(map[string]*Lesson)
}
