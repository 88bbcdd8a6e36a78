package commandqueue

// Command is implemented by every outbound command variant the UI layer
// can enqueue. The marker method keeps the set closed; callers type-switch
// on the concrete type to serialize the command into a signed event.
type Command interface {
	commandName() string
}

// Connect establishes the relay subscription for user's session, signing
// outbound events with keys.
type Connect struct {
	Keys       any // opaque identity/signing material; format is out of scope
	UserPubkey string
}

func (Connect) commandName() string { return "connect" }

// Sync requests a full resync of projects/conversations/messages from the
// relay (used after a long disconnect or an explicit user refresh).
type Sync struct{}

func (Sync) commandName() string { return "sync" }

// PublishThread creates a new conversation root under a project.
type PublishThread struct {
	ProjectATag  string
	Title        string
	Content      string
	AgentPubkey  string
	HasAgent     bool
	Branch       string
}

func (PublishThread) commandName() string { return "publish_thread" }

// PublishMessage sends a reply within an existing conversation.
type PublishMessage struct {
	ThreadID    string
	ProjectATag string
	Content     string
	AgentPubkey string
	HasAgent    bool
	ReplyToID   string
	HasReplyTo  bool
	Branch      string
}

func (PublishMessage) commandName() string { return "publish_message" }

// StopOperations requests that the relay signal the named agents to stop
// working on the given conversations within a project.
type StopOperations struct {
	ProjectATag  string
	EventIDs     []string
	AgentPubkeys []string
}

func (StopOperations) commandName() string { return "stop_operations" }

// CreateNudge publishes a new reusable prompt template.
type CreateNudge struct {
	Title       string
	Description string
	Content     string
	Hashtags    []string
	AllowTools  []string
	DenyTools   []string
	OnlyTools   []string
}

func (CreateNudge) commandName() string { return "create_nudge" }

// DeleteNudge removes a previously published nudge template.
type DeleteNudge struct {
	NudgeID string
}

func (DeleteNudge) commandName() string { return "delete_nudge" }

// UpdateProjectAgents replaces a project's agent roster.
type UpdateProjectAgents struct {
	ProjectATag string
	AgentIDs    []string
}

func (UpdateProjectAgents) commandName() string { return "update_project_agents" }

// Envelope wraps a Command with an id assigned at enqueue time, usable by
// callers that want to correlate a command with its eventual relay
// acknowledgement or failure.
type Envelope struct {
	ID      string
	Command Command
}
