package store

// Project is addressable by the tuple (kind, owner_pubkey, identifier)
// known as its a-tag. Replaceable: later revisions of the same a-tag
// overwrite these attributes but never destroy derived state held
// elsewhere (runtime hierarchy, stats). Deletion is a flag, not removal.
type Project struct {
	ATag        string
	OwnerPubkey string
	Title       string
	Description string
	AgentIDs    []string
	IsDeleted   bool
	CreatedAt   int64
}

// ProjectStatus is the online-agents / working-agents snapshot for a
// project, refreshed wholesale by each project-status event.
type ProjectStatus struct {
	ATag          string
	OnlineAgents  []string
	DefaultBranch string
	PMAgent       string
}

// Conversation (Thread) is identified by an opaque event id and may carry
// a parent conversation id (tracked authoritatively by the runtime
// hierarchy, mirrored here for convenience reads).
type Conversation struct {
	ID                  string
	ProjectATag         string
	Title               string
	Content             string
	AuthorPubkey        string
	CreatedAt           int64
	EffectiveLastActive int64
	ParentID            string
	HasParent           bool
	Status              string
	CurrentActivity     string
	Branch              string
	FileURLs            []string
	ImageAttachments    []ImageAttachment
	Collapsed           bool
	Read                bool
}

// ImageAttachment is an image URL plus inline alt text.
type ImageAttachment struct {
	URL string
	Alt string
}

// ToolCall is a single tool invocation embedded in a message body.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
	Result     string
	HasResult  bool
}

// Usage is LLM token/cost metadata attached to a message.
type Usage struct {
	InputTokens  uint64
	OutputTokens uint64
	CostUSD      string
	HasCost      bool
}

// Message is identified by event id and belongs to exactly one
// conversation.
type Message struct {
	ID             string
	ConversationID string
	AuthorPubkey   string
	Content        string
	ReplyToID      string
	CreatedAt      int64
	AskPayload     string
	HasAsk         bool
	ToolCalls      []ToolCall
	Usage          Usage
}

// Agent is identified by pubkey and describes a project collaborator.
type Agent struct {
	Pubkey      string
	DisplayName string
	Model       string
	Tools       []string
	Role        string
	IsPM        bool
}

// Nudge is a reusable prompt template with optional tool-permission
// overrides.
type Nudge struct {
	ID          string
	Title       string
	Description string
	Content     string
	Hashtags    []string
	AllowTools  []string
	DenyTools   []string
	OnlyTools   []string
}

// Report is an agent-authored report attached to a conversation.
type Report struct {
	ID             string
	ConversationID string
	Content        string
	CreatedAt      int64
}

// Lesson is a standalone lesson record.
type Lesson struct {
	ID        string
	Content   string
	CreatedAt int64
}
