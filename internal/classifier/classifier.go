// Package classifier implements the Event Classifier: it decodes a signed
// wire event into a typed variant and leaves folding that variant into the
// data store, runtime hierarchy, statistics engine, and operations tracker
// to their respective owners. Classification is total — every recognized
// kind maps to exactly one variant, and unrecognized kinds are dropped with
// a debug trace rather than an error, since an unbounded relay stream must
// never be allowed to wedge ingestion on a single unfamiliar event.
package classifier

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/common/logger"
	"github.com/relaycore/relaycore/internal/nostrevent"
)

// Classified is implemented by every concrete event variant this package
// produces. It carries no methods beyond the marker — callers type-switch
// on the concrete type to fold it into the appropriate component.
type Classified interface {
	classified()
}

// ParentEdge is evidence of a parent/child relationship extracted from
// either a quote ("q") or delegation tag. Both evidence channels fold into
// the same runtime-hierarchy SetParent call; the caller does not need to
// know which channel produced it.
type ParentEdge struct {
	ChildID  string
	ParentID string
}

// ProjectUpsert classifies a replaceable project-coordinate event.
type ProjectUpsert struct {
	ATag        string
	OwnerPubkey string
	Title       string
	Description string
	AgentIDs    []string
	CreatedAt   int64
}

func (ProjectUpsert) classified() {}

// ThreadRoot classifies a conversation's first event (no reply-to).
type ThreadRoot struct {
	ID           string
	ProjectATag  string
	AuthorPubkey string
	Title        string
	Content      string
	CreatedAt    int64
	Branch       string
	ParentEdge   *ParentEdge
}

func (ThreadRoot) classified() {}

// MessageEvent classifies a reply within a conversation, including any
// runtime/cost/token metadata and embedded tool calls it carries.
type MessageEvent struct {
	ID             string
	ConversationID string
	AuthorPubkey   string
	Content        string
	Body           MessageContent
	CreatedAt      int64

	RuntimeMs uint64
	HasRuntime bool

	TokensIn    uint64
	HasTokensIn bool
	TokensOut   uint64
	HasTokensOut bool

	CostUSD string
	HasCost bool

	Branch string

	AskPayload string
	HasAsk     bool

	ParentEdge *ParentEdge
}

func (MessageEvent) classified() {}

// ProjectStatusEvent classifies an online-agents / working-agents snapshot
// for a project.
type ProjectStatusEvent struct {
	ATag          string
	OnlineAgents  []string
	WorkingAgents map[string][]string // conversation id -> working agent pubkeys
	DefaultBranch string
	PMAgent       string
}

func (ProjectStatusEvent) classified() {}

// ProfileEvent classifies a pubkey's display-name metadata.
type ProfileEvent struct {
	Pubkey      string
	DisplayName string
}

func (ProfileEvent) classified() {}

// NudgeEvent classifies a reusable prompt template.
type NudgeEvent struct {
	ID          string
	Title       string
	Description string
	Content     string
	Hashtags    []string
	AllowTools  []string
	DenyTools   []string
	OnlyTools   []string
}

func (NudgeEvent) classified() {}

// ReportEvent classifies an agent-authored report attached to a conversation.
type ReportEvent struct {
	ID             string
	ConversationID string
	Content        string
	CreatedAt      int64
}

func (ReportEvent) classified() {}

// LessonEvent classifies a standalone lesson record.
type LessonEvent struct {
	ID        string
	Content   string
	CreatedAt int64
}

func (LessonEvent) classified() {}

// DeletionEvent classifies a deletion marker targeting another event.
type DeletionEvent struct {
	TargetID string
}

func (DeletionEvent) classified() {}

// Classifier decodes wire events into Classified variants.
type Classifier struct {
	logger *logger.Logger
}

// New builds a Classifier logging under the "classifier" component.
func New(log *logger.Logger) *Classifier {
	return &Classifier{logger: log.WithFields(zap.String("component", "classifier"))}
}

// Classify decodes e into its variant. The second return value is false iff
// the event's kind is not recognized, in which case the caller should drop
// the event; Classify itself already emits the debug trace.
func (c *Classifier) Classify(e nostrevent.Event) (Classified, bool) {
	switch nostrevent.Kind(e.Kind) {
	case nostrevent.KindProfile:
		return c.classifyProfile(e), true
	case nostrevent.KindDeletion:
		return c.classifyDeletion(e), true
	case nostrevent.KindProject:
		return c.classifyProject(e), true
	case nostrevent.KindProjectStatus:
		return c.classifyProjectStatus(e), true
	case nostrevent.KindThread:
		return c.classifyThread(e), true
	case nostrevent.KindMessage, nostrevent.KindAsk:
		return c.classifyMessage(e), true
	case nostrevent.KindNudge:
		return c.classifyNudge(e), true
	case nostrevent.KindReport:
		return c.classifyReport(e), true
	case nostrevent.KindLesson:
		return c.classifyLesson(e), true
	default:
		c.logger.Debug("dropping unrecognized event kind",
			zap.Int("kind", e.Kind), zap.String("event_id", e.ID))
		return nil, false
	}
}

func extractParentEdge(selfID string, e nostrevent.Event) *ParentEdge {
	if childID, ok := e.QuoteParent(); ok {
		return &ParentEdge{ChildID: childID, ParentID: selfID}
	}
	if parentID, ok := e.DelegationParent(); ok {
		return &ParentEdge{ChildID: selfID, ParentID: parentID}
	}
	return nil
}

func firstLine(content string) string {
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		return content[:idx]
	}
	return content
}

type projectMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AgentIDs    []string `json:"agent_ids"`
}

func (c *Classifier) classifyProject(e nostrevent.Event) ProjectUpsert {
	aTag, _ := e.ProjectATag()
	var meta projectMetadata
	if e.Content != "" {
		if err := json.Unmarshal([]byte(e.Content), &meta); err != nil {
			c.logger.Debug("malformed project content json", zap.Error(err), zap.String("event_id", e.ID))
		}
	}
	return ProjectUpsert{
		ATag:        aTag,
		OwnerPubkey: e.PubKey,
		Title:       meta.Title,
		Description: meta.Description,
		AgentIDs:    meta.AgentIDs,
		CreatedAt:   int64(e.CreatedAt),
	}
}

func (c *Classifier) classifyThread(e nostrevent.Event) ThreadRoot {
	aTag, _ := e.ProjectATag()
	branch, _ := e.Branch()
	return ThreadRoot{
		ID:           e.ID,
		ProjectATag:  aTag,
		AuthorPubkey: e.PubKey,
		Title:        firstLine(e.Content),
		Content:      e.Content,
		CreatedAt:    int64(e.CreatedAt),
		Branch:       branch,
		ParentEdge:   extractParentEdge(e.ID, e),
	}
}

func (c *Classifier) classifyMessage(e nostrevent.Event) MessageEvent {
	convID, _ := e.ReplyTo()
	runtimeMs, hasRuntime := e.RuntimeMillis()
	tokensIn, hasTokensIn := e.TokensIn()
	tokensOut, hasTokensOut := e.TokensOut()
	costUSD, hasCost := e.CostUSD()
	branch, _ := e.Branch()
	askPayload, hasAsk := e.AskMarker()

	return MessageEvent{
		ID:             e.ID,
		ConversationID: convID,
		AuthorPubkey:   e.PubKey,
		Content:        e.Content,
		Body:           ParseMessageContent(e.Content),
		CreatedAt:      int64(e.CreatedAt),
		RuntimeMs:      runtimeMs,
		HasRuntime:     hasRuntime,
		TokensIn:       tokensIn,
		HasTokensIn:    hasTokensIn,
		TokensOut:      tokensOut,
		HasTokensOut:   hasTokensOut,
		CostUSD:        costUSD,
		HasCost:        hasCost,
		Branch:         branch,
		AskPayload:     askPayload,
		HasAsk:         hasAsk,
		ParentEdge:     extractParentEdge(convID, e),
	}
}

type projectStatusPayload struct {
	OnlineAgents  []string            `json:"online_agents"`
	WorkingAgents map[string][]string `json:"working_agents"`
	PMAgent       string              `json:"pm_agent"`
}

func (c *Classifier) classifyProjectStatus(e nostrevent.Event) ProjectStatusEvent {
	aTag, _ := e.ProjectATag()
	branch, _ := e.Branch()
	var payload projectStatusPayload
	if e.Content != "" {
		if err := json.Unmarshal([]byte(e.Content), &payload); err != nil {
			c.logger.Debug("malformed project-status content json", zap.Error(err), zap.String("event_id", e.ID))
		}
	}
	return ProjectStatusEvent{
		ATag:          aTag,
		OnlineAgents:  payload.OnlineAgents,
		WorkingAgents: payload.WorkingAgents,
		DefaultBranch: branch,
		PMAgent:       payload.PMAgent,
	}
}

type profilePayload struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

func (c *Classifier) classifyProfile(e nostrevent.Event) ProfileEvent {
	var payload profilePayload
	name := ""
	if e.Content != "" {
		if err := json.Unmarshal([]byte(e.Content), &payload); err != nil {
			c.logger.Debug("malformed profile content json", zap.Error(err), zap.String("event_id", e.ID))
		} else {
			name = payload.DisplayName
			if name == "" {
				name = payload.Name
			}
		}
	}
	return ProfileEvent{Pubkey: e.PubKey, DisplayName: name}
}

type nudgePayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Content     string   `json:"content"`
	Hashtags    []string `json:"hashtags"`
	AllowTools  []string `json:"allow_tools"`
	DenyTools   []string `json:"deny_tools"`
	OnlyTools   []string `json:"only_tools"`
}

func (c *Classifier) classifyNudge(e nostrevent.Event) NudgeEvent {
	var p nudgePayload
	if e.Content != "" {
		if err := json.Unmarshal([]byte(e.Content), &p); err != nil {
			c.logger.Debug("malformed nudge content json", zap.Error(err), zap.String("event_id", e.ID))
		}
	}
	return NudgeEvent{
		ID:          e.ID,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Hashtags:    p.Hashtags,
		AllowTools:  p.AllowTools,
		DenyTools:   p.DenyTools,
		OnlyTools:   p.OnlyTools,
	}
}

func (c *Classifier) classifyReport(e nostrevent.Event) ReportEvent {
	convID, _ := e.ReplyTo()
	return ReportEvent{ID: e.ID, ConversationID: convID, Content: e.Content, CreatedAt: int64(e.CreatedAt)}
}

func (c *Classifier) classifyLesson(e nostrevent.Event) LessonEvent {
	return LessonEvent{ID: e.ID, Content: e.Content, CreatedAt: int64(e.CreatedAt)}
}

func (c *Classifier) classifyDeletion(e nostrevent.Event) DeletionEvent {
	targetID, _ := e.ReplyTo()
	return DeletionEvent{TargetID: targetID}
}
