// Package runtime wires the ingestion-engine components (runtime hierarchy,
// stats engine, operations tracker, data store, command queue, streaming
// buffer, draft store, change notifier, navigation state) into the single
// object that owns them all, and implements the event classifier's fold
// table: each classified variant is dispatched to the components it
// updates, then the notifier is bumped once per ingested event.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/relaycore/internal/classifier"
	"github.com/relaycore/relaycore/internal/commandqueue"
	"github.com/relaycore/relaycore/internal/common/apperrors"
	"github.com/relaycore/relaycore/internal/common/config"
	"github.com/relaycore/relaycore/internal/common/logger"
	"github.com/relaycore/relaycore/internal/drafts"
	"github.com/relaycore/relaycore/internal/navigation"
	"github.com/relaycore/relaycore/internal/nostrevent"
	"github.com/relaycore/relaycore/internal/notifier"
	"github.com/relaycore/relaycore/internal/operations"
	"github.com/relaycore/relaycore/internal/runtimehierarchy"
	"github.com/relaycore/relaycore/internal/stats"
	"github.com/relaycore/relaycore/internal/store"
	"github.com/relaycore/relaycore/internal/streambuffer"
)

// Runtime owns every piece of global mutable state and is the sole writer
// to each of them; external callers (the CLI entrypoint, relay client,
// command handlers) only ever call its exported methods.
type Runtime struct {
	Hierarchy    *runtimehierarchy.Hierarchy
	Stats        *stats.Engine
	Operations   *operations.Tracker
	Store        *store.Store
	Queue        *commandqueue.Queue
	StreamBuffer *streambuffer.Buffer
	Drafts       *drafts.Store
	Notifier     *notifier.Notifier
	Navigation   *navigation.State

	classifier *classifier.Classifier
	ledger     *drafts.SnapshotLedger
	logger     *logger.Logger
}

// New builds every component and wires them together. persister backs the
// draft store's live JSON file; ledger is the sqlite-backed publish
// snapshot / archive history (nil is permitted, e.g. in tests that don't
// exercise reconciliation).
func New(persister drafts.Persister, ledger *drafts.SnapshotLedger, log *logger.Logger) *Runtime {
	r := &Runtime{
		Hierarchy:    runtimehierarchy.New(log),
		Operations:   operations.New(log),
		Store:        store.New(log),
		Queue:        commandqueue.New(log),
		StreamBuffer: streambuffer.New(log),
		Drafts:       drafts.New(persister, log),
		Notifier:     notifier.New(log),
		Navigation:   navigation.New(log),
		classifier:   classifier.New(log),
		ledger:       ledger,
		logger:       log.WithFields(zap.String("component", "runtime")),
	}
	r.Stats = stats.New(r.Hierarchy, log)
	return r
}

// NewFromConfig builds a Runtime using the draft file path and snapshot
// ledger path named by cfg.DataDir. A ledger open failure is logged and
// reconciliation is skipped rather than failing startup — the live draft
// file remains authoritative for in-progress composition either way.
func NewFromConfig(cfg *config.Config, log *logger.Logger) *Runtime {
	persister := drafts.NewFilePersister(cfg.DataDir.DraftsPath)

	ledger, err := drafts.OpenSnapshotLedger(cfg.DataDir.CachePath)
	if err != nil {
		log.Warn("failed to open publish-snapshot ledger, crash-restart reconciliation disabled", zap.Error(err))
		ledger = nil
	}

	return New(persister, ledger, log)
}

// Close releases resources the Runtime owns directly (the command queue and
// the snapshot ledger); the components above it hold no file handles of
// their own.
func (r *Runtime) Close() error {
	r.Queue.Close()
	if r.ledger != nil {
		return r.ledger.Close()
	}
	return nil
}

// IngestEvent classifies e and folds the result into every component the
// classification table names, then bumps the change notifier exactly once.
// Classification is total: an unrecognized kind is dropped with a debug
// trace by the classifier itself and IngestEvent is a no-op.
func (r *Runtime) IngestEvent(e nostrevent.Event) {
	classified, ok := r.classifier.Classify(e)
	if !ok {
		return
	}
	r.fold(classified)
	r.Notifier.Bump()
}

// IngestBatch folds a batch of decoded events in delivery order: fold order
// tracks delivery order within a single relay subscription.
func (r *Runtime) IngestBatch(batch []nostrevent.Event) {
	for _, e := range batch {
		r.IngestEvent(e)
	}
}

func (r *Runtime) fold(c classifier.Classified) {
	switch v := c.(type) {
	case classifier.ProjectUpsert:
		r.foldProject(v)
	case classifier.ThreadRoot:
		r.foldThread(v)
	case classifier.MessageEvent:
		r.foldMessage(v)
	case classifier.ProjectStatusEvent:
		r.foldProjectStatus(v)
	case classifier.ProfileEvent:
		r.Store.SetProfileName(v.Pubkey, v.DisplayName)
	case classifier.NudgeEvent:
		r.Store.UpsertNudge(store.Nudge{
			ID: v.ID, Title: v.Title, Description: v.Description, Content: v.Content,
			Hashtags: v.Hashtags, AllowTools: v.AllowTools, DenyTools: v.DenyTools, OnlyTools: v.OnlyTools,
		})
	case classifier.ReportEvent:
		r.Store.UpsertReport(store.Report{ID: v.ID, ConversationID: v.ConversationID, Content: v.Content, CreatedAt: v.CreatedAt})
	case classifier.LessonEvent:
		r.Store.UpsertLesson(store.Lesson{ID: v.ID, Content: v.Content, CreatedAt: v.CreatedAt})
	case classifier.DeletionEvent:
		r.foldDeletion(v)
	default:
		r.logger.Debug("fold: unhandled classified variant", zap.String("type", fmt.Sprintf("%T", v)))
	}
}

func (r *Runtime) foldProject(v classifier.ProjectUpsert) {
	r.Store.UpsertProject(store.Project{
		ATag: v.ATag, OwnerPubkey: v.OwnerPubkey, Title: v.Title,
		Description: v.Description, AgentIDs: v.AgentIDs, CreatedAt: v.CreatedAt,
	})
}

func (r *Runtime) foldThread(v classifier.ThreadRoot) {
	r.Store.UpsertConversation(store.Conversation{
		ID: v.ID, ProjectATag: v.ProjectATag, Title: v.Title, Content: v.Content,
		AuthorPubkey: v.AuthorPubkey, CreatedAt: v.CreatedAt, Branch: v.Branch,
	})
	r.Hierarchy.SetConversationCreatedAt(v.ID, uint64OrZero(v.CreatedAt))
	r.Hierarchy.SetIndividualLastActivity(v.ID, uint64OrZero(v.CreatedAt))
	r.applyParentEdge(v.ParentEdge)

	r.logger.WithConversationID(v.ID).WithPubkey(v.AuthorPubkey).Debug("ingested thread root")
}

func (r *Runtime) foldMessage(v classifier.MessageEvent) {
	if v.ConversationID == "" {
		r.logger.Debug("dropping message with no reply-to target", zap.String("event_id", v.ID))
		return
	}

	r.Store.AppendMessage(store.Message{
		ID: v.ID, ConversationID: v.ConversationID, AuthorPubkey: v.AuthorPubkey,
		Content: v.Content, CreatedAt: v.CreatedAt,
		AskPayload: v.AskPayload, HasAsk: v.HasAsk,
		ToolCalls: convertToolCalls(v.Body.ToolCalls),
		Usage: store.Usage{
			InputTokens: v.TokensIn, OutputTokens: v.TokensOut,
			CostUSD: v.CostUSD, HasCost: v.HasCost,
		},
	})
	if v.Body.Kind == classifier.ContentMixed && len(v.Body.ToolCalls) > 0 {
		r.Store.AttachToolCalls(v.ID, convertToolCalls(v.Body.ToolCalls))
	}
	if v.HasAsk {
		r.Store.AttachAskPayload(v.ID, v.AskPayload)
	}

	r.Hierarchy.SetIndividualLastActivity(v.ConversationID, uint64OrZero(v.CreatedAt))
	r.Store.SetConversationLastActivity(v.ConversationID, v.CreatedAt)

	if v.HasRuntime {
		r.Hierarchy.SetIndividualRuntime(v.ConversationID,
			r.Hierarchy.GetIndividualRuntime(v.ConversationID)+v.RuntimeMs)
	}

	r.applyParentEdge(v.ParentEdge)

	// The streaming buffer's preview for this conversation, if any, is now
	// superseded by the authoritative signed event.
	r.StreamBuffer.Drop(v.ConversationID)

	r.logger.WithConversationID(v.ConversationID).WithPubkey(v.AuthorPubkey).Debug("ingested message")
}

func (r *Runtime) foldProjectStatus(v classifier.ProjectStatusEvent) {
	r.Store.UpsertProjectStatus(store.ProjectStatus{
		ATag: v.ATag, OnlineAgents: v.OnlineAgents, DefaultBranch: v.DefaultBranch, PMAgent: v.PMAgent,
	})

	seen := make(map[string]struct{}, len(v.WorkingAgents))
	for conversationID, agents := range v.WorkingAgents {
		r.Operations.SetWorkingAgents(conversationID, agents)
		seen[conversationID] = struct{}{}
	}
	// Conversations previously reporting working agents under this project
	// that are absent from this snapshot have stopped; a status event is a
	// wholesale replacement, so clear them explicitly.
	for _, conversationID := range r.Operations.ActiveConversations() {
		if _, ok := seen[conversationID]; ok {
			continue
		}
		if projectATag, ok := r.Store.FindProjectForThread(conversationID); ok && projectATag == v.ATag {
			r.Operations.SetWorkingAgents(conversationID, nil)
		}
	}
}

func (r *Runtime) foldDeletion(v classifier.DeletionEvent) {
	if v.TargetID == "" {
		return
	}
	r.Store.SetProjectDeleted(v.TargetID, true)
}

func (r *Runtime) applyParentEdge(edge *classifier.ParentEdge) {
	if edge == nil {
		return
	}
	r.Hierarchy.SetParent(edge.ChildID, edge.ParentID)
	r.Store.SetConversationParent(edge.ChildID, edge.ParentID)
}

func convertToolCalls(in []classifier.ToolCall) []store.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]store.ToolCall, len(in))
	for i, tc := range in {
		var params map[string]any
		if len(tc.Parameters) > 0 {
			_ = json.Unmarshal(tc.Parameters, &params)
		}
		out[i] = store.ToolCall{ID: tc.ID, Name: tc.Name, Parameters: params}
		if tc.Result != nil {
			out[i].Result = *tc.Result
			out[i].HasResult = true
		}
	}
	return out
}

func uint64OrZero(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// GetWorkingAgents returns the agents currently working on threadID —
// composed here from the operations tracker rather than duplicated into
// the store, since the tracker is the sole ground truth for "who is
// working where".
func (r *Runtime) GetWorkingAgents(threadID string) []string {
	return r.Operations.WorkingAgents(threadID)
}

// IsEventBusy reports whether any agent is currently working on threadID,
// the store-facing is_event_busy read composed from the operations
// tracker.
func (r *Runtime) IsEventBusy(threadID string) bool {
	return r.Operations.IsBusy(threadID)
}

// StopOperations enqueues a StopOperations command and records the stop
// request against the operations tracker's timeout clock in the same call,
// so callers never forget to arm the 30s "stop pending" window.
func (r *Runtime) StopOperations(projectATag string, eventIDs, agentPubkeys []string, conversationID string) (string, error) {
	id, err := r.Queue.Send(commandqueue.StopOperations{
		ProjectATag: projectATag, EventIDs: eventIDs, AgentPubkeys: agentPubkeys,
	})
	if err != nil {
		return "", err
	}
	r.Operations.RecordStopRequested(conversationID, agentPubkeys)
	return id, nil
}

// ReconcileUnconfirmedPublishes checks the snapshot ledger's unconfirmed
// publishes against the data store's message content, confirming any whose
// content now appears as a signed event for the conversation — the
// crash-restart reconciliation path. Returns the number reconciled.
func (r *Runtime) ReconcileUnconfirmedPublishes(ctx context.Context) (int, error) {
	if r.ledger == nil {
		return 0, nil
	}
	pending, err := r.ledger.UnconfirmedSnapshots(ctx)
	if err != nil {
		return 0, apperrors.Storagef("runtime", "load unconfirmed snapshots: %v", err)
	}

	reconciled := 0
	for _, snap := range pending {
		for _, m := range r.Store.GetMessages(snap.ConversationID) {
			if m.Content == snap.Content {
				r.Drafts.MarkPublishConfirmed(snap.PublishID)
				snap.Confirmed = true
				snap.ConfirmedAt = time.Unix(m.CreatedAt, 0).UTC()
				if err := r.ledger.RecordSnapshot(ctx, snap); err != nil {
					return reconciled, apperrors.Storagef("runtime", "record reconciled snapshot: %v", err)
				}
				reconciled++
				break
			}
		}
	}
	return reconciled, nil
}
