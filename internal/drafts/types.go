package drafts

import "time"

// State is a draft's position in the send state machine:
//
//	Typing -> PendingSend -> SentAwaiting -> Confirmed
//	PendingSend | SentAwaiting -> Typing (wire send failure)
type State int

const (
	// Typing is the initial and failure-recovery state: the user is
	// composing, nothing has been sent.
	Typing State = iota
	// PendingSend means the send button was pressed and a publish is in
	// flight to the relay client, but the wire hasn't confirmed it yet.
	PendingSend
	// SentAwaiting means the wire accepted the send (a publish id was
	// assigned) and the draft is waiting for the relay to echo the signed
	// event back.
	SentAwaiting
	// Confirmed means the relay echo arrived: the signed event matching
	// this draft's publish snapshot has been observed.
	Confirmed
)

func (s State) String() string {
	switch s {
	case Typing:
		return "typing"
	case PendingSend:
		return "pending_send"
	case SentAwaiting:
		return "sent_awaiting"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// confirmedGracePeriod is how long a Confirmed draft is kept in the live
// working set before it becomes eligible for archival.
const confirmedGracePeriod = 24 * time.Hour

// ChatDraft is the in-progress input for one conversation, or for a
// pre-conversation compose session identified by a project a-tag plus a
// session id before the first message is confirmed and a real conversation
// id is known.
type ChatDraft struct {
	Key            string // conversation id, or "sessionATag/sessionID" pre-conversation
	ConversationID string // empty until migrated from a pre-conversation session
	ProjectATag    string
	SessionID      string // set only for pre-conversation drafts
	Content        string
	AgentPubkey    string
	HasAgent       bool
	Branch         string
	State          State
	PublishID      string // set when ConfirmSendAccepted moves the draft to SentAwaiting
	UpdatedAt      time.Time
	ConfirmedAt    time.Time
	LastError      string
}

// eligibleForArchive reports whether a Confirmed draft has sat past its
// grace period and should be moved to the archive file.
func (d ChatDraft) eligibleForArchive(now time.Time) bool {
	return d.State == Confirmed && !d.ConfirmedAt.IsZero() && now.Sub(d.ConfirmedAt) >= confirmedGracePeriod
}

// PublishSnapshot records the exact content sent under a given publish id,
// so a crash-and-restart can reconcile by checking whether a signed event
// with matching content now exists for the conversation.
type PublishSnapshot struct {
	PublishID      string
	ConversationID string
	ProjectATag    string
	Content        string
	SentAt         time.Time
	Confirmed      bool
	ConfirmedAt    time.Time
}

// File is the on-disk JSON shape of the live draft file: a version tag,
// the live draft map, a versioned history list (kept for
// debugging/undo, append-only), an archived list, and the publish
// snapshots the Store holds in memory, confirmed ones included.
type File struct {
	Version          int                  `json:"version"`
	Drafts           map[string]ChatDraft `json:"drafts"`
	Versioned        []ChatDraft          `json:"versioned"`
	Archived         []ChatDraft          `json:"archived"`
	PendingPublishes []PublishSnapshot    `json:"pending_publishes"`
}

// CurrentFileVersion is the on-disk format version this package reads and
// writes.
const CurrentFileVersion = 1
