package drafts

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SnapshotLedger is the sqlite-backed append-only record of publish
// snapshots and archived drafts, indexed for lookup by conversation id and
// by archive time. The JSON draft file stays the source of truth for the
// *live* draft map; this ledger backs the append-only history a
// live-only JSON file can't index efficiently.
type SnapshotLedger struct {
	db *sqlx.DB
}

// OpenSnapshotLedger opens (creating if needed) the sqlite database at
// path and ensures its schema.
func OpenSnapshotLedger(path string) (*SnapshotLedger, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot ledger: %w", err)
	}
	l := &SnapshotLedger{db: db}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SnapshotLedger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS publish_snapshots (
		publish_id      TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		project_a_tag   TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL,
		sent_at         TIMESTAMP NOT NULL,
		confirmed       INTEGER NOT NULL DEFAULT 0,
		confirmed_at    TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_publish_snapshots_conversation
		ON publish_snapshots(conversation_id);

	CREATE TABLE IF NOT EXISTS archived_drafts (
		draft_key       TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL DEFAULT '',
		content         TEXT NOT NULL,
		confirmed_at    TIMESTAMP,
		archived_at     TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_archived_drafts_archived_at
		ON archived_drafts(archived_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the underlying database handle.
func (l *SnapshotLedger) Close() error {
	return l.db.Close()
}

// RecordSnapshot appends or replaces a publish snapshot row.
func (l *SnapshotLedger) RecordSnapshot(ctx context.Context, snap PublishSnapshot) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO publish_snapshots (publish_id, conversation_id, project_a_tag, content, sent_at, confirmed, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(publish_id) DO UPDATE SET
			confirmed = excluded.confirmed,
			confirmed_at = excluded.confirmed_at`,
		snap.PublishID, snap.ConversationID, snap.ProjectATag, snap.Content, snap.SentAt,
		boolToInt(snap.Confirmed), nullableTime(snap.ConfirmedAt),
	)
	if err != nil {
		return fmt.Errorf("record publish snapshot: %w", err)
	}
	return nil
}

// snapshotRow mirrors the publish_snapshots table for sqlx scanning.
type snapshotRow struct {
	PublishID      string     `db:"publish_id"`
	ConversationID string     `db:"conversation_id"`
	ProjectATag    string     `db:"project_a_tag"`
	Content        string     `db:"content"`
	SentAt         time.Time  `db:"sent_at"`
	Confirmed      int        `db:"confirmed"`
	ConfirmedAt    *time.Time `db:"confirmed_at"`
}

// UnconfirmedSnapshots returns every snapshot not yet marked confirmed, for
// crash-restart reconciliation against the relay's recent history.
func (l *SnapshotLedger) UnconfirmedSnapshots(ctx context.Context) ([]PublishSnapshot, error) {
	var rows []snapshotRow
	if err := l.db.SelectContext(ctx, &rows,
		`SELECT publish_id, conversation_id, project_a_tag, content, sent_at, confirmed, confirmed_at
		 FROM publish_snapshots WHERE confirmed = 0`); err != nil {
		return nil, fmt.Errorf("query unconfirmed snapshots: %w", err)
	}

	out := make([]PublishSnapshot, 0, len(rows))
	for _, r := range rows {
		snap := PublishSnapshot{
			PublishID:      r.PublishID,
			ConversationID: r.ConversationID,
			ProjectATag:    r.ProjectATag,
			Content:        r.Content,
			SentAt:         r.SentAt,
			Confirmed:      r.Confirmed != 0,
		}
		if r.ConfirmedAt != nil {
			snap.ConfirmedAt = *r.ConfirmedAt
		}
		out = append(out, snap)
	}
	return out, nil
}

// ArchiveDraft appends a Confirmed draft past its grace period to the
// archive table.
func (l *SnapshotLedger) ArchiveDraft(ctx context.Context, d ChatDraft, archivedAt time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO archived_drafts (draft_key, conversation_id, content, confirmed_at, archived_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(draft_key) DO NOTHING`,
		d.Key, d.ConversationID, d.Content, nullableTime(d.ConfirmedAt), archivedAt,
	)
	if err != nil {
		return fmt.Errorf("archive draft: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
