// Package storage archives history entries that compression removed from
// the live conversation, so they stay searchable and exportable.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/youssefsiam38/agentcore/history"
	"github.com/youssefsiam38/agentcore/types"
)

// DefaultTable is the archive table name.
const DefaultTable = "agentcore_history_archive"

// ErrSessionRequired is returned when an archive call has no session id.
var ErrSessionRequired = errors.New("session id is required")

// Archiver persists entries removed from a conversation.
type Archiver interface {
	// EnsureSchema creates the archive table and its index if missing.
	EnsureSchema(ctx context.Context) error

	// Archive stores entries for sessionID in one transaction, in order.
	Archive(ctx context.Context, sessionID string, entries []history.Entry) error

	// Archived returns the newest limit records of sessionID in archive
	// order. A limit of 0 returns all of them.
	Archived(ctx context.Context, sessionID string, limit int) ([]Record, error)

	// Lookup returns the records holding the given history entry ids.
	Lookup(ctx context.Context, sessionID string, entryIDs []string) ([]Record, error)

	// Purge deletes every record of sessionID and reports how many went.
	Purge(ctx context.Context, sessionID string) (int64, error)
}

// Record is one archived history entry.
type Record struct {
	ID         string
	SessionID  string
	Position   int
	ArchivedAt time.Time
	Entry      history.Entry
}

// row is the column form of a record.
type row struct {
	id        string
	sessionID string
	entryID   string
	parentID  *string
	role      string
	position  int
	content   []byte
	metadata  []byte
}

func encode(sessionID string, position int, e history.Entry) (row, error) {
	content, err := json.Marshal(e.Message)
	if err != nil {
		return row{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return row{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	r := row{
		id:        uuid.New().String(),
		sessionID: sessionID,
		entryID:   e.ID,
		role:      string(e.Message.Role),
		position:  position,
		content:   content,
		metadata:  metadata,
	}
	if e.ParentID != "" {
		parent := e.ParentID
		r.parentID = &parent
	}
	return r, nil
}

func decode(r row, archivedAt time.Time) (Record, error) {
	var msg types.Message
	if err := json.Unmarshal(r.content, &msg); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	var meta history.Metadata
	if err := json.Unmarshal(r.metadata, &meta); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	msg.Role = types.Role(r.role)

	rec := Record{
		ID:         r.id,
		SessionID:  r.sessionID,
		Position:   r.position,
		ArchivedAt: archivedAt,
		Entry: history.Entry{
			ID:       r.entryID,
			Message:  msg,
			Metadata: meta,
		},
	}
	if r.parentID != nil {
		rec.Entry.ParentID = *r.parentID
	}
	return rec, nil
}

// schemaSQL returns the DDL for an already-quoted table identifier.
func schemaSQL(table, index string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          text PRIMARY KEY,
			session_id  text NOT NULL,
			entry_id    text NOT NULL,
			parent_id   text,
			role        text NOT NULL,
			position    integer NOT NULL,
			content     jsonb NOT NULL,
			metadata    jsonb NOT NULL DEFAULT '{}',
			archived_at timestamptz NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS %s ON %s (session_id, archived_at, position)
	`, table, index, table)
}

// nextPositionSQL selects the position after the session's last record.
func nextPositionSQL(table string) string {
	return fmt.Sprintf(`SELECT COALESCE(MAX(position) + 1, 0) FROM %s WHERE session_id = $1`, table)
}

func insertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, session_id, entry_id, parent_id, role, position, content, metadata, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, table)
}

func archivedSQL(table string) string {
	return fmt.Sprintf(`
		SELECT id, session_id, entry_id, parent_id, role, position, content, metadata, archived_at
		FROM (
			SELECT * FROM %s
			WHERE session_id = $1
			ORDER BY position DESC
			LIMIT $2
		) newest
		ORDER BY position ASC
	`, table)
}

func lookupSQL(table string) string {
	return fmt.Sprintf(`
		SELECT id, session_id, entry_id, parent_id, role, position, content, metadata, archived_at
		FROM %s
		WHERE session_id = $1 AND entry_id = ANY($2)
		ORDER BY position ASC
	`, table)
}

func purgeSQL(table string) string {
	return fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, table)
}

// limitArg maps a limit of 0 to no limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
