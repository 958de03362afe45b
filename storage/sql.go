package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/youssefsiam38/agentcore/history"
)

// SQLArchive implements Archiver on database/sql with the lib/pq driver.
type SQLArchive struct {
	db    *sql.DB
	table string
	ident string
}

var _ Archiver = (*SQLArchive)(nil)

// OpenSQLArchive opens a lib/pq connection to dsn and wraps it.
func OpenSQLArchive(dsn, table string) (*SQLArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewSQLArchive(db, table)
}

// NewSQLArchive creates an archive over db. An empty table selects
// DefaultTable.
func NewSQLArchive(db *sql.DB, table string) (*SQLArchive, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table == "" {
		table = DefaultTable
	}
	return &SQLArchive{
		db:    db,
		table: table,
		ident: pq.QuoteIdentifier(table),
	}, nil
}

// Table returns the archive table name.
func (s *SQLArchive) Table() string { return s.table }

// DB returns the underlying handle.
func (s *SQLArchive) DB() *sql.DB { return s.db }

// EnsureSchema creates the archive table if it does not exist.
func (s *SQLArchive) EnsureSchema(ctx context.Context) error {
	index := pq.QuoteIdentifier(s.table + "_session_idx")
	if _, err := s.db.ExecContext(ctx, schemaSQL(s.ident, index)); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Archive stores entries inside one transaction with a prepared insert.
func (s *SQLArchive) Archive(ctx context.Context, sessionID string, entries []history.Entry) (err error) {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int
	if err = tx.QueryRowContext(ctx, nextPositionSQL(s.ident), sessionID).Scan(&next); err != nil {
		return fmt.Errorf("failed to read archive position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(s.ident))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		r, encErr := encode(sessionID, next+i, e)
		if encErr != nil {
			err = encErr
			return err
		}
		if _, err = stmt.ExecContext(ctx, r.id, r.sessionID, r.entryID, r.parentID, r.role, r.position,
			string(r.content), string(r.metadata)); err != nil {
			return fmt.Errorf("failed to archive entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// Archived returns the newest limit records of a session in archive order.
func (s *SQLArchive) Archived(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, archivedSQL(s.ident), sessionID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	return collectSQL(rows)
}

// Lookup returns the records of the given entry ids.
func (s *SQLArchive) Lookup(ctx context.Context, sessionID string, entryIDs []string) ([]Record, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, lookupSQL(s.ident), sessionID, pq.Array(entryIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	return collectSQL(rows)
}

// Purge deletes every record of a session.
func (s *SQLArchive) Purge(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, purgeSQL(s.ident), sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archive: %w", err)
	}
	return res.RowsAffected()
}

func collectSQL(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r row
		var parent sql.NullString
		var archivedAt time.Time
		if err := rows.Scan(&r.id, &r.sessionID, &r.entryID, &parent, &r.role, &r.position,
			&r.content, &r.metadata, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		if parent.Valid {
			r.parentID = &parent.String
		}
		rec, err := decode(r, archivedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read archive rows: %w", err)
	}
	return out, nil
}
