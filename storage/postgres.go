package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/agentcore/history"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction. PgxArchive runs
// its statements inside it instead of opening its own.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PgxArchive implements Archiver on a pgx connection pool.
type PgxArchive struct {
	pool  *pgxpool.Pool
	table string
	ident string
}

var _ Archiver = (*PgxArchive)(nil)

// NewPgxArchive creates an archive over pool. An empty table selects
// DefaultTable.
func NewPgxArchive(pool *pgxpool.Pool, table string) (*PgxArchive, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	return &PgxArchive{
		pool:  pool,
		table: table,
		ident: pgx.Identifier{table}.Sanitize(),
	}, nil
}

// Table returns the archive table name.
func (s *PgxArchive) Table() string { return s.table }

func (s *PgxArchive) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// EnsureSchema creates the archive table if it does not exist.
func (s *PgxArchive) EnsureSchema(ctx context.Context) error {
	index := pgx.Identifier{s.table + "_session_idx"}.Sanitize()
	if _, err := s.getQuerier(ctx).Exec(ctx, schemaSQL(s.ident, index)); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Archive stores entries with a single batch inside one transaction.
func (s *PgxArchive) Archive(ctx context.Context, sessionID string, entries []history.Entry) error {
	if sessionID == "" {
		return ErrSessionRequired
	}
	if len(entries) == 0 {
		return nil
	}

	if tx := TxFromContext(ctx); tx != nil {
		return s.archive(ctx, tx, sessionID, entries)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.archive(ctx, tx, sessionID, entries)
	})
}

func (s *PgxArchive) archive(ctx context.Context, q querier, sessionID string, entries []history.Entry) error {
	var next int
	if err := q.QueryRow(ctx, nextPositionSQL(s.ident), sessionID).Scan(&next); err != nil {
		return fmt.Errorf("failed to read archive position: %w", err)
	}

	batch := &pgx.Batch{}
	query := insertSQL(s.ident)
	for i, e := range entries {
		r, err := encode(sessionID, next+i, e)
		if err != nil {
			return err
		}
		batch.Queue(query, r.id, r.sessionID, r.entryID, r.parentID, r.role, r.position, r.content, r.metadata)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to archive entry: %w", err)
		}
	}
	return results.Close()
}

// Archived returns the newest limit records of a session in archive order.
func (s *PgxArchive) Archived(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	rows, err := s.getQuerier(ctx).Query(ctx, archivedSQL(s.ident), sessionID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	return collect(rows)
}

// Lookup returns the records of the given entry ids.
func (s *PgxArchive) Lookup(ctx context.Context, sessionID string, entryIDs []string) ([]Record, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}
	rows, err := s.getQuerier(ctx).Query(ctx, lookupSQL(s.ident), sessionID, entryIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	return collect(rows)
}

// Purge deletes every record of a session.
func (s *PgxArchive) Purge(ctx context.Context, sessionID string) (int64, error) {
	tag, err := s.getQuerier(ctx).Exec(ctx, purgeSQL(s.ident), sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge archive: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collect(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r row
		var archivedAt time.Time
		if err := rows.Scan(&r.id, &r.sessionID, &r.entryID, &r.parentID, &r.role, &r.position,
			&r.content, &r.metadata, &archivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
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
