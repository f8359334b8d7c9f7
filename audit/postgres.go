package audit

import (
	"context"
	"fmt"

	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ core.AuditSink = (*PostgresSink)(nil)

const (
	createAuditTableQuery = `
		CREATE TABLE IF NOT EXISTS %[1]s (
			id               UUID PRIMARY KEY,
			request_id       TEXT NOT NULL,
			user_id          TEXT NOT NULL,
			content_type     TEXT NOT NULL,
			role             TEXT NOT NULL,
			original_content TEXT NOT NULL,
			final_content    TEXT NOT NULL DEFAULT '',
			validation       JSONB NOT NULL,
			action           TEXT NOT NULL,
			reasons          TEXT[],
			created_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_request_id_idx ON %[1]s (request_id);
	`
	insertAuditEntryQuery = `
		INSERT INTO %s (
			id, request_id, user_id, content_type, role,
			original_content, final_content, validation, action, reasons, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	selectByRequestQuery = `
		SELECT
			id, request_id, user_id, content_type, role,
			original_content, final_content, validation, action, reasons, created_at
		FROM %s
		WHERE request_id = $1
		ORDER BY created_at
	`
)

// DB is the subset of *pgxpool.Pool used by PostgresSink.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresOptions configures a PostgresSink.
type PostgresOptions struct {
	// Table is the audit table name. It is interpolated into SQL and must be
	// a trusted identifier.
	Table  string
	Logger logging.Logger
}

// PostgresSink appends entries to a Postgres table. Re-appending an entry
// with the same ID is a no-op, so a retried Append never duplicates a row.
type PostgresSink struct {
	db   DB
	opts PostgresOptions
}

// NewPostgresSink wraps db, usually a *pgxpool.Pool.
func NewPostgresSink(db DB, optFns ...func(o *PostgresOptions)) *PostgresSink {
	opts := PostgresOptions{Table: "audit_entries", Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &PostgresSink{db: db, opts: opts}
}

// EnsureSchema creates the audit table and its index if missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createAuditTableQuery, s.opts.Table)); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}

// Append implements core.AuditSink.
func (s *PostgresSink) Append(ctx context.Context, e core.AuditEntry) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(insertAuditEntryQuery, s.opts.Table),
		e.ID,
		e.RequestID,
		e.UserID,
		e.ContentType,
		string(e.Role),
		e.OriginalContent,
		e.FinalContent,
		e.Validation,
		string(e.Action),
		e.Reasons,
		e.Timestamp,
	)
	if err != nil {
		s.opts.Logger.Error("Failed to append audit entry", "audit_id", e.ID, "request_id", e.RequestID, "error", err)
		return fmt.Errorf("insert audit entry %s: %w", e.ID, err)
	}
	s.opts.Logger.Debug("Audit entry appended", "audit_id", e.ID, "rows_affected", tag.RowsAffected())
	return nil
}

// ByRequest returns the entries recorded for requestID, oldest first.
func (s *PostgresSink) ByRequest(ctx context.Context, requestID string) ([]core.AuditEntry, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(selectByRequestQuery, s.opts.Table), requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []core.AuditEntry
	for rows.Next() {
		var (
			e            core.AuditEntry
			role, action string
		)
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.UserID, &e.ContentType, &role,
			&e.OriginalContent, &e.FinalContent, &e.Validation, &action, &e.Reasons, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Role = core.Role(role)
		e.Action = core.AuditAction(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}
