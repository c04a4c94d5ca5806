package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/accruals-router/internal/core/domain"
)

// MessageLedger stores the ids of mail messages whose attachments were all
// handled, so later runs can skip them without reading the logs.
type MessageLedger struct {
	db *sql.DB
}

func NewMessageLedger(db *sql.DB) *MessageLedger {
	return &MessageLedger{db: db}
}

// OpenDB opens a pgx-backed pool sized for one intake run per company.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open message ledger: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping message ledger: %w", err)
	}
	return db, nil
}

const schemaLockKey int64 = 0x61636372 // "accr"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS processed_messages (
	company TEXT NOT NULL,
	message_id TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (company, message_id)
)`,
	`CREATE INDEX IF NOT EXISTS processed_messages_processed_at_idx ON processed_messages (processed_at)`,
}

// EnsureSchema applies migrations under an advisory lock so api and worker
// can start together.
func (r *MessageLedger) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("lock migration: %w", err)
	}
	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}

func (r *MessageLedger) ProcessedMessageIDs(ctx context.Context, company string) (map[string]struct{}, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT message_id
FROM processed_messages
WHERE company = $1
`, company)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list processed messages", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed message: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed messages: %w", err)
	}
	return out, nil
}

// MarkProcessed is idempotent; marking a message twice keeps the first time.
func (r *MessageLedger) MarkProcessed(ctx context.Context, company, messageID string, at time.Time) error {
	if strings.TrimSpace(messageID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "mark message processed", fmt.Errorf("message id is required"))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO processed_messages (company, message_id, processed_at)
VALUES ($1,$2,$3)
ON CONFLICT (company, message_id) DO NOTHING
`, company, messageID, at.UTC())
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "mark message processed", err)
	}
	return nil
}
