package postgres

import (
	"context"
	"fmt"
)

// schema is applied at startup; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stockflow_journal (
		id                 UUID PRIMARY KEY,
		kind               TEXT NOT NULL,
		container_id       BIGINT NOT NULL DEFAULT 0,
		reference          TEXT NOT NULL DEFAULT '',
		state              TEXT NOT NULL DEFAULT '',
		warning            TEXT NOT NULL DEFAULT '',
		error              TEXT NOT NULL DEFAULT '',
		operator           TEXT NOT NULL DEFAULT '',
		request            JSONB,
		request_compressed BYTEA,
		compression_algo   TEXT NOT NULL DEFAULT 'none',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS stockflow_journal_kind_created_idx ON stockflow_journal (kind, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS stockflow_journal_container_idx ON stockflow_journal (container_id) WHERE container_id > 0`,
	`CREATE TABLE IF NOT EXISTS stockflow_journal_phase (
		journal_id  UUID NOT NULL REFERENCES stockflow_journal (id) ON DELETE CASCADE,
		seq         INT NOT NULL,
		phase       TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		duration_ms BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (journal_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS stockflow_idempotency (
		idempotency_key       TEXT PRIMARY KEY,
		operator              TEXT NOT NULL DEFAULT '',
		operation             TEXT NOT NULL,
		status                TEXT NOT NULL,
		request_hash          TEXT NOT NULL,
		response              BYTEA,
		response_status       INT NOT NULL DEFAULT 0,
		response_content_type TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL,
		updated_at            TIMESTAMPTZ NOT NULL,
		expires_at            TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS stockflow_idempotency_expires_idx ON stockflow_idempotency (expires_at)`,
}

// Migrate creates the tables this package uses.
func Migrate(ctx context.Context, txManager *TxManager) error {
	return txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		q := txManager.GetQuerier(ctx)
		for _, stmt := range schema {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}
