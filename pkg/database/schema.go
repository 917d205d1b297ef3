package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 建表语句，可重复执行
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('organization', 'council')),
		name TEXT NOT NULL,
		lifecycle_stage TEXT NOT NULL DEFAULT 'new' CHECK (lifecycle_stage IN ('new', 'established')),
		recognition_status TEXT NOT NULL DEFAULT 'unrecognized' CHECK (recognition_status IN ('unrecognized', 'recognized')),
		recognition_updated_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS event_batches (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		title TEXT NOT NULL,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		batch_id TEXT REFERENCES event_batches(id),
		document_type TEXT NOT NULL,
		file_path TEXT NOT NULL,
		submitted_by TEXT,
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		supersedes_document_id TEXT UNIQUE REFERENCES documents(id),
		adviser_decision TEXT NOT NULL DEFAULT 'pending' CHECK (adviser_decision IN ('pending', 'approved', 'rejected')),
		adviser_decided_at TIMESTAMPTZ,
		adviser_decider_id TEXT,
		osas_decision TEXT NOT NULL DEFAULT 'pending' CHECK (osas_decision IN ('pending', 'approved', 'rejected')),
		osas_decided_at TIMESTAMPTZ,
		osas_decider_id TEXT,
		rejection_reason TEXT,
		rejected_stage TEXT,
		resubmission_deadline TIMESTAMPTZ,
		deadline_set_by TEXT,
		deadline_set_at TIMESTAMPTZ,
		CONSTRAINT osas_after_adviser CHECK (osas_decision = 'pending' OR adviser_decision = 'approved')
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id) WHERE batch_id IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_documents_batch ON documents(batch_id)`,
	`CREATE INDEX IF NOT EXISTS idx_event_batches_owner_created ON event_batches(owner_id, created_at DESC)`,
}

// Migrate applies the schema in one transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}
