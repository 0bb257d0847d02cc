package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates all tables. The advisory lock serializes bootstrap
// DDL across api/worker/monitor startups.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	company_id TEXT,
	doc_type TEXT NOT NULL,
	status TEXT NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	processing_path TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS extractions (
	document_id TEXT PRIMARY KEY REFERENCES documents(id),
	fields JSONB NOT NULL,
	stats JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS processing_queue (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	processing_path TEXT NOT NULL,
	priority INT NOT NULL,
	entered_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	completed_at TIMESTAMPTZ,
	review_notes TEXT
);

CREATE TABLE IF NOT EXISTS corrections (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	field_name TEXT NOT NULL,
	original_value TEXT,
	corrected_value TEXT NOT NULL,
	correction_type TEXT NOT NULL,
	corrected_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS escalations (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	reason TEXT NOT NULL,
	reason_detail TEXT,
	status TEXT NOT NULL,
	escalated_by TEXT NOT NULL,
	resolved_by TEXT,
	resolved_at TIMESTAMPTZ,
	resolution TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS review_records (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id),
	escalation_id TEXT NOT NULL REFERENCES escalations(id),
	reviewed_by TEXT NOT NULL,
	decision TEXT NOT NULL,
	notes TEXT,
	changes JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS mapping_rules (
	id TEXT PRIMARY KEY,
	company_id TEXT,
	field_name TEXT NOT NULL,
	field_label TEXT NOT NULL,
	pattern JSONB NOT NULL,
	priority INT NOT NULL DEFAULT 0,
	is_required BOOLEAN NOT NULL DEFAULT FALSE,
	validation_pattern TEXT,
	category TEXT,
	version INT NOT NULL DEFAULT 1,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS mapping_rule_versions (
	rule_id TEXT NOT NULL REFERENCES mapping_rules(id),
	version INT NOT NULL,
	pattern JSONB NOT NULL,
	validation_pattern TEXT,
	note TEXT,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (rule_id, version)
);

CREATE TABLE IF NOT EXISTS rule_applications (
	id TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL,
	rule_version INT NOT NULL DEFAULT 1,
	document_id TEXT NOT NULL,
	field_name TEXT NOT NULL,
	extracted_value TEXT NOT NULL,
	is_accurate BOOLEAN,
	verified_by TEXT,
	verified_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rollback_logs (
	id TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL REFERENCES mapping_rules(id),
	from_version INT NOT NULL,
	to_version INT NOT NULL,
	trigger TEXT NOT NULL,
	reason TEXT NOT NULL,
	accuracy_before DOUBLE PRECISION NOT NULL,
	accuracy_after DOUBLE PRECISION NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rule_suggestions (
	id TEXT PRIMARY KEY,
	company_id TEXT NOT NULL,
	field_name TEXT NOT NULL,
	pattern JSONB,
	suggested_value TEXT,
	source_document_id TEXT,
	source_escalation_id TEXT,
	sample_count INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_queue_dequeue ON processing_queue(status, priority DESC, entered_at ASC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_escalations_one_open ON escalations(document_id) WHERE status = 'open';
CREATE INDEX IF NOT EXISTS idx_corrections_field_created ON corrections(field_name, created_at);
CREATE INDEX IF NOT EXISTS idx_applications_rule_version ON rule_applications(rule_id, rule_version, created_at);
CREATE INDEX IF NOT EXISTS idx_applications_document_field ON rule_applications(document_id, field_name);
CREATE INDEX IF NOT EXISTS idx_rollback_logs_rule ON rollback_logs(rule_id, created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
