package database

import (
	"context"
	"fmt"

	"github.com/MaanVader/Chack/application/ports"
)

// Schema creates the assessment lifecycle tables. Statements are idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS assessments (
		id                 TEXT PRIMARY KEY,
		project_id         TEXT NOT NULL,
		name               TEXT NOT NULL,
		description        TEXT,
		type               TEXT NOT NULL CHECK (type IN ('blackbox', 'whitebox')),
		target_type        TEXT NOT NULL CHECK (target_type IN ('web_app', 'api', 'mobile', 'network')),
		target_url         TEXT,
		status             TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
		error_message      TEXT,
		created_by_user_id TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		started_at         TIMESTAMPTZ,
		completed_at       TIMESTAMPTZ,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assessments_project ON assessments (project_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS findings (
		id                 TEXT PRIMARY KEY,
		assessment_id      TEXT NOT NULL REFERENCES assessments (id),
		title              TEXT NOT NULL,
		description        TEXT NOT NULL DEFAULT '',
		severity           TEXT NOT NULL CHECK (severity IN ('critical', 'high', 'medium', 'low', 'info')),
		status             TEXT NOT NULL CHECK (status IN ('open', 'confirmed', 'false_positive', 'resolved')),
		cwe_id             TEXT,
		cvss_score         DOUBLE PRECISION CHECK (cvss_score IS NULL OR (cvss_score >= 0 AND cvss_score <= 10)),
		location           TEXT,
		evidence           TEXT,
		remediation        TEXT,
		created_by_user_id TEXT NOT NULL DEFAULT '',
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_findings_assessment ON findings (assessment_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS results (
		id            TEXT PRIMARY KEY,
		assessment_id TEXT NOT NULL REFERENCES assessments (id),
		type          TEXT NOT NULL,
		data          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_results_assessment ON results (assessment_id, created_at)`,
}

// Migrate applies Schema in a single transaction.
func Migrate(ctx context.Context, db ports.Database) error {
	return db.Transaction(ctx, func(tx ports.Transaction) error {
		for i, stmt := range Schema {
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return fmt.Errorf("migration step %d: %w", i+1, err)
			}
		}
		return nil
	})
}
