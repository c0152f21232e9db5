package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables and indexes this service owns. Statements
// are idempotent so startup can always run them.
func EnsureSchema(ctx context.Context, pool Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS triggers (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    source_type TEXT NOT NULL,
    source_config JSONB NOT NULL,
    targets JSONB NOT NULL,
    output_type TEXT NOT NULL,
    output_config JSONB,
    dedupe_hash TEXT NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    qstash_schedule_id TEXT,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_triggers_org_dedupe ON triggers (organization_id, dedupe_hash);`,
		`CREATE TABLE IF NOT EXISTS lookback_windows (
    trigger_id TEXT PRIMARY KEY REFERENCES triggers(id) ON DELETE CASCADE,
    win TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS generated_posts (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    title TEXT NOT NULL,
    markdown TEXT NOT NULL,
    content_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_generated_posts_org ON generated_posts (organization_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS workflow_checkpoints (
    run_id TEXT NOT NULL,
    step TEXT NOT NULL,
    output JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (run_id, step)
);`,
		`CREATE TABLE IF NOT EXISTS repositories (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    owner TEXT NOT NULL,
    repo TEXT NOT NULL,
    integration_id TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS brand_settings (
    organization_id TEXT PRIMARY KEY,
    tone TEXT NOT NULL DEFAULT '',
    company_name TEXT NOT NULL DEFAULT '',
    company_description TEXT NOT NULL DEFAULT '',
    audience TEXT NOT NULL DEFAULT '',
    custom_instructions TEXT NOT NULL DEFAULT ''
);`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
