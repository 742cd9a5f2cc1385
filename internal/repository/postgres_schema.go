package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 建表语句（幂等，服务启动时执行）
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS production_metrics (
		metric_id    UUID PRIMARY KEY,
		section_id   TEXT NOT NULL,
		machine_id   TEXT,
		job_order_id TEXT,
		stage        TEXT NOT NULL,
		shift        TEXT NOT NULL,
		target_rate  DOUBLE PRECISION NOT NULL,
		actual_rate  DOUBLE PRECISION NOT NULL,
		efficiency   DOUBLE PRECISION NOT NULL,
		downtime     DOUBLE PRECISION,
		"timestamp"  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_production_metrics_section_ts ON production_metrics (section_id, "timestamp")`,
	`CREATE TABLE IF NOT EXISTS production_targets (
		target_id      UUID PRIMARY KEY,
		section_id     TEXT NOT NULL,
		stage          TEXT NOT NULL,
		shift          TEXT NOT NULL,
		machine_id     TEXT,
		target_rate    DOUBLE PRECISION NOT NULL,
		min_efficiency DOUBLE PRECISION NOT NULL,
		max_downtime   DOUBLE PRECISION NOT NULL,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		effective_from TIMESTAMPTZ NOT NULL,
		effective_to   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_production_targets_match ON production_targets (section_id, stage, shift) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS bottleneck_alerts (
		alert_id            UUID PRIMARY KEY,
		alert_type          TEXT NOT NULL,
		severity            TEXT NOT NULL,
		section_id          TEXT NOT NULL,
		machine_id          TEXT,
		metric_id           UUID,
		title               TEXT NOT NULL,
		description         TEXT NOT NULL,
		affected_job_orders TEXT[] NOT NULL DEFAULT '{}',
		estimated_delay     INTEGER NOT NULL,
		suggested_actions   TEXT[] NOT NULL DEFAULT '{}',
		status              TEXT NOT NULL,
		detected_at         TIMESTAMPTZ NOT NULL,
		acknowledged_at     TIMESTAMPTZ,
		acknowledged_by     TEXT,
		resolved_at         TIMESTAMPTZ,
		resolved_by         TEXT,
		resolution_notes    TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bottleneck_alerts_section_detected ON bottleneck_alerts (section_id, detected_at DESC)`,
	`CREATE TABLE IF NOT EXISTS notification_settings (
		user_id           TEXT PRIMARY KEY,
		email_enabled     BOOLEAN NOT NULL DEFAULT FALSE,
		sms_enabled       BOOLEAN NOT NULL DEFAULT FALSE,
		push_enabled      BOOLEAN NOT NULL DEFAULT FALSE,
		min_severity      TEXT,
		section_ids       TEXT[] NOT NULL DEFAULT '{}',
		alert_types       TEXT[] NOT NULL DEFAULT '{}',
		quiet_hours_start TEXT,
		quiet_hours_end   TEXT,
		extra             JSONB,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema 创建所需的表和索引
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
