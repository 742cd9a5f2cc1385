package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mpbf-bottleneck/internal/models"

	"github.com/google/uuid"
)

const targetColumns = `target_id::text, section_id, stage, shift, machine_id,
	target_rate, min_efficiency, max_downtime, is_active, effective_from, effective_to`

// PostgresTargetRegistry 生产目标仓库（production_targets 表）
type PostgresTargetRegistry struct {
	db    *sql.DB
	clock Clock
}

func NewPostgresTargetRegistry(db *sql.DB, clock Clock) *PostgresTargetRegistry {
	return &PostgresTargetRegistry{db: db, clock: clock}
}

var _ TargetRegistry = (*PostgresTargetRegistry)(nil)

func (r *PostgresTargetRegistry) ListActive(ctx context.Context) ([]models.ProductionTarget, error) {
	return r.list(ctx, "WHERE is_active")
}

func (r *PostgresTargetRegistry) ListActiveBySection(ctx context.Context, sectionID string) ([]models.ProductionTarget, error) {
	return r.list(ctx, "WHERE is_active AND section_id = $1", sectionID)
}

// ActiveSnapshot 单条语句读取，结果为同一时刻的一致快照
func (r *PostgresTargetRegistry) ActiveSnapshot(ctx context.Context, sectionID string, stage models.Stage, shift models.Shift) ([]models.ProductionTarget, error) {
	return r.list(ctx, "WHERE is_active AND section_id = $1 AND stage = $2 AND shift = $3",
		sectionID, string(stage), string(shift))
}

func (r *PostgresTargetRegistry) list(ctx context.Context, where string, args ...interface{}) ([]models.ProductionTarget, error) {
	query := fmt.Sprintf(`SELECT %s FROM production_targets %s ORDER BY effective_from ASC, target_id ASC`,
		targetColumns, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query production targets: %w", err)
	}
	defer rows.Close()

	out := []models.ProductionTarget{}
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate production targets: %w", err)
	}
	return out, nil
}

func (r *PostgresTargetRegistry) Get(ctx context.Context, targetID string) (*models.ProductionTarget, error) {
	if !isUUID(targetID) {
		return nil, fmt.Errorf("target_id=%s: %w", targetID, models.ErrTargetNotFound)
	}
	query := fmt.Sprintf(`SELECT %s FROM production_targets WHERE target_id = $1`, targetColumns)
	t, err := scanTarget(r.db.QueryRowContext(ctx, query, targetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("target_id=%s: %w", targetID, models.ErrTargetNotFound)
		}
		return nil, err
	}
	return t, nil
}

func (r *PostgresTargetRegistry) Create(ctx context.Context, input models.TargetInput) (*models.ProductionTarget, error) {
	t := models.ProductionTarget{
		TargetID:      uuid.NewString(),
		SectionID:     input.SectionID,
		Stage:         input.Stage,
		Shift:         input.Shift,
		MachineID:     input.MachineID,
		TargetRate:    input.TargetRate,
		MinEfficiency: input.MinEfficiency,
		MaxDowntime:   input.MaxDowntime,
		IsActive:      true,
		EffectiveFrom: r.clock.stamp(),
	}.Clone()

	query := `
		INSERT INTO production_targets (
			target_id, section_id, stage, shift, machine_id,
			target_rate, min_efficiency, max_downtime, is_active, effective_from, effective_to
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULL)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.TargetID,
		t.SectionID,
		string(t.Stage),
		string(t.Shift),
		stringArg(t.MachineID),
		t.TargetRate,
		t.MinEfficiency,
		t.MaxDowntime,
		t.IsActive,
		t.EffectiveFrom,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert production target: %w", err)
	}
	return &t, nil
}

// Update 在事务中 SELECT ... FOR UPDATE 后整行写回，并发更新互不覆盖
func (r *PostgresTargetRegistry) Update(ctx context.Context, targetID string, update models.TargetUpdate) (*models.ProductionTarget, error) {
	if !isUUID(targetID) {
		return nil, fmt.Errorf("target_id=%s: %w", targetID, models.ErrTargetNotFound)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM production_targets WHERE target_id = $1 FOR UPDATE`, targetColumns)
	t, err := scanTarget(tx.QueryRowContext(ctx, query, targetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("target_id=%s: %w", targetID, models.ErrTargetNotFound)
		}
		return nil, err
	}

	update.ApplyTo(t, r.clock.stamp())

	_, err = tx.ExecContext(ctx, `
		UPDATE production_targets
		SET section_id = $2, stage = $3, shift = $4, machine_id = $5,
			target_rate = $6, min_efficiency = $7, max_downtime = $8,
			is_active = $9, effective_to = $10
		WHERE target_id = $1
	`,
		t.TargetID,
		t.SectionID,
		string(t.Stage),
		string(t.Shift),
		stringArg(t.MachineID),
		t.TargetRate,
		t.MinEfficiency,
		t.MaxDowntime,
		t.IsActive,
		timeArg(t.EffectiveTo),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update production target: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit target update: %w", err)
	}
	return t, nil
}

func scanTarget(row rowScanner) (*models.ProductionTarget, error) {
	var (
		t            models.ProductionTarget
		stage, shift string
		machineID    sql.NullString
		effectiveTo  sql.NullTime
	)
	err := row.Scan(
		&t.TargetID,
		&t.SectionID,
		&stage,
		&shift,
		&machineID,
		&t.TargetRate,
		&t.MinEfficiency,
		&t.MaxDowntime,
		&t.IsActive,
		&t.EffectiveFrom,
		&effectiveTo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan production target: %w", err)
	}
	t.Stage = models.Stage(stage)
	t.Shift = models.Shift(shift)
	t.MachineID = nullString(machineID)
	t.EffectiveFrom = t.EffectiveFrom.UTC()
	t.EffectiveTo = nullTime(effectiveTo)
	return &t, nil
}
