package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mpbf-bottleneck/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const alertColumns = `alert_id::text, alert_type, severity, section_id, machine_id, metric_id::text,
	title, description, affected_job_orders, estimated_delay, suggested_actions, status,
	detected_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes`

// PostgresAlertRegistry 瓶颈报警仓库（bottleneck_alerts 表）
// 状态迁移使用带状态条件的 UPDATE ... RETURNING，由数据库保证同一报警只迁移一次
type PostgresAlertRegistry struct {
	db *sql.DB
	ts monotonic
}

func NewPostgresAlertRegistry(db *sql.DB, clock Clock) *PostgresAlertRegistry {
	return &PostgresAlertRegistry{db: db, ts: monotonic{clock: clock}}
}

var _ AlertRegistry = (*PostgresAlertRegistry)(nil)

// execer *sql.DB 和 *sql.Tx 的公共部分
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *PostgresAlertRegistry) Create(ctx context.Context, proposal models.AlertProposal) (*models.BottleneckAlert, error) {
	alert := models.NewAlertFromProposal(uuid.NewString(), proposal, r.ts.next())
	if err := insertAlert(ctx, r.db, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateIfNoneOpen 以 (section, machine, alertType) 为键加事务级 advisory lock，
// 检查未解决报警和插入在同一事务内完成
func (r *PostgresAlertRegistry) CreateIfNoneOpen(ctx context.Context, proposal models.AlertProposal) (*models.BottleneckAlert, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	machine := ""
	if proposal.MachineID != nil {
		machine = *proposal.MachineID
	}
	lockKey := proposal.SectionID + "|" + machine + "|" + string(proposal.AlertType)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
		return nil, false, fmt.Errorf("failed to lock alert condition: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM bottleneck_alerts
		WHERE section_id = $1
		  AND machine_id IS NOT DISTINCT FROM $2
		  AND alert_type = $3
		  AND status IN ('active', 'acknowledged')
		ORDER BY detected_at DESC
		LIMIT 1
	`, alertColumns)
	existing, err := scanAlert(tx.QueryRowContext(ctx, query,
		proposal.SectionID, stringArg(proposal.MachineID), string(proposal.AlertType)))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, err
	}

	alert := models.NewAlertFromProposal(uuid.NewString(), proposal, r.ts.next())
	if err := insertAlert(ctx, tx, &alert); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit alert: %w", err)
	}
	return &alert, true, nil
}

func insertAlert(ctx context.Context, db execer, a *models.BottleneckAlert) error {
	query := `
		INSERT INTO bottleneck_alerts (
			alert_id, alert_type, severity, section_id, machine_id, metric_id,
			title, description, affected_job_orders, estimated_delay, suggested_actions,
			status, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := db.ExecContext(ctx, query,
		a.AlertID,
		string(a.AlertType),
		string(a.Severity),
		a.SectionID,
		stringArg(a.MachineID),
		stringArg(a.MetricID),
		a.Title,
		a.Description,
		pq.Array(a.AffectedJobOrders),
		a.EstimatedDelay,
		pq.Array(a.SuggestedActions),
		string(a.Status),
		a.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bottleneck alert: %w", err)
	}
	return nil
}

func (r *PostgresAlertRegistry) Acknowledge(ctx context.Context, alertID, userID string) (*models.BottleneckAlert, error) {
	if !isUUID(alertID) {
		return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
	}
	query := fmt.Sprintf(`
		UPDATE bottleneck_alerts
		SET status = 'acknowledged', acknowledged_at = $2, acknowledged_by = $3
		WHERE alert_id = $1 AND status = 'active'
		RETURNING %s
	`, alertColumns)
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, r.ts.next(), userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.transitionError(ctx, "acknowledge", alertID)
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresAlertRegistry) Resolve(ctx context.Context, alertID, userID string, notes *string) (*models.BottleneckAlert, error) {
	if !isUUID(alertID) {
		return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
	}
	resolution := ""
	if notes != nil {
		resolution = *notes
	}
	query := fmt.Sprintf(`
		UPDATE bottleneck_alerts
		SET status = 'resolved', resolved_at = $2, resolved_by = $3, resolution_notes = $4
		WHERE alert_id = $1 AND status IN ('active', 'acknowledged')
		RETURNING %s
	`, alertColumns)
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID, r.ts.next(), userID, resolution))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.transitionError(ctx, "resolve", alertID)
		}
		return nil, err
	}
	return a, nil
}

// transitionError 条件更新未命中时，区分报警不存在和状态冲突
func (r *PostgresAlertRegistry) transitionError(ctx context.Context, op, alertID string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM bottleneck_alerts WHERE alert_id = $1`, alertID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
		}
		return fmt.Errorf("failed to read alert status: %w", err)
	}
	return fmt.Errorf("%s alert_id=%s in status %s: %w", op, alertID, status, models.ErrAlertStateConflict)
}

func (r *PostgresAlertRegistry) Get(ctx context.Context, alertID string) (*models.BottleneckAlert, error) {
	if !isUUID(alertID) {
		return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
	}
	query := fmt.Sprintf(`SELECT %s FROM bottleneck_alerts WHERE alert_id = $1`, alertColumns)
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresAlertRegistry) List(ctx context.Context) ([]models.BottleneckAlert, error) {
	return r.Query(ctx, models.AlertFilters{})
}

func (r *PostgresAlertRegistry) ListActive(ctx context.Context) ([]models.BottleneckAlert, error) {
	status := models.AlertStatusActive
	return r.Query(ctx, models.AlertFilters{Status: &status})
}

func (r *PostgresAlertRegistry) ListBySection(ctx context.Context, sectionID string) ([]models.BottleneckAlert, error) {
	return r.Query(ctx, models.AlertFilters{SectionID: &sectionID})
}

func (r *PostgresAlertRegistry) Query(ctx context.Context, filters models.AlertFilters) ([]models.BottleneckAlert, error) {
	var b whereBuilder
	if filters.Status != nil {
		b.add("status = $%d", string(*filters.Status))
	}
	if filters.SectionID != nil {
		b.add("section_id = $%d", *filters.SectionID)
	}
	if filters.MachineID != nil {
		b.add("machine_id = $%d", *filters.MachineID)
	}
	if filters.Severity != nil {
		b.add("severity = $%d", string(*filters.Severity))
	}
	if filters.AlertType != nil {
		b.add("alert_type = $%d", string(*filters.AlertType))
	}
	if filters.StartTime != nil {
		b.add("detected_at >= $%d", *filters.StartTime)
	}
	if filters.EndTime != nil {
		b.add("detected_at <= $%d", *filters.EndTime)
	}

	query := fmt.Sprintf(`SELECT %s FROM bottleneck_alerts %s ORDER BY detected_at DESC, alert_id DESC`,
		alertColumns, b.clause())

	rows, err := r.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bottleneck alerts: %w", err)
	}
	defer rows.Close()

	out := []models.BottleneckAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bottleneck alerts: %w", err)
	}
	return out, nil
}

func scanAlert(row rowScanner) (*models.BottleneckAlert, error) {
	var (
		a                               models.BottleneckAlert
		alertType, severity, status     string
		machineID, metricID             sql.NullString
		acknowledgedBy, resolvedBy      sql.NullString
		resolutionNotes                 sql.NullString
		acknowledgedAt, resolvedAt      sql.NullTime
		affectedJobOrders, suggestedAct pq.StringArray
	)
	err := row.Scan(
		&a.AlertID,
		&alertType,
		&severity,
		&a.SectionID,
		&machineID,
		&metricID,
		&a.Title,
		&a.Description,
		&affectedJobOrders,
		&a.EstimatedDelay,
		&suggestedAct,
		&status,
		&a.DetectedAt,
		&acknowledgedAt,
		&acknowledgedBy,
		&resolvedAt,
		&resolvedBy,
		&resolutionNotes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan bottleneck alert: %w", err)
	}
	a.AlertType = models.AlertType(alertType)
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.MachineID = nullString(machineID)
	a.MetricID = nullString(metricID)
	a.AffectedJobOrders = append([]string{}, affectedJobOrders...)
	a.SuggestedActions = append([]string{}, suggestedAct...)
	a.DetectedAt = a.DetectedAt.UTC()
	a.AcknowledgedAt = nullTime(acknowledgedAt)
	a.AcknowledgedBy = nullString(acknowledgedBy)
	a.ResolvedAt = nullTime(resolvedAt)
	a.ResolvedBy = nullString(resolvedBy)
	a.ResolutionNotes = nullString(resolutionNotes)
	return &a, nil
}
