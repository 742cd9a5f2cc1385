package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mpbf-bottleneck/internal/models"

	"github.com/google/uuid"
)

const metricColumns = `metric_id::text, section_id, machine_id, job_order_id, stage, shift,
	target_rate, actual_rate, efficiency, downtime, "timestamp"`

// PostgresMetricStore 测量记录仓库（production_metrics 表）
type PostgresMetricStore struct {
	db *sql.DB
	ts monotonic
}

func NewPostgresMetricStore(db *sql.DB, clock Clock) *PostgresMetricStore {
	return &PostgresMetricStore{db: db, ts: monotonic{clock: clock}}
}

var _ MetricStore = (*PostgresMetricStore)(nil)

func (s *PostgresMetricStore) Record(ctx context.Context, input models.MetricInput) (*models.ProductionMetric, error) {
	metric := models.ProductionMetric{
		MetricID:   uuid.NewString(),
		SectionID:  input.SectionID,
		MachineID:  input.MachineID,
		JobOrderID: input.JobOrderID,
		Stage:      input.Stage,
		Shift:      input.Shift,
		TargetRate: input.TargetRate,
		ActualRate: input.ActualRate,
		Efficiency: input.Efficiency,
		Downtime:   input.Downtime,
		Timestamp:  s.ts.next(),
	}.Clone()

	query := `
		INSERT INTO production_metrics (
			metric_id, section_id, machine_id, job_order_id, stage, shift,
			target_rate, actual_rate, efficiency, downtime, "timestamp"
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		metric.MetricID,
		metric.SectionID,
		stringArg(metric.MachineID),
		stringArg(metric.JobOrderID),
		string(metric.Stage),
		string(metric.Shift),
		metric.TargetRate,
		metric.ActualRate,
		metric.Efficiency,
		floatArg(metric.Downtime),
		metric.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert production metric: %w", err)
	}
	return &metric, nil
}

func (s *PostgresMetricStore) List(ctx context.Context) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{})
}

func (s *PostgresMetricStore) BySection(ctx context.Context, sectionID string) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{SectionID: &sectionID})
}

func (s *PostgresMetricStore) ByMachine(ctx context.Context, machineID string) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{MachineID: &machineID})
}

func (s *PostgresMetricStore) ByDateRange(ctx context.Context, start, end time.Time) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{StartTime: &start, EndTime: &end})
}

func (s *PostgresMetricStore) Query(ctx context.Context, filters models.MetricFilters) ([]models.ProductionMetric, error) {
	var b whereBuilder
	if filters.SectionID != nil {
		b.add("section_id = $%d", *filters.SectionID)
	}
	if filters.MachineID != nil {
		b.add("machine_id = $%d", *filters.MachineID)
	}
	if filters.StartTime != nil {
		b.add(`"timestamp" >= $%d`, *filters.StartTime)
	}
	if filters.EndTime != nil {
		b.add(`"timestamp" <= $%d`, *filters.EndTime)
	}

	query := fmt.Sprintf(`SELECT %s FROM production_metrics %s ORDER BY "timestamp" ASC, metric_id ASC`,
		metricColumns, b.clause())

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query production metrics: %w", err)
	}
	defer rows.Close()

	out := []models.ProductionMetric{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate production metrics: %w", err)
	}
	return out, nil
}

func scanMetric(row rowScanner) (*models.ProductionMetric, error) {
	var (
		m                   models.ProductionMetric
		stage, shift        string
		machineID, jobOrder sql.NullString
		downtime            sql.NullFloat64
	)
	err := row.Scan(
		&m.MetricID,
		&m.SectionID,
		&machineID,
		&jobOrder,
		&stage,
		&shift,
		&m.TargetRate,
		&m.ActualRate,
		&m.Efficiency,
		&downtime,
		&m.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan production metric: %w", err)
	}
	m.Stage = models.Stage(stage)
	m.Shift = models.Shift(shift)
	m.MachineID = nullString(machineID)
	m.JobOrderID = nullString(jobOrder)
	m.Downtime = nullFloat(downtime)
	m.Timestamp = m.Timestamp.UTC()
	return &m, nil
}
