package repository

import (
	"context"
	"sync"
	"time"

	"mpbf-bottleneck/internal/models"

	"github.com/google/uuid"
)

// MemoryMetricStore 内存测量记录仓库
// - 只追加，按写入顺序保存
// - 读取返回副本，调用方修改不影响仓库
type MemoryMetricStore struct {
	mu      sync.RWMutex
	metrics []models.ProductionMetric
	ts      monotonic
}

func NewMemoryMetricStore(clock Clock) *MemoryMetricStore {
	return &MemoryMetricStore{ts: monotonic{clock: clock}}
}

// 确保实现了接口
var _ MetricStore = (*MemoryMetricStore)(nil)

func (s *MemoryMetricStore) Record(_ context.Context, input models.MetricInput) (*models.ProductionMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 在写锁内分配 timestamp，保证与追加顺序一致
	ts := s.ts.next()

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
		Timestamp:  ts,
	}.Clone()
	s.metrics = append(s.metrics, metric)

	out := metric.Clone()
	return &out, nil
}

func (s *MemoryMetricStore) List(ctx context.Context) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{})
}

func (s *MemoryMetricStore) BySection(ctx context.Context, sectionID string) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{SectionID: &sectionID})
}

func (s *MemoryMetricStore) ByMachine(ctx context.Context, machineID string) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{MachineID: &machineID})
}

func (s *MemoryMetricStore) ByDateRange(ctx context.Context, start, end time.Time) ([]models.ProductionMetric, error) {
	return s.Query(ctx, models.MetricFilters{StartTime: &start, EndTime: &end})
}

func (s *MemoryMetricStore) Query(_ context.Context, filters models.MetricFilters) ([]models.ProductionMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ProductionMetric, 0, len(s.metrics))
	for i := range s.metrics {
		if !filters.Matches(&s.metrics[i]) {
			continue
		}
		out = append(out, s.metrics[i].Clone())
	}
	return out, nil
}
