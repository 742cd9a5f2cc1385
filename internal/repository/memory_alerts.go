package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mpbf-bottleneck/internal/models"

	"github.com/google/uuid"
)

// MemoryAlertRegistry 内存报警仓库
// 所有状态迁移在同一把写锁内完成：并发确认同一报警时只有一个成功
type MemoryAlertRegistry struct {
	mu     sync.RWMutex
	alerts map[string]*models.BottleneckAlert // alertID -> alert
	order  []string                           // 创建顺序
	ts     monotonic
}

func NewMemoryAlertRegistry(clock Clock) *MemoryAlertRegistry {
	return &MemoryAlertRegistry{
		alerts: map[string]*models.BottleneckAlert{},
		ts:     monotonic{clock: clock},
	}
}

var _ AlertRegistry = (*MemoryAlertRegistry)(nil)

func (r *MemoryAlertRegistry) Create(_ context.Context, proposal models.AlertProposal) (*models.BottleneckAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.insertLocked(proposal), nil
}

func (r *MemoryAlertRegistry) CreateIfNoneOpen(_ context.Context, proposal models.AlertProposal) (*models.BottleneckAlert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		a := r.alerts[id]
		if a.Status.IsOpen() && a.SameCondition(proposal) {
			out := a.Clone()
			return &out, false, nil
		}
	}
	return r.insertLocked(proposal), true, nil
}

func (r *MemoryAlertRegistry) insertLocked(proposal models.AlertProposal) *models.BottleneckAlert {
	alert := models.NewAlertFromProposal(uuid.NewString(), proposal, r.ts.next())
	r.alerts[alert.AlertID] = &alert
	r.order = append(r.order, alert.AlertID)

	out := alert.Clone()
	return &out
}

func (r *MemoryAlertRegistry) Acknowledge(_ context.Context, alertID, userID string) (*models.BottleneckAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
	}
	if a.Status != models.AlertStatusActive {
		return nil, fmt.Errorf("acknowledge alert_id=%s in status %s: %w", alertID, a.Status, models.ErrAlertStateConflict)
	}

	now := r.ts.next()
	user := userID
	a.Status = models.AlertStatusAcknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = &user

	out := a.Clone()
	return &out, nil
}

func (r *MemoryAlertRegistry) Resolve(_ context.Context, alertID, userID string, notes *string) (*models.BottleneckAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
	}
	if !a.Status.IsOpen() {
		return nil, fmt.Errorf("resolve alert_id=%s in status %s: %w", alertID, a.Status, models.ErrAlertStateConflict)
	}

	now := r.ts.next()
	user := userID
	resolution := ""
	if notes != nil {
		resolution = *notes
	}
	a.Status = models.AlertStatusResolved
	a.ResolvedAt = &now
	a.ResolvedBy = &user
	a.ResolutionNotes = &resolution

	out := a.Clone()
	return &out, nil
}

func (r *MemoryAlertRegistry) Get(_ context.Context, alertID string) (*models.BottleneckAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[alertID]
	if !ok {
		return nil, fmt.Errorf("alert_id=%s: %w", alertID, models.ErrAlertNotFound)
	}
	out := a.Clone()
	return &out, nil
}

func (r *MemoryAlertRegistry) List(ctx context.Context) ([]models.BottleneckAlert, error) {
	return r.Query(ctx, models.AlertFilters{})
}

func (r *MemoryAlertRegistry) ListActive(ctx context.Context) ([]models.BottleneckAlert, error) {
	status := models.AlertStatusActive
	return r.Query(ctx, models.AlertFilters{Status: &status})
}

func (r *MemoryAlertRegistry) ListBySection(ctx context.Context, sectionID string) ([]models.BottleneckAlert, error) {
	return r.Query(ctx, models.AlertFilters{SectionID: &sectionID})
}

func (r *MemoryAlertRegistry) Query(_ context.Context, filters models.AlertFilters) ([]models.BottleneckAlert, error) {
	r.mu.RLock()
	out := make([]models.BottleneckAlert, 0, len(r.order))
	// 倒序遍历：同一 detected_at 时后创建的排在前面
	for i := len(r.order) - 1; i >= 0; i-- {
		a := r.alerts[r.order[i]]
		if !filters.Matches(a) {
			continue
		}
		out = append(out, a.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}
