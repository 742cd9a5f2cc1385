package repository

import (
	"context"
	"fmt"
	"sync"

	"mpbf-bottleneck/internal/models"

	"github.com/google/uuid"
)

// MemoryTargetRegistry 内存生产目标仓库（DB 未启用时使用）
type MemoryTargetRegistry struct {
	mu      sync.RWMutex
	targets map[string]models.ProductionTarget // targetID -> target
	order   []string                           // 创建顺序
	clock   Clock
}

func NewMemoryTargetRegistry(clock Clock) *MemoryTargetRegistry {
	return &MemoryTargetRegistry{
		targets: map[string]models.ProductionTarget{},
		clock:   clock,
	}
}

var _ TargetRegistry = (*MemoryTargetRegistry)(nil)

func (r *MemoryTargetRegistry) ListActive(_ context.Context) ([]models.ProductionTarget, error) {
	return r.collect(func(t *models.ProductionTarget) bool { return t.IsActive }), nil
}

func (r *MemoryTargetRegistry) ListActiveBySection(_ context.Context, sectionID string) ([]models.ProductionTarget, error) {
	return r.collect(func(t *models.ProductionTarget) bool {
		return t.IsActive && t.SectionID == sectionID
	}), nil
}

func (r *MemoryTargetRegistry) ActiveSnapshot(_ context.Context, sectionID string, stage models.Stage, shift models.Shift) ([]models.ProductionTarget, error) {
	return r.collect(func(t *models.ProductionTarget) bool {
		return t.IsActive && t.SectionID == sectionID && t.Stage == stage && t.Shift == shift
	}), nil
}

func (r *MemoryTargetRegistry) Get(_ context.Context, targetID string) (*models.ProductionTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("target_id=%s: %w", targetID, models.ErrTargetNotFound)
	}
	out := t.Clone()
	return &out, nil
}

func (r *MemoryTargetRegistry) Create(_ context.Context, input models.TargetInput) (*models.ProductionTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
	r.targets[t.TargetID] = t
	r.order = append(r.order, t.TargetID)

	out := t.Clone()
	return &out, nil
}

func (r *MemoryTargetRegistry) Update(_ context.Context, targetID string, update models.TargetUpdate) (*models.ProductionTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("target_id=%s: %w", targetID, models.ErrTargetNotFound)
	}
	// 在副本上合并后整体替换，读者不会看到新旧字段混合的目标
	t = t.Clone()
	update.ApplyTo(&t, r.clock.stamp())
	r.targets[targetID] = t

	out := t.Clone()
	return &out, nil
}

func (r *MemoryTargetRegistry) collect(keep func(t *models.ProductionTarget) bool) []models.ProductionTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ProductionTarget, 0, len(r.order))
	for _, id := range r.order {
		t := r.targets[id]
		if !keep(&t) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}
