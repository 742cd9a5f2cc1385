package repository

import (
	"context"
	"sync"
	"time"

	"mpbf-bottleneck/internal/models"
)

// Clock 时间来源（测试中注入固定时间）
type Clock func() time.Time

// stamp 取当前时间：UTC + 微秒精度（与 PostgreSQL timestamptz 一致）
func (c Clock) stamp() time.Time {
	if c == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return c().UTC().Truncate(time.Microsecond)
}

// monotonic 按调用顺序分配单调不减的时间戳（时钟回拨时沿用上一次的值）
type monotonic struct {
	mu    sync.Mutex
	clock Clock
	last  time.Time
}

func (m *monotonic) next() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.clock.stamp()
	if ts.Before(m.last) {
		ts = m.last
	}
	m.last = ts
	return ts
}

// MetricStore 生产测量记录仓库（只追加）
type MetricStore interface {
	// 追加一条测量记录，分配 metric_id 和 timestamp
	Record(ctx context.Context, input models.MetricInput) (*models.ProductionMetric, error)

	List(ctx context.Context) ([]models.ProductionMetric, error)
	BySection(ctx context.Context, sectionID string) ([]models.ProductionMetric, error)
	ByMachine(ctx context.Context, machineID string) ([]models.ProductionMetric, error)

	// 时间范围查询，两端均为闭区间
	ByDateRange(ctx context.Context, start, end time.Time) ([]models.ProductionMetric, error)

	// 组合过滤
	Query(ctx context.Context, filters models.MetricFilters) ([]models.ProductionMetric, error)
}

// TargetRegistry 生产目标仓库（不提供物理删除，只能停用）
type TargetRegistry interface {
	ListActive(ctx context.Context) ([]models.ProductionTarget, error)
	ListActiveBySection(ctx context.Context, sectionID string) ([]models.ProductionTarget, error)
	Get(ctx context.Context, targetID string) (*models.ProductionTarget, error)
	Create(ctx context.Context, input models.TargetInput) (*models.ProductionTarget, error)

	// 部分更新；id 不存在时返回 models.ErrTargetNotFound
	Update(ctx context.Context, targetID string, update models.TargetUpdate) (*models.ProductionTarget, error)

	// 一次性读取某工段/工序/班次下所有启用目标的快照（用于分析器匹配）
	ActiveSnapshot(ctx context.Context, sectionID string, stage models.Stage, shift models.Shift) ([]models.ProductionTarget, error)
}

// AlertRegistry 瓶颈报警仓库，负责报警的身份分配和状态机
type AlertRegistry interface {
	Create(ctx context.Context, proposal models.AlertProposal) (*models.BottleneckAlert, error)

	// 若已存在同一 (section, machine, alertType) 的未解决报警则不创建，返回 created=false
	CreateIfNoneOpen(ctx context.Context, proposal models.AlertProposal) (alert *models.BottleneckAlert, created bool, err error)

	// 仅 active 可确认；否则返回 ErrAlertNotFound / ErrAlertStateConflict
	Acknowledge(ctx context.Context, alertID, userID string) (*models.BottleneckAlert, error)

	// active 或 acknowledged 可解决；notes 为 nil 时记为空字符串
	Resolve(ctx context.Context, alertID, userID string, notes *string) (*models.BottleneckAlert, error)

	Get(ctx context.Context, alertID string) (*models.BottleneckAlert, error)

	// 以下列表均按 detected_at 倒序
	List(ctx context.Context) ([]models.BottleneckAlert, error)
	ListActive(ctx context.Context) ([]models.BottleneckAlert, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.BottleneckAlert, error)
	Query(ctx context.Context, filters models.AlertFilters) ([]models.BottleneckAlert, error)
}

// NotificationSettingsStore 用户通知偏好仓库
type NotificationSettingsStore interface {
	Get(ctx context.Context, userID string) (*models.NotificationSetting, error)
	Upsert(ctx context.Context, setting models.NotificationSetting) (*models.NotificationSetting, error)
	List(ctx context.Context) ([]models.NotificationSetting, error)
}
