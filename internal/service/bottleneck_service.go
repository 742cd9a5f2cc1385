package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"mpbf-bottleneck/internal/evaluator"
	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/repository"

	"go.uber.org/zap"
)

// Options 服务可选组件
type Options struct {
	// SuppressDuplicates 为 true 时，同一 (section, machine, alertType) 已有未解决报警则不再生成新报警
	SuppressDuplicates bool
	Publisher          AlertPublisher
	Observer           Observer
}

// BottleneckService 生产瓶颈检测服务
// 测量写入 -> 目标匹配 -> 规则评估 -> 报警写入 -> 发布
type BottleneckService struct {
	metrics  repository.MetricStore
	targets  repository.TargetRegistry
	alerts   repository.AlertRegistry
	settings repository.NotificationSettingsStore
	trends   *TrendAnalytics
	analyzer *evaluator.Analyzer

	suppressDuplicates bool
	publisher          AlertPublisher
	observer           Observer
	logger             *zap.Logger
}

// NewBottleneckService 创建服务
func NewBottleneckService(
	metrics repository.MetricStore,
	targets repository.TargetRegistry,
	alerts repository.AlertRegistry,
	settings repository.NotificationSettingsStore,
	trends *TrendAnalytics,
	opts Options,
	logger *zap.Logger,
) *BottleneckService {
	s := &BottleneckService{
		metrics:            metrics,
		targets:            targets,
		alerts:             alerts,
		settings:           settings,
		trends:             trends,
		analyzer:           evaluator.NewAnalyzer(),
		suppressDuplicates: opts.SuppressDuplicates,
		publisher:          opts.Publisher,
		observer:           opts.Observer,
		logger:             logger,
	}
	if s.publisher == nil {
		s.publisher = noopPublisher{}
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// RecordMetricResult 写入结果（含本次测量触发的报警）
type RecordMetricResult struct {
	Metric *models.ProductionMetric `json:"metric"`
	Alerts []models.BottleneckAlert `json:"alerts"`
}

// ============================================
// Metrics
// ============================================

// RecordMetric 校验并写入测量，随后同步执行瓶颈分析
// 返回前报警已写入 Alert Registry；分析阶段的失败只记录日志，测量本身仍然有效
func (s *BottleneckService) RecordMetric(ctx context.Context, input models.MetricInput) (*RecordMetricResult, error) {
	if err := validateMetricInput(&input); err != nil {
		s.logger.Warn("Rejected production metric",
			zap.String("section_id", input.SectionID),
			zap.Error(err),
		)
		s.observer.MetricRejected(rejectReason(err))
		return nil, err
	}

	metric, err := s.metrics.Record(ctx, input)
	if err != nil {
		s.logger.Error("Failed to record production metric",
			zap.String("section_id", input.SectionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to record metric: %w", err)
	}
	s.observer.MetricRecorded(metric)

	return &RecordMetricResult{
		Metric: metric,
		Alerts: s.analyze(ctx, metric),
	}, nil
}

// analyze 对新测量执行规则评估并写入报警
func (s *BottleneckService) analyze(ctx context.Context, metric *models.ProductionMetric) []models.BottleneckAlert {
	created := []models.BottleneckAlert{}

	// 一次性读取目标快照，评估过程中不再访问 Target Registry
	candidates, err := s.targets.ActiveSnapshot(ctx, metric.SectionID, metric.Stage, metric.Shift)
	if err != nil {
		s.logger.Error("Failed to load production targets",
			zap.String("metric_id", metric.MetricID),
			zap.String("section_id", metric.SectionID),
			zap.Error(err),
		)
		return created
	}

	proposals, target, err := s.analyzer.Evaluate(metric, candidates)
	if err != nil {
		var ambiguous *evaluator.AmbiguousTargetError
		if errors.As(err, &ambiguous) {
			s.observer.TargetConflict()
			s.logger.Warn("Ambiguous production targets, analysis skipped",
				zap.String("metric_id", metric.MetricID),
				zap.String("section_id", metric.SectionID),
				zap.String("stage", string(metric.Stage)),
				zap.String("shift", string(metric.Shift)),
				zap.Strings("target_ids", ambiguous.TargetIDs),
			)
		} else {
			s.logger.Error("Failed to evaluate metric", zap.String("metric_id", metric.MetricID), zap.Error(err))
		}
		return created
	}
	if target == nil {
		s.logger.Debug("No production target for metric",
			zap.String("metric_id", metric.MetricID),
			zap.String("section_id", metric.SectionID),
		)
		return created
	}

	for _, proposal := range proposals {
		alert, ok := s.createAlert(ctx, proposal)
		if !ok {
			continue
		}
		created = append(created, *alert)
	}
	return created
}

func (s *BottleneckService) createAlert(ctx context.Context, proposal models.AlertProposal) (*models.BottleneckAlert, bool) {
	var alert *models.BottleneckAlert
	var err error
	isNew := true
	if s.suppressDuplicates {
		alert, isNew, err = s.alerts.CreateIfNoneOpen(ctx, proposal)
	} else {
		alert, err = s.alerts.Create(ctx, proposal)
	}
	if err != nil {
		// 继续处理其他提案，不中断
		s.logger.Error("Failed to create bottleneck alert",
			zap.String("section_id", proposal.SectionID),
			zap.String("alert_type", string(proposal.AlertType)),
			zap.Error(err),
		)
		return nil, false
	}
	if !isNew {
		s.observer.AlertSuppressed(proposal.AlertType)
		s.logger.Debug("Duplicate alert suppressed",
			zap.String("open_alert_id", alert.AlertID),
			zap.String("alert_type", string(proposal.AlertType)),
		)
		return nil, false
	}

	s.observer.AlertCreated(alert)
	s.logger.Info("Bottleneck alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("alert_type", string(alert.AlertType)),
		zap.String("severity", string(alert.Severity)),
		zap.String("section_id", alert.SectionID),
		zap.Int("estimated_delay", alert.EstimatedDelay),
	)
	s.publish(ctx, models.AlertEventCreated, alert)
	return alert, true
}

func (s *BottleneckService) publish(ctx context.Context, event models.AlertEvent, alert *models.BottleneckAlert) {
	if err := s.publisher.PublishAlert(ctx, event, alert); err != nil {
		s.logger.Warn("Failed to publish alert event",
			zap.String("event", string(event)),
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
	}
}

// ListMetrics 按条件查询测量（时间范围两端闭区间）
func (s *BottleneckService) ListMetrics(ctx context.Context, filters models.MetricFilters) ([]models.ProductionMetric, error) {
	if filters.StartTime != nil && filters.EndTime != nil && filters.EndTime.Before(*filters.StartTime) {
		return nil, invalid("end_time", "is before start_time")
	}
	return s.metrics.Query(ctx, filters)
}

// ============================================
// Alerts
// ============================================

// ListAlerts 按条件查询报警（detected_at 倒序）
func (s *BottleneckService) ListAlerts(ctx context.Context, filters models.AlertFilters) ([]models.BottleneckAlert, error) {
	if filters.Status != nil && !filters.Status.Valid() {
		return nil, invalid("status", "unknown value %q", *filters.Status)
	}
	if filters.Severity != nil && !filters.Severity.Valid() {
		return nil, invalid("severity", "unknown value %q", *filters.Severity)
	}
	if filters.AlertType != nil && !filters.AlertType.Valid() {
		return nil, invalid("alert_type", "unknown value %q", *filters.AlertType)
	}
	return s.alerts.Query(ctx, filters)
}

func (s *BottleneckService) GetAlert(ctx context.Context, alertID string) (*models.BottleneckAlert, error) {
	if alertID == "" {
		return nil, invalid("alert_id", "is required")
	}
	return s.alerts.Get(ctx, alertID)
}

// AcknowledgeAlert 确认报警（仅 active 可确认）
func (s *BottleneckService) AcknowledgeAlert(ctx context.Context, alertID, userID string) (*models.BottleneckAlert, error) {
	if alertID == "" {
		return nil, invalid("alert_id", "is required")
	}
	if userID == "" {
		return nil, invalid("user_id", "is required")
	}

	alert, err := s.alerts.Acknowledge(ctx, alertID, userID)
	if err != nil {
		s.logTransitionError("acknowledge", alertID, userID, err)
		return nil, err
	}

	s.observer.AlertTransitioned(alert.Status)
	s.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
	)
	s.publish(ctx, models.AlertEventAcknowledged, alert)
	return alert, nil
}

// ResolveAlert 解决报警（active 或 acknowledged 均可）
func (s *BottleneckService) ResolveAlert(ctx context.Context, alertID, userID string, notes *string) (*models.BottleneckAlert, error) {
	if alertID == "" {
		return nil, invalid("alert_id", "is required")
	}
	if userID == "" {
		return nil, invalid("user_id", "is required")
	}

	alert, err := s.alerts.Resolve(ctx, alertID, userID, notes)
	if err != nil {
		s.logTransitionError("resolve", alertID, userID, err)
		return nil, err
	}

	s.observer.AlertTransitioned(alert.Status)
	s.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
	)
	s.publish(ctx, models.AlertEventResolved, alert)
	return alert, nil
}

func (s *BottleneckService) logTransitionError(op, alertID, userID string, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
		zap.Error(err),
	}
	if errors.Is(err, models.ErrAlertNotFound) || errors.Is(err, models.ErrAlertStateConflict) {
		s.logger.Warn("Alert transition rejected", fields...)
		return
	}
	s.logger.Error("Alert transition failed", fields...)
}

// ============================================
// Targets
// ============================================

// ListActiveTargets 启用中的目标；sectionID 为空时返回全部工段
func (s *BottleneckService) ListActiveTargets(ctx context.Context, sectionID string) ([]models.ProductionTarget, error) {
	if sectionID == "" {
		return s.targets.ListActive(ctx)
	}
	return s.targets.ListActiveBySection(ctx, sectionID)
}

func (s *BottleneckService) GetTarget(ctx context.Context, targetID string) (*models.ProductionTarget, error) {
	if targetID == "" {
		return nil, invalid("target_id", "is required")
	}
	return s.targets.Get(ctx, targetID)
}

// CreateTarget 创建目标（effective_from = now，默认启用）
func (s *BottleneckService) CreateTarget(ctx context.Context, input models.TargetInput) (*models.ProductionTarget, error) {
	if input.MachineID != nil && *input.MachineID == "" {
		input.MachineID = nil
	}
	if err := validateTargetInput(&input); err != nil {
		s.logger.Warn("Rejected production target", zap.String("section_id", input.SectionID), zap.Error(err))
		return nil, err
	}

	target, err := s.targets.Create(ctx, input)
	if err != nil {
		s.logger.Error("Failed to create production target", zap.Error(err))
		return nil, fmt.Errorf("failed to create target: %w", err)
	}
	s.logger.Info("Production target created",
		zap.String("target_id", target.TargetID),
		zap.String("section_id", target.SectionID),
		zap.String("stage", string(target.Stage)),
		zap.String("shift", string(target.Shift)),
	)
	return target, nil
}

// UpdateTarget 部分更新目标；没有任何字段时原样返回当前目标
func (s *BottleneckService) UpdateTarget(ctx context.Context, targetID string, update models.TargetUpdate) (*models.ProductionTarget, error) {
	if targetID == "" {
		return nil, invalid("target_id", "is required")
	}
	if update.MachineID != nil && *update.MachineID == "" {
		update.MachineID = nil
		update.ClearMachineID = true
	}
	if err := validateTargetUpdate(&update); err != nil {
		s.logger.Warn("Rejected target update", zap.String("target_id", targetID), zap.Error(err))
		return nil, err
	}
	if update.IsEmpty() {
		return s.targets.Get(ctx, targetID)
	}

	target, err := s.targets.Update(ctx, targetID, update)
	if err != nil {
		if errors.Is(err, models.ErrTargetNotFound) {
			s.logger.Warn("Target update on unknown id", zap.String("target_id", targetID))
		} else {
			s.logger.Error("Failed to update production target", zap.String("target_id", targetID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("Production target updated",
		zap.String("target_id", targetID),
		zap.Bool("is_active", target.IsActive),
	)
	return target, nil
}

// ============================================
// Trends
// ============================================

// GetEfficiencyTrend 工段效率趋势；days <= 0 使用默认窗口
func (s *BottleneckService) GetEfficiencyTrend(ctx context.Context, sectionID string, days int) (*models.TrendReport, error) {
	return s.trends.EfficiencyTrend(ctx, sectionID, days)
}

// ============================================
// Validation
// ============================================

// fieldError 字段校验失败（errors.Is(err, models.ErrValidation) 为 true）
type fieldError struct {
	Field string
	Msg   string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s: %s %s", models.ErrValidation, e.Field, e.Msg)
}

func (e *fieldError) Unwrap() error {
	return models.ErrValidation
}

func invalid(field, format string, args ...interface{}) error {
	return &fieldError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// rejectReason 指标标签用的拒绝原因（字段名）
func rejectReason(err error) string {
	var fe *fieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return "other"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateMetricInput(in *models.MetricInput) error {
	switch {
	case in.SectionID == "":
		return invalid("section_id", "is required")
	case !in.Stage.Valid():
		return invalid("stage", "unknown value %q", in.Stage)
	case !in.Shift.Valid():
		return invalid("shift", "unknown value %q", in.Shift)
	case !finite(in.TargetRate) || in.TargetRate < 0:
		return invalid("target_rate", "must be a non-negative number")
	case !finite(in.ActualRate) || in.ActualRate < 0:
		return invalid("actual_rate", "must be a non-negative number")
	case !finite(in.Efficiency) || in.Efficiency < 0 || in.Efficiency > 100:
		return invalid("efficiency", "must be within [0, 100]")
	case in.Downtime != nil && (!finite(*in.Downtime) || *in.Downtime < 0):
		return invalid("downtime", "must be a non-negative number")
	}
	if in.MachineID != nil && *in.MachineID == "" {
		in.MachineID = nil
	}
	if in.JobOrderID != nil && *in.JobOrderID == "" {
		in.JobOrderID = nil
	}
	return nil
}

func validateTargetInput(in *models.TargetInput) error {
	switch {
	case in.SectionID == "":
		return invalid("section_id", "is required")
	case !in.Stage.Valid():
		return invalid("stage", "unknown value %q", in.Stage)
	case !in.Shift.Valid():
		return invalid("shift", "unknown value %q", in.Shift)
	}
	return validateTargetNumbers(&in.TargetRate, &in.MinEfficiency, &in.MaxDowntime)
}

func validateTargetUpdate(u *models.TargetUpdate) error {
	switch {
	case u.SectionID != nil && *u.SectionID == "":
		return invalid("section_id", "cannot be empty")
	case u.Stage != nil && !u.Stage.Valid():
		return invalid("stage", "unknown value %q", *u.Stage)
	case u.Shift != nil && !u.Shift.Valid():
		return invalid("shift", "unknown value %q", *u.Shift)
	}
	return validateTargetNumbers(u.TargetRate, u.MinEfficiency, u.MaxDowntime)
}

func validateTargetNumbers(targetRate, minEfficiency, maxDowntime *float64) error {
	switch {
	case targetRate != nil && (!finite(*targetRate) || *targetRate < 0):
		return invalid("target_rate", "must be a non-negative number")
	case minEfficiency != nil && (!finite(*minEfficiency) || *minEfficiency < 0 || *minEfficiency > 100):
		return invalid("min_efficiency", "must be within [0, 100]")
	case maxDowntime != nil && (!finite(*maxDowntime) || *maxDowntime < 0):
		return invalid("max_downtime", "must be a non-negative number")
	}
	return nil
}
