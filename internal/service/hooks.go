package service

import (
	"context"

	"mpbf-bottleneck/internal/models"
)

// AlertPublisher 报警生命周期事件出口（外部通知器从这里消费）
// 发布失败只记录日志，不影响主流程
type AlertPublisher interface {
	PublishAlert(ctx context.Context, event models.AlertEvent, alert *models.BottleneckAlert) error
}

// Observer 运行指标回调
type Observer interface {
	MetricRecorded(metric *models.ProductionMetric)
	MetricRejected(reason string)
	AlertCreated(alert *models.BottleneckAlert)
	AlertSuppressed(alertType models.AlertType)
	AlertTransitioned(status models.AlertStatus)
	TargetConflict()
}

type noopPublisher struct{}

func (noopPublisher) PublishAlert(context.Context, models.AlertEvent, *models.BottleneckAlert) error {
	return nil
}

type noopObserver struct{}

func (noopObserver) MetricRecorded(*models.ProductionMetric) {}
func (noopObserver) MetricRejected(string)                   {}
func (noopObserver) AlertCreated(*models.BottleneckAlert)    {}
func (noopObserver) AlertSuppressed(models.AlertType)        {}
func (noopObserver) AlertTransitioned(models.AlertStatus)    {}
func (noopObserver) TargetConflict()                         {}
