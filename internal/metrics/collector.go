package metrics

import (
	"net/http"

	"mpbf-bottleneck/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mpbf_bottleneck"

// Collector 瓶颈检测运行指标（独立 registry，不注册到全局默认 registry）
// 实现 service.Observer
type Collector struct {
	registry *prometheus.Registry

	metricsRecorded  *prometheus.CounterVec
	metricsRejected  *prometheus.CounterVec
	alertsCreated    *prometheus.CounterVec
	alertsSuppressed *prometheus.CounterVec
	alertTransitions *prometheus.CounterVec
	targetConflicts  prometheus.Counter
	estimatedDelay   *prometheus.HistogramVec
}

// NewCollector 创建并注册全部指标
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		metricsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metrics_recorded_total",
				Help:      "Production metrics stored, by stage",
			},
			[]string{"stage"},
		),
		metricsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metrics_rejected_total",
				Help:      "Production metrics rejected by validation, by offending field",
			},
			[]string{"reason"},
		),
		alertsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_created_total",
				Help:      "Bottleneck alerts created, by type and severity",
			},
			[]string{"alert_type", "severity"},
		),
		alertsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_suppressed_total",
				Help:      "Alert proposals dropped because an open alert already covers the condition",
			},
			[]string{"alert_type"},
		),
		alertTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_transitions_total",
				Help:      "Alert status transitions, by target status",
			},
			[]string{"status"},
		),
		targetConflicts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_conflicts_total",
				Help:      "Metrics skipped because several targets matched with equal priority",
			},
		),
		estimatedDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "alert_estimated_delay_hours",
				Help:      "Estimated delay of created alerts",
				Buckets:   []float64{1, 2, 4, 8, 16, 24, 48, 72},
			},
			[]string{"alert_type"},
		),
	}

	c.registry.MustRegister(
		c.metricsRecorded,
		c.metricsRejected,
		c.alertsCreated,
		c.alertsSuppressed,
		c.alertTransitions,
		c.targetConflicts,
		c.estimatedDelay,
	)
	return c
}

// Registry 供测试或额外 collector 注册使用
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler Prometheus 抓取端点
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) MetricRecorded(metric *models.ProductionMetric) {
	c.metricsRecorded.WithLabelValues(string(metric.Stage)).Inc()
}

func (c *Collector) MetricRejected(reason string) {
	c.metricsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) AlertCreated(alert *models.BottleneckAlert) {
	c.alertsCreated.WithLabelValues(string(alert.AlertType), string(alert.Severity)).Inc()
	c.estimatedDelay.WithLabelValues(string(alert.AlertType)).Observe(float64(alert.EstimatedDelay))
}

func (c *Collector) AlertSuppressed(alertType models.AlertType) {
	c.alertsSuppressed.WithLabelValues(string(alertType)).Inc()
}

func (c *Collector) AlertTransitioned(status models.AlertStatus) {
	c.alertTransitions.WithLabelValues(string(status)).Inc()
}

func (c *Collector) TargetConflict() {
	c.targetConflicts.Inc()
}
