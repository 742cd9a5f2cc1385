package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/repository"
)

const (
	DefaultTrendWindowDays = 7
	MaxTrendWindowDays     = 366
)

// TrendAnalytics 工段效率趋势（只读，基于 Metric Store 和 Alert Registry）
type TrendAnalytics struct {
	metrics       repository.MetricStore
	alerts        repository.AlertRegistry
	clock         repository.Clock
	location      *time.Location
	defaultWindow int
}

// NewTrendAnalytics loc 为按天分桶使用的时区（nil 为 UTC），defaultWindow <= 0 时为 7 天
func NewTrendAnalytics(metrics repository.MetricStore, alerts repository.AlertRegistry, clock repository.Clock, loc *time.Location, defaultWindow int) *TrendAnalytics {
	if loc == nil {
		loc = time.UTC
	}
	if defaultWindow <= 0 {
		defaultWindow = DefaultTrendWindowDays
	}
	if clock == nil {
		clock = time.Now
	}
	return &TrendAnalytics{
		metrics:       metrics,
		alerts:        alerts,
		clock:         clock,
		location:      loc,
		defaultWindow: defaultWindow,
	}
}

// EfficiencyTrend 统计 [now - days, now] 内工段的效率、按天明细和报警数
// 按测量自身 timestamp 所在的日期分桶，与查询时间无关
func (t *TrendAnalytics) EfficiencyTrend(ctx context.Context, sectionID string, days int) (*models.TrendReport, error) {
	if sectionID == "" {
		return nil, invalid("section_id", "is required")
	}
	if days <= 0 {
		days = t.defaultWindow
	}
	if days > MaxTrendWindowDays {
		return nil, invalid("days", "must not exceed %d", MaxTrendWindowDays)
	}

	to := t.clock().UTC()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)

	metrics, err := t.metrics.Query(ctx, models.MetricFilters{SectionID: &sectionID, StartTime: &from, EndTime: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	alerts, err := t.alerts.Query(ctx, models.AlertFilters{SectionID: &sectionID, StartTime: &from, EndTime: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	report := &models.TrendReport{
		SectionID:        sectionID,
		WindowDays:       days,
		From:             from,
		To:               to,
		MetricCount:      len(metrics),
		DailyBreakdown:   t.dailyBreakdown(metrics),
		AlertCount:       len(alerts),
		AlertsByType:     map[models.AlertType]int{},
		AlertsBySeverity: map[models.Severity]int{},
	}

	if len(metrics) > 0 {
		var sum float64
		for i := range metrics {
			sum += metrics[i].Efficiency
		}
		report.AverageEfficiency = sum / float64(len(metrics))
	}
	for i := range alerts {
		report.AlertsByType[alerts[i].AlertType]++
		report.AlertsBySeverity[alerts[i].Severity]++
	}
	return report, nil
}

type dayBucket struct {
	efficiency float64
	rate       float64
	downtime   float64
	count      int
}

func (t *TrendAnalytics) dailyBreakdown(metrics []models.ProductionMetric) []models.DailyTrend {
	buckets := map[string]*dayBucket{}
	for i := range metrics {
		m := &metrics[i]
		key := m.Timestamp.In(t.location).Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &dayBucket{}
			buckets[key] = b
		}
		b.efficiency += m.Efficiency
		b.rate += m.ActualRate
		if m.Downtime != nil {
			b.downtime += *m.Downtime
		}
		b.count++
	}

	out := make([]models.DailyTrend, 0, len(buckets))
	for key, b := range buckets {
		out = append(out, models.DailyTrend{
			Date:              key,
			AverageEfficiency: b.efficiency / float64(b.count),
			TotalDowntime:     b.downtime,
			AverageRate:       b.rate / float64(b.count),
			MetricCount:       b.count,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}
