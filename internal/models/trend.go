package models

import (
	"time"
)

// DailyTrend 单日汇总（Date 为 YYYY-MM-DD）
type DailyTrend struct {
	Date              string  `json:"date"`
	AverageEfficiency float64 `json:"average_efficiency"`
	TotalDowntime     float64 `json:"total_downtime"`
	AverageRate       float64 `json:"average_rate"`
	MetricCount       int     `json:"metric_count"`
}

// TrendReport 工段效率趋势报告
type TrendReport struct {
	SectionID         string            `json:"section_id"`
	WindowDays        int               `json:"window_days"`
	From              time.Time         `json:"from"`
	To                time.Time         `json:"to"`
	MetricCount       int               `json:"metric_count"`
	AverageEfficiency float64           `json:"average_efficiency"`
	DailyBreakdown    []DailyTrend      `json:"daily_breakdown"`
	AlertCount        int               `json:"alert_count"`
	AlertsByType      map[AlertType]int `json:"alerts_by_type"`
	AlertsBySeverity  map[Severity]int  `json:"alerts_by_severity"`
}
