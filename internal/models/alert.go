package models

import (
	"time"
)

// AlertType 瓶颈报警类型
type AlertType string

const (
	AlertTypeEfficiencyDrop   AlertType = "efficiency_drop"
	AlertTypeRateBelowTarget  AlertType = "rate_below_target"
	AlertTypeDowntimeExceeded AlertType = "downtime_exceeded"
)

// Valid 是否为已知报警类型
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeEfficiencyDrop, AlertTypeRateBelowTarget, AlertTypeDowntimeExceeded:
		return true
	}
	return false
}

// Severity 报警级别（critical > high > medium）
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// Rank 级别排序值，越大越严重；未知级别为 0
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// Valid 是否为已知级别
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AlertStatus 报警状态：active -> acknowledged -> resolved
type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Valid 是否为已知状态
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	}
	return false
}

// IsOpen 未解决（active 或 acknowledged）
func (s AlertStatus) IsOpen() bool {
	return s == AlertStatusActive || s == AlertStatusAcknowledged
}

// BottleneckAlert 瓶颈报警（对应 bottleneck_alerts 表）
type BottleneckAlert struct {
	AlertID           string      `json:"alert_id" db:"alert_id"`
	AlertType         AlertType   `json:"alert_type" db:"alert_type"`
	Severity          Severity    `json:"severity" db:"severity"`
	SectionID         string      `json:"section_id" db:"section_id"`
	MachineID         *string     `json:"machine_id,omitempty" db:"machine_id"`
	MetricID          *string     `json:"metric_id,omitempty" db:"metric_id"` // 触发报警的测量记录
	Title             string      `json:"title" db:"title"`
	Description       string      `json:"description" db:"description"`
	AffectedJobOrders []string    `json:"affected_job_orders" db:"affected_job_orders"`
	EstimatedDelay    int         `json:"estimated_delay" db:"estimated_delay"` // 小时
	SuggestedActions  []string    `json:"suggested_actions" db:"suggested_actions"`
	Status            AlertStatus `json:"status" db:"status"`
	DetectedAt        time.Time   `json:"detected_at" db:"detected_at"`
	AcknowledgedAt    *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy    *string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	ResolvedAt        *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy        *string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNotes   *string     `json:"resolution_notes,omitempty" db:"resolution_notes"`
}

// AlertProposal 分析器生成的报警提案；id、检测时间、状态由 Alert Registry 分配
type AlertProposal struct {
	AlertType         AlertType
	Severity          Severity
	SectionID         string
	MachineID         *string
	MetricID          *string
	Title             string
	Description       string
	AffectedJobOrders []string
	EstimatedDelay    int
	SuggestedActions  []string
}

// NewAlertFromProposal 由提案生成 active 状态的报警
func NewAlertFromProposal(alertID string, p AlertProposal, detectedAt time.Time) BottleneckAlert {
	affected := make([]string, len(p.AffectedJobOrders))
	copy(affected, p.AffectedJobOrders)
	actions := make([]string, len(p.SuggestedActions))
	copy(actions, p.SuggestedActions)

	return BottleneckAlert{
		AlertID:           alertID,
		AlertType:         p.AlertType,
		Severity:          p.Severity,
		SectionID:         p.SectionID,
		MachineID:         cloneString(p.MachineID),
		MetricID:          cloneString(p.MetricID),
		Title:             p.Title,
		Description:       p.Description,
		AffectedJobOrders: affected,
		EstimatedDelay:    p.EstimatedDelay,
		SuggestedActions:  actions,
		Status:            AlertStatusActive,
		DetectedAt:        detectedAt,
	}
}

// Clone 深拷贝，避免调用方修改 registry 内部状态
func (a BottleneckAlert) Clone() BottleneckAlert {
	out := a
	out.MachineID = cloneString(a.MachineID)
	out.MetricID = cloneString(a.MetricID)
	out.AcknowledgedBy = cloneString(a.AcknowledgedBy)
	out.ResolvedBy = cloneString(a.ResolvedBy)
	out.ResolutionNotes = cloneString(a.ResolutionNotes)
	out.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
	out.ResolvedAt = cloneTime(a.ResolvedAt)
	out.AffectedJobOrders = append([]string{}, a.AffectedJobOrders...)
	out.SuggestedActions = append([]string{}, a.SuggestedActions...)
	return out
}

// AlertFilters 报警过滤条件（nil 表示不过滤）
type AlertFilters struct {
	Status    *AlertStatus
	SectionID *string
	MachineID *string
	Severity  *Severity
	AlertType *AlertType
	StartTime *time.Time // detected_at >= StartTime
	EndTime   *time.Time // detected_at <= EndTime
}

// Matches 判断报警是否满足过滤条件
func (f AlertFilters) Matches(a *BottleneckAlert) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.SectionID != nil && a.SectionID != *f.SectionID {
		return false
	}
	if f.MachineID != nil && (a.MachineID == nil || *a.MachineID != *f.MachineID) {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.AlertType != nil && a.AlertType != *f.AlertType {
		return false
	}
	if f.StartTime != nil && a.DetectedAt.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && a.DetectedAt.After(*f.EndTime) {
		return false
	}
	return true
}

// SameCondition 是否与提案描述同一异常（section + machine + alertType）
func (a BottleneckAlert) SameCondition(p AlertProposal) bool {
	if a.SectionID != p.SectionID || a.AlertType != p.AlertType {
		return false
	}
	if a.MachineID == nil || p.MachineID == nil {
		return a.MachineID == nil && p.MachineID == nil
	}
	return *a.MachineID == *p.MachineID
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// AlertEvent 报警生命周期事件（发布到外部通知通道）
type AlertEvent string

const (
	AlertEventCreated      AlertEvent = "alert.created"
	AlertEventAcknowledged AlertEvent = "alert.acknowledged"
	AlertEventResolved     AlertEvent = "alert.resolved"
)
