package models

import (
	"time"
)

// Stage 生产工序
type Stage string

const (
	StageExtruding Stage = "extruding"
	StagePrinting  Stage = "printing"
	StageCutting   Stage = "cutting"
	StageMixing    Stage = "mixing"
)

// Valid 是否为已知工序
func (s Stage) Valid() bool {
	switch s {
	case StageExtruding, StagePrinting, StageCutting, StageMixing:
		return true
	}
	return false
}

// Shift 班次
type Shift string

const (
	ShiftDay     Shift = "day"
	ShiftNight   Shift = "night"
	ShiftMorning Shift = "morning"
)

// Valid 是否为已知班次
func (s Shift) Valid() bool {
	switch s {
	case ShiftDay, ShiftNight, ShiftMorning:
		return true
	}
	return false
}

// ProductionMetric 生产测量记录（只追加，创建后不可修改）
type ProductionMetric struct {
	MetricID   string    `json:"metric_id" db:"metric_id"`
	SectionID  string    `json:"section_id" db:"section_id"`
	MachineID  *string   `json:"machine_id,omitempty" db:"machine_id"`
	JobOrderID *string   `json:"job_order_id,omitempty" db:"job_order_id"`
	Stage      Stage     `json:"stage" db:"stage"`
	Shift      Shift     `json:"shift" db:"shift"`
	TargetRate float64   `json:"target_rate" db:"target_rate"`       // units/hour
	ActualRate float64   `json:"actual_rate" db:"actual_rate"`       // units/hour
	Efficiency float64   `json:"efficiency" db:"efficiency"`         // 0-100
	Downtime   *float64  `json:"downtime,omitempty" db:"downtime"` // 分钟
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// Clone 深拷贝（指针字段不共享）
func (m ProductionMetric) Clone() ProductionMetric {
	out := m
	out.MachineID = cloneString(m.MachineID)
	out.JobOrderID = cloneString(m.JobOrderID)
	if m.Downtime != nil {
		downtime := *m.Downtime
		out.Downtime = &downtime
	}
	return out
}

// MetricInput 外部提交的测量数据（id 和 timestamp 由 Metric Store 分配）
type MetricInput struct {
	SectionID  string   `json:"section_id"`
	MachineID  *string  `json:"machine_id,omitempty"`
	JobOrderID *string  `json:"job_order_id,omitempty"`
	Stage      Stage    `json:"stage"`
	Shift      Shift    `json:"shift"`
	TargetRate float64  `json:"target_rate"`
	ActualRate float64  `json:"actual_rate"`
	Efficiency float64  `json:"efficiency"`
	Downtime   *float64 `json:"downtime,omitempty"`
}

// MetricFilters 测量记录过滤条件（nil 表示不过滤）
type MetricFilters struct {
	SectionID *string
	MachineID *string
	StartTime *time.Time // timestamp >= StartTime
	EndTime   *time.Time // timestamp <= EndTime
}

// Matches 判断记录是否满足过滤条件（时间范围两端均为闭区间）
func (f MetricFilters) Matches(m *ProductionMetric) bool {
	if f.SectionID != nil && m.SectionID != *f.SectionID {
		return false
	}
	if f.MachineID != nil && (m.MachineID == nil || *m.MachineID != *f.MachineID) {
		return false
	}
	if f.StartTime != nil && m.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && m.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// ProductionTarget 工段/工序/班次/机台的生产目标
// MachineID 为 nil 时表示适用于该工段/工序/班次下的任意机台
type ProductionTarget struct {
	TargetID      string     `json:"target_id" db:"target_id"`
	SectionID     string     `json:"section_id" db:"section_id"`
	Stage         Stage      `json:"stage" db:"stage"`
	Shift         Shift      `json:"shift" db:"shift"`
	MachineID     *string    `json:"machine_id,omitempty" db:"machine_id"`
	TargetRate    float64    `json:"target_rate" db:"target_rate"`
	MinEfficiency float64    `json:"min_efficiency" db:"min_efficiency"`
	MaxDowntime   float64    `json:"max_downtime" db:"max_downtime"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`
}

// TargetInput 创建目标的输入
type TargetInput struct {
	SectionID     string  `json:"section_id" yaml:"section_id"`
	Stage         Stage   `json:"stage" yaml:"stage"`
	Shift         Shift   `json:"shift" yaml:"shift"`
	MachineID     *string `json:"machine_id,omitempty" yaml:"machine_id,omitempty"`
	TargetRate    float64 `json:"target_rate" yaml:"target_rate"`
	MinEfficiency float64 `json:"min_efficiency" yaml:"min_efficiency"`
	MaxDowntime   float64 `json:"max_downtime" yaml:"max_downtime"`
}

// TargetUpdate 目标部分更新（nil 字段保持不变）
// ClearMachineID 为 true 时将 MachineID 置空（目标变为适用任意机台）
type TargetUpdate struct {
	SectionID      *string  `json:"section_id,omitempty"`
	Stage          *Stage   `json:"stage,omitempty"`
	Shift          *Shift   `json:"shift,omitempty"`
	MachineID      *string  `json:"machine_id,omitempty"`
	ClearMachineID bool     `json:"clear_machine_id,omitempty"`
	TargetRate     *float64 `json:"target_rate,omitempty"`
	MinEfficiency  *float64 `json:"min_efficiency,omitempty"`
	MaxDowntime    *float64 `json:"max_downtime,omitempty"`
	IsActive       *bool    `json:"is_active,omitempty"`
}

// IsEmpty 是否没有任何待更新字段
func (u TargetUpdate) IsEmpty() bool {
	return u.SectionID == nil && u.Stage == nil && u.Shift == nil && u.MachineID == nil &&
		!u.ClearMachineID && u.TargetRate == nil && u.MinEfficiency == nil &&
		u.MaxDowntime == nil && u.IsActive == nil
}

// ApplyTo 将部分更新合并到目标上；now 用于启用/停用时维护 EffectiveTo
func (u TargetUpdate) ApplyTo(t *ProductionTarget, now time.Time) {
	if u.SectionID != nil {
		t.SectionID = *u.SectionID
	}
	if u.Stage != nil {
		t.Stage = *u.Stage
	}
	if u.Shift != nil {
		t.Shift = *u.Shift
	}
	if u.ClearMachineID {
		t.MachineID = nil
	} else if u.MachineID != nil {
		machineID := *u.MachineID
		t.MachineID = &machineID
	}
	if u.TargetRate != nil {
		t.TargetRate = *u.TargetRate
	}
	if u.MinEfficiency != nil {
		t.MinEfficiency = *u.MinEfficiency
	}
	if u.MaxDowntime != nil {
		t.MaxDowntime = *u.MaxDowntime
	}
	if u.IsActive != nil && *u.IsActive != t.IsActive {
		t.IsActive = *u.IsActive
		if t.IsActive {
			t.EffectiveTo = nil
		} else {
			effectiveTo := now
			t.EffectiveTo = &effectiveTo
		}
	}
}

// Clone 深拷贝（指针字段不共享）
func (t ProductionTarget) Clone() ProductionTarget {
	out := t
	if t.MachineID != nil {
		machineID := *t.MachineID
		out.MachineID = &machineID
	}
	if t.EffectiveTo != nil {
		effectiveTo := *t.EffectiveTo
		out.EffectiveTo = &effectiveTo
	}
	return out
}
