package evaluator

import (
	"fmt"
	"strings"

	"mpbf-bottleneck/internal/models"
)

// AmbiguousTargetError 同一测量匹配到多个同等优先级的目标
type AmbiguousTargetError struct {
	MetricID  string
	TargetIDs []string
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("metric %s matches %d targets with equal specificity: %s",
		e.MetricID, len(e.TargetIDs), strings.Join(e.TargetIDs, ","))
}

func (e *AmbiguousTargetError) Unwrap() error {
	return models.ErrAmbiguousTarget
}

// ResolveTarget 从候选目标中选出与测量匹配的目标
//
// 匹配规则：
//   - section / stage / shift 必须完全一致，且目标处于启用状态
//   - 目标 machine_id 与测量一致，或目标 machine_id 为空（适用任意机台）
//   - 指定了 machine_id 的目标优先于未指定的目标
//
// 没有匹配时返回 (nil, nil)；最高优先级上仍有多个候选时返回 *AmbiguousTargetError
func ResolveTarget(metric *models.ProductionMetric, candidates []models.ProductionTarget) (*models.ProductionTarget, error) {
	var specific, generic []*models.ProductionTarget
	for i := range candidates {
		t := &candidates[i]
		if !t.IsActive || t.SectionID != metric.SectionID || t.Stage != metric.Stage || t.Shift != metric.Shift {
			continue
		}
		switch {
		case t.MachineID == nil:
			generic = append(generic, t)
		case metric.MachineID != nil && *t.MachineID == *metric.MachineID:
			specific = append(specific, t)
		}
	}

	pool := specific
	if len(pool) == 0 {
		pool = generic
	}
	switch len(pool) {
	case 0:
		return nil, nil
	case 1:
		out := pool[0].Clone()
		return &out, nil
	}

	ids := make([]string, len(pool))
	for i, t := range pool {
		ids[i] = t.TargetID
	}
	return nil, &AmbiguousTargetError{MetricID: metric.MetricID, TargetIDs: ids}
}
