package evaluator

import (
	"fmt"

	"mpbf-bottleneck/internal/models"
)

// DowntimeExceededRule 停机时长超过目标允许的最大值
type DowntimeExceededRule struct{}

func (DowntimeExceededRule) AlertType() models.AlertType {
	return models.AlertTypeDowntimeExceeded
}

// Evaluate downtime > maxDowntime 时触发（未上报 downtime 不评估）
// 超过 2 倍为 critical，否则 high；延误按停机分钟数折算小时
func (r DowntimeExceededRule) Evaluate(b *AlertProposalBuilder, m *models.ProductionMetric, t *models.ProductionTarget) (models.AlertProposal, bool) {
	if m.Downtime == nil || *m.Downtime <= t.MaxDowntime {
		return models.AlertProposal{}, false
	}
	downtime := *m.Downtime

	severity := models.SeverityHigh
	if downtime > t.MaxDowntime*2 {
		severity = models.SeverityCritical
	}

	return b.Build(
		r.AlertType(),
		severity,
		"Downtime exceeded on "+b.location(),
		fmt.Sprintf("Downtime %.0f min exceeds the maximum %.0f min", downtime, t.MaxDowntime),
		clampDelay(downtime/60),
	), true
}
