package evaluator

import (
	"fmt"

	"mpbf-bottleneck/internal/models"
)

// 按一个 8 小时班次估算效率不足造成的延误
const shiftHours = 8.0

// EfficiencyDropRule 效率低于目标最低效率
type EfficiencyDropRule struct{}

func (EfficiencyDropRule) AlertType() models.AlertType {
	return models.AlertTypeEfficiencyDrop
}

// Evaluate efficiency < minEfficiency 时触发
// 级别：< 50 critical，< 65 high，其余 medium
func (r EfficiencyDropRule) Evaluate(b *AlertProposalBuilder, m *models.ProductionMetric, t *models.ProductionTarget) (models.AlertProposal, bool) {
	if m.Efficiency >= t.MinEfficiency {
		return models.AlertProposal{}, false
	}

	severity := models.SeverityMedium
	switch {
	case m.Efficiency < 50:
		severity = models.SeverityCritical
	case m.Efficiency < 65:
		severity = models.SeverityHigh
	}

	return b.Build(
		r.AlertType(),
		severity,
		"Efficiency drop on "+b.location(),
		fmt.Sprintf("Efficiency %.1f%% is below the minimum %.1f%% for the %s shift", m.Efficiency, t.MinEfficiency, m.Shift),
		ratioDelay(t.MinEfficiency, m.Efficiency, shiftHours),
	), true
}
