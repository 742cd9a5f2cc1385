package evaluator

import (
	"fmt"

	"mpbf-bottleneck/internal/models"
)

const (
	rateAlertRatio    = 0.8 // 实际产能低于目标的 80% 才报警
	rateCriticalRatio = 0.5 // 低于目标的 50% 为 critical
	rateDelayHours    = 4.0
)

// RateBelowTargetRule 实际产能明显低于目标产能
type RateBelowTargetRule struct{}

func (RateBelowTargetRule) AlertType() models.AlertType {
	return models.AlertTypeRateBelowTarget
}

// Evaluate actualRate < targetRate * 0.8 时触发；< targetRate * 0.5 为 critical，否则 high
func (r RateBelowTargetRule) Evaluate(b *AlertProposalBuilder, m *models.ProductionMetric, t *models.ProductionTarget) (models.AlertProposal, bool) {
	threshold := t.TargetRate * rateAlertRatio
	if m.ActualRate >= threshold {
		return models.AlertProposal{}, false
	}

	severity := models.SeverityHigh
	if m.ActualRate < t.TargetRate*rateCriticalRatio {
		severity = models.SeverityCritical
	}

	return b.Build(
		r.AlertType(),
		severity,
		"Production rate below target on "+b.location(),
		fmt.Sprintf("Actual rate %.1f units/h is below %.0f%% of the target %.1f units/h (threshold %.1f units/h)",
			m.ActualRate, rateAlertRatio*100, t.TargetRate, threshold),
		ratioDelay(t.TargetRate, m.ActualRate, rateDelayHours),
	), true
}
