package evaluator

import "mpbf-bottleneck/internal/models"

// 各报警类型的处置建议（顺序即推荐执行顺序）
var suggestedActions = map[models.AlertType][]string{
	models.AlertTypeEfficiencyDrop: {
		"Check machine calibration and settings",
		"Inspect raw material quality",
		"Review operator training",
		"Verify maintenance schedule compliance",
		"Check for equipment wear or damage",
	},
	models.AlertTypeRateBelowTarget: {
		"Optimize machine speed settings",
		"Check for material flow issues",
		"Review job setup parameters",
		"Inspect for mechanical bottlenecks",
		"Consider additional operator support",
	},
	models.AlertTypeDowntimeExceeded: {
		"Investigate root cause of downtime",
		"Check preventive maintenance schedule",
		"Review spare parts availability",
		"Ensure technical support is available",
		"Consider backup equipment activation",
	},
}

const fallbackAction = "Contact production supervisor for immediate assessment"

// SuggestedActions 返回报警类型对应的处置建议副本；未知类型返回单条兜底建议
func SuggestedActions(alertType models.AlertType) []string {
	actions, ok := suggestedActions[alertType]
	if !ok {
		return []string{fallbackAction}
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}
