package evaluator

import "math"

// MaxEstimatedDelayHours 预计延误上限（小时）
// 分母为 0（效率或实际产能为 0）时也使用该值
const MaxEstimatedDelayHours = 72

// ceilEpsilon 抵消浮点误差：结果本应为整数但略大于该整数时不多算 1 小时
const ceilEpsilon = 1e-9

// clampDelay 向上取整并限制在 [0, MaxEstimatedDelayHours]
func clampDelay(hours float64) int {
	if math.IsNaN(hours) || math.IsInf(hours, 1) {
		return MaxEstimatedDelayHours
	}
	if hours <= 0 {
		return 0
	}
	v := math.Ceil(hours - ceilEpsilon)
	if v > MaxEstimatedDelayHours {
		return MaxEstimatedDelayHours
	}
	return int(v)
}

// ratioDelay ceil((expected/actual - 1) * hoursPerUnit)；actual <= 0 时返回上限
func ratioDelay(expected, actual, hoursPerUnit float64) int {
	if actual <= 0 {
		return MaxEstimatedDelayHours
	}
	return clampDelay((expected/actual - 1) * hoursPerUnit)
}
