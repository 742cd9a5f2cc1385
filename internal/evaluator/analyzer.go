package evaluator

import (
	"mpbf-bottleneck/internal/models"
)

// Rule 单条瓶颈检测规则，每条测量最多产生一个提案
type Rule interface {
	AlertType() models.AlertType
	Evaluate(b *AlertProposalBuilder, m *models.ProductionMetric, t *models.ProductionTarget) (models.AlertProposal, bool)
}

// Analyzer 瓶颈分析器（纯计算，不访问存储）
type Analyzer struct {
	rules []Rule
}

// NewAnalyzer 创建分析器；规则顺序即提案输出顺序
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		rules: []Rule{
			EfficiencyDropRule{},
			RateBelowTargetRule{},
			DowntimeExceededRule{},
		},
	}
}

// Analyze 用已匹配的目标评估测量，返回 0~3 个报警提案
func (a *Analyzer) Analyze(metric *models.ProductionMetric, target *models.ProductionTarget) []models.AlertProposal {
	if metric == nil || target == nil {
		return nil
	}

	builder := NewAlertProposalBuilder(metric)
	var proposals []models.AlertProposal
	for _, rule := range a.rules {
		if p, ok := rule.Evaluate(builder, metric, target); ok {
			proposals = append(proposals, p)
		}
	}
	return proposals
}

// Evaluate 先从目标快照中匹配目标，再执行规则
// 返回匹配到的目标（无匹配时为 nil）；目标冲突时返回 *AmbiguousTargetError 且不产生提案
func (a *Analyzer) Evaluate(metric *models.ProductionMetric, candidates []models.ProductionTarget) ([]models.AlertProposal, *models.ProductionTarget, error) {
	target, err := ResolveTarget(metric, candidates)
	if err != nil || target == nil {
		return nil, nil, err
	}
	return a.Analyze(metric, target), target, nil
}
