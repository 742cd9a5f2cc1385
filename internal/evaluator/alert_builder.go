package evaluator

import (
	"fmt"

	"mpbf-bottleneck/internal/models"
)

// AlertProposalBuilder 报警提案构建器
// 同一测量产生的所有提案共享 section / machine / metric / 工单信息
type AlertProposalBuilder struct {
	metric *models.ProductionMetric
}

// NewAlertProposalBuilder 创建报警提案构建器
func NewAlertProposalBuilder(metric *models.ProductionMetric) *AlertProposalBuilder {
	return &AlertProposalBuilder{metric: metric}
}

// Build 构建报警提案
func (b *AlertProposalBuilder) Build(
	alertType models.AlertType,
	severity models.Severity,
	title string,
	description string,
	estimatedDelay int,
) models.AlertProposal {
	m := b.metric

	affected := []string{}
	if m.JobOrderID != nil && *m.JobOrderID != "" {
		affected = append(affected, *m.JobOrderID)
	}

	var machineID, metricID *string
	if m.MachineID != nil {
		v := *m.MachineID
		machineID = &v
	}
	if m.MetricID != "" {
		v := m.MetricID
		metricID = &v
	}

	return models.AlertProposal{
		AlertType:         alertType,
		Severity:          severity,
		SectionID:         m.SectionID,
		MachineID:         machineID,
		MetricID:          metricID,
		Title:             title,
		Description:       description,
		AffectedJobOrders: affected,
		EstimatedDelay:    estimatedDelay,
		SuggestedActions:  SuggestedActions(alertType),
	}
}

// location 报警标题中的位置描述
func (b *AlertProposalBuilder) location() string {
	if b.metric.MachineID != nil && *b.metric.MachineID != "" {
		return fmt.Sprintf("machine %s (section %s, %s)", *b.metric.MachineID, b.metric.SectionID, b.metric.Stage)
	}
	return fmt.Sprintf("section %s (%s)", b.metric.SectionID, b.metric.Stage)
}
