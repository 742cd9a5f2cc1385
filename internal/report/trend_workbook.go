package report

import (
	"fmt"
	"io"
	"sort"

	"mpbf-bottleneck/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SummarySheet = "Summary"
	DailySheet   = "Daily"
	AlertsSheet  = "Alerts"

	timeLayout = "2006-01-02 15:04:05"
)

// DailyHeader 按天明细表头
var DailyHeader = []string{
	"Date",
	"Metrics",
	"Average Efficiency (%)",
	"Average Rate (units/h)",
	"Total Downtime (min)",
}

// AlertsHeader 报警明细表头
var AlertsHeader = []string{
	"Alert ID",
	"Detected At",
	"Type",
	"Severity",
	"Machine",
	"Status",
	"Estimated Delay (h)",
	"Title",
}

// WriteTrendWorkbook 将趋势报告和窗口内的报警写成 XLSX
// 三个工作表：Summary（汇总）、Daily（按天）、Alerts（报警明细）
func WriteTrendWorkbook(w io.Writer, report *models.TrendReport, alerts []models.BottleneckAlert) error {
	f := excelize.NewFile()
	defer f.Close()

	wb := &workbook{f: f}
	if err := wb.init(); err != nil {
		return err
	}

	wb.writeSummary(report)
	wb.writeDaily(report.DailyBreakdown)
	wb.writeAlerts(alerts)
	if wb.err != nil {
		return wb.err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// workbook 记录第一个错误，后续写入直接跳过
type workbook struct {
	f           *excelize.File
	headerStyle int
	err         error
}

func (wb *workbook) init() error {
	for _, name := range []string{SummarySheet, DailySheet, AlertsSheet} {
		if _, err := wb.f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}
	// 删除默认的 Sheet1
	if err := wb.f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := wb.f.GetSheetIndex(SummarySheet)
	if err != nil {
		return fmt.Errorf("failed to locate summary sheet: %w", err)
	}
	wb.f.SetActiveSheet(index)

	style, err := wb.f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	wb.headerStyle = style
	return nil
}

func (wb *workbook) set(sheet string, col, row int, value interface{}) {
	if wb.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		wb.err = err
		return
	}
	if err := wb.f.SetCellValue(sheet, cell, value); err != nil {
		wb.err = fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
	}
}

// header 写表头、设置列宽并冻结首行
func (wb *workbook) header(sheet string, headers []string, width float64) {
	for col, h := range headers {
		wb.set(sheet, col+1, 1, h)
	}
	if wb.err != nil {
		return
	}
	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		wb.err = err
		return
	}
	if err := wb.f.SetCellStyle(sheet, "A1", last+"1", wb.headerStyle); err != nil {
		wb.err = fmt.Errorf("failed to set header style: %w", err)
		return
	}
	if err := wb.f.SetColWidth(sheet, "A", last, width); err != nil {
		wb.err = fmt.Errorf("failed to set column width: %w", err)
		return
	}
	if err := wb.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		wb.err = fmt.Errorf("failed to freeze panes: %w", err)
	}
}

func (wb *workbook) writeSummary(r *models.TrendReport) {
	rows := [][2]interface{}{
		{"Section", r.SectionID},
		{"Window (days)", r.WindowDays},
		{"From", r.From.Format(timeLayout)},
		{"To", r.To.Format(timeLayout)},
		{"Metrics", r.MetricCount},
		{"Average Efficiency (%)", r.AverageEfficiency},
		{"Alerts", r.AlertCount},
	}

	// 报警按类型（名称升序）和级别计数
	types := make([]string, 0, len(r.AlertsByType))
	for t := range r.AlertsByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, [2]interface{}{"Alerts: " + t, r.AlertsByType[models.AlertType(t)]})
	}
	for _, s := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium} {
		if n, ok := r.AlertsBySeverity[s]; ok {
			rows = append(rows, [2]interface{}{"Alerts: " + string(s), n})
		}
	}

	wb.header(SummarySheet, []string{"Item", "Value"}, 28)
	for i, row := range rows {
		wb.set(SummarySheet, 1, i+2, row[0])
		wb.set(SummarySheet, 2, i+2, row[1])
	}
}

func (wb *workbook) writeDaily(days []models.DailyTrend) {
	wb.header(DailySheet, DailyHeader, 22)
	for i, d := range days {
		row := i + 2
		wb.set(DailySheet, 1, row, d.Date)
		wb.set(DailySheet, 2, row, d.MetricCount)
		wb.set(DailySheet, 3, row, d.AverageEfficiency)
		wb.set(DailySheet, 4, row, d.AverageRate)
		wb.set(DailySheet, 5, row, d.TotalDowntime)
	}
}

func (wb *workbook) writeAlerts(alerts []models.BottleneckAlert) {
	wb.header(AlertsSheet, AlertsHeader, 20)
	for i := range alerts {
		a := &alerts[i]
		row := i + 2
		machine := ""
		if a.MachineID != nil {
			machine = *a.MachineID
		}
		wb.set(AlertsSheet, 1, row, a.AlertID)
		wb.set(AlertsSheet, 2, row, a.DetectedAt.Format(timeLayout))
		wb.set(AlertsSheet, 3, row, string(a.AlertType))
		wb.set(AlertsSheet, 4, row, string(a.Severity))
		wb.set(AlertsSheet, 5, row, machine)
		wb.set(AlertsSheet, 6, row, string(a.Status))
		wb.set(AlertsSheet, 7, row, a.EstimatedDelay)
		wb.set(AlertsSheet, 8, row, a.Title)
	}
}
