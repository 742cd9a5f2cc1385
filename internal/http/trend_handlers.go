package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/report"

	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GetEfficiencyTrend GET /trends/efficiency?section_id&days
func (h *ProductionHandler) GetEfficiencyTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := h.loadTrend(r)
	if err != nil {
		h.fail(w, r, "efficiency_trend", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(trend))
}

// ExportEfficiencyTrend GET /trends/efficiency/export?section_id&days
// 下载 XLSX：汇总、按天明细、窗口内报警
func (h *ProductionHandler) ExportEfficiencyTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := h.loadTrend(r)
	if err != nil {
		h.fail(w, r, "export_efficiency_trend", err)
		return
	}

	alerts, err := h.svc.ListAlerts(r.Context(), models.AlertFilters{
		SectionID: &trend.SectionID,
		StartTime: &trend.From,
		EndTime:   &trend.To,
	})
	if err != nil {
		h.fail(w, r, "export_efficiency_trend", err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteTrendWorkbook(&buf, trend, alerts); err != nil {
		h.fail(w, r, "export_efficiency_trend", err)
		return
	}

	filename := fmt.Sprintf("efficiency-trend-%s-%s.xlsx", trend.SectionID, trend.To.Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("Failed to send trend workbook", zap.String("section_id", trend.SectionID), zap.Error(err))
	}
}

func (h *ProductionHandler) loadTrend(r *http.Request) (*models.TrendReport, error) {
	q := r.URL.Query()
	days, err := parseInt(q.Get("days"), 0)
	if err != nil {
		return nil, err
	}
	return h.svc.GetEfficiencyTrend(r.Context(), q.Get("section_id"), days)
}
