package httpapi

import (
	"net/http"

	"mpbf-bottleneck/internal/models"

	"go.uber.org/zap"
)

// ============================================
// Metrics
// ============================================

// RecordMetric POST /metrics
// 返回写入的测量以及本次触发的报警
func (h *ProductionHandler) RecordMetric(w http.ResponseWriter, r *http.Request) {
	var input models.MetricInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		h.fail(w, r, "record_metric", err)
		return
	}

	result, err := h.svc.RecordMetric(r.Context(), input)
	if err != nil {
		h.fail(w, r, "record_metric", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// ListMetrics GET /metrics?section_id&machine_id&start&end
func (h *ProductionHandler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime("start", q.Get("start"))
	if err != nil {
		h.fail(w, r, "list_metrics", err)
		return
	}
	end, err := parseTime("end", q.Get("end"))
	if err != nil {
		h.fail(w, r, "list_metrics", err)
		return
	}

	metrics, err := h.svc.ListMetrics(r.Context(), models.MetricFilters{
		SectionID: optString(q.Get("section_id")),
		MachineID: optString(q.Get("machine_id")),
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		h.fail(w, r, "list_metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(metrics))
}

// ============================================
// Alerts
// ============================================

// ListAlerts GET /alerts?status&section_id&machine_id&severity&alert_type&start&end
func (h *ProductionHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseTime("start", q.Get("start"))
	if err != nil {
		h.fail(w, r, "list_alerts", err)
		return
	}
	end, err := parseTime("end", q.Get("end"))
	if err != nil {
		h.fail(w, r, "list_alerts", err)
		return
	}

	filters := models.AlertFilters{
		SectionID: optString(q.Get("section_id")),
		MachineID: optString(q.Get("machine_id")),
		StartTime: start,
		EndTime:   end,
	}
	if v := optString(q.Get("status")); v != nil {
		status := models.AlertStatus(*v)
		filters.Status = &status
	}
	if v := optString(q.Get("severity")); v != nil {
		severity := models.Severity(*v)
		filters.Severity = &severity
	}
	if v := optString(q.Get("alert_type")); v != nil {
		alertType := models.AlertType(*v)
		filters.AlertType = &alertType
	}

	alerts, err := h.svc.ListAlerts(r.Context(), filters)
	if err != nil {
		h.fail(w, r, "list_alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// GetAlert GET /alerts/{id}
func (h *ProductionHandler) GetAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	alert, err := h.svc.GetAlert(r.Context(), alertID)
	if err != nil {
		h.fail(w, r, "get_alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// AcknowledgeAlert PUT /alerts/{id}/acknowledge（操作人取 X-User-Id）
func (h *ProductionHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	userID := r.Header.Get("X-User-Id")

	alert, err := h.svc.AcknowledgeAlert(r.Context(), alertID, userID)
	if err != nil {
		h.fail(w, r, "acknowledge_alert", err)
		return
	}
	h.logger.Debug("Alert acknowledged via API", zap.String("alert_id", alertID), zap.String("user_id", userID))
	writeJSON(w, http.StatusOK, Ok(alert))
}

type resolveAlertRequest struct {
	ResolutionNotes *string `json:"resolution_notes"`
}

// ResolveAlert PUT /alerts/{id}/resolve，body: {"resolution_notes": "..."}（可省略）
func (h *ProductionHandler) ResolveAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	userID := r.Header.Get("X-User-Id")

	var req resolveAlertRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		h.fail(w, r, "resolve_alert", err)
		return
	}

	alert, err := h.svc.ResolveAlert(r.Context(), alertID, userID, req.ResolutionNotes)
	if err != nil {
		h.fail(w, r, "resolve_alert", err)
		return
	}
	h.logger.Debug("Alert resolved via API", zap.String("alert_id", alertID), zap.String("user_id", userID))
	writeJSON(w, http.StatusOK, Ok(alert))
}
