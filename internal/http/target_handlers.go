package httpapi

import (
	"net/http"

	"mpbf-bottleneck/internal/models"
)

// ListTargets GET /targets?section_id（只返回启用中的目标）
func (h *ProductionHandler) ListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := h.svc.ListActiveTargets(r.Context(), r.URL.Query().Get("section_id"))
	if err != nil {
		h.fail(w, r, "list_targets", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(targets))
}

func (h *ProductionHandler) GetTarget(w http.ResponseWriter, r *http.Request, targetID string) {
	target, err := h.svc.GetTarget(r.Context(), targetID)
	if err != nil {
		h.fail(w, r, "get_target", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(target))
}

// CreateTarget POST /targets
func (h *ProductionHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	var input models.TargetInput
	if err := readBodyJSON(r, maxBodyBytes, &input); err != nil {
		h.fail(w, r, "create_target", err)
		return
	}

	target, err := h.svc.CreateTarget(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create_target", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(target))
}

// UpdateTarget PUT /targets/{id}
// 只更新 body 中出现的字段；machine_id 为 "" 表示改为适用任意机台，is_active=false 停用
func (h *ProductionHandler) UpdateTarget(w http.ResponseWriter, r *http.Request, targetID string) {
	var update models.TargetUpdate
	if err := readBodyJSON(r, maxBodyBytes, &update); err != nil {
		h.fail(w, r, "update_target", err)
		return
	}

	target, err := h.svc.UpdateTarget(r.Context(), targetID, update)
	if err != nil {
		h.fail(w, r, "update_target", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(target))
}
