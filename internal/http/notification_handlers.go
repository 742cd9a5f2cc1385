package httpapi

import (
	"net/http"

	"mpbf-bottleneck/internal/models"
)

// ListNotificationSettings GET /notification-settings
func (h *ProductionHandler) ListNotificationSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.ListNotificationSettings(r.Context())
	if err != nil {
		h.fail(w, r, "list_notification_settings", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(settings))
}

// GetNotificationSetting GET /notification-settings/{user_id}
func (h *ProductionHandler) GetNotificationSetting(w http.ResponseWriter, r *http.Request, userID string) {
	setting, err := h.svc.GetNotificationSetting(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "get_notification_setting", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(setting))
}

// UpsertNotificationSetting PUT /notification-settings/{user_id}
// 整体覆盖；user_id 以路径为准
func (h *ProductionHandler) UpsertNotificationSetting(w http.ResponseWriter, r *http.Request, userID string) {
	var setting models.NotificationSetting
	if err := readBodyJSON(r, maxBodyBytes, &setting); err != nil {
		h.fail(w, r, "upsert_notification_setting", err)
		return
	}
	setting.UserID = userID

	saved, err := h.svc.UpsertNotificationSetting(r.Context(), setting)
	if err != nil {
		h.fail(w, r, "upsert_notification_setting", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(saved))
}
