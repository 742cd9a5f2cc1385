package models

import (
	"encoding/json"
	"time"
)

// NotificationSetting 用户报警通知偏好
// 本服务只负责存取，外部通知器自行解释这些字段
type NotificationSetting struct {
	UserID          string          `json:"user_id" db:"user_id"`
	EmailEnabled    bool            `json:"email_enabled" db:"email_enabled"`
	SMSEnabled      bool            `json:"sms_enabled" db:"sms_enabled"`
	PushEnabled     bool            `json:"push_enabled" db:"push_enabled"`
	MinSeverity     *Severity       `json:"min_severity,omitempty" db:"min_severity"`
	SectionIDs      []string        `json:"section_ids" db:"section_ids"`
	AlertTypes      []AlertType     `json:"alert_types" db:"alert_types"`
	QuietHoursStart *string         `json:"quiet_hours_start,omitempty" db:"quiet_hours_start"` // "22:00"
	QuietHoursEnd   *string         `json:"quiet_hours_end,omitempty" db:"quiet_hours_end"`     // "06:30"
	Extra           json.RawMessage `json:"extra,omitempty" db:"extra"`                         // JSONB
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Clone 深拷贝
func (n NotificationSetting) Clone() NotificationSetting {
	out := n
	out.SectionIDs = append([]string{}, n.SectionIDs...)
	out.AlertTypes = append([]AlertType{}, n.AlertTypes...)
	out.QuietHoursStart = cloneString(n.QuietHoursStart)
	out.QuietHoursEnd = cloneString(n.QuietHoursEnd)
	if n.MinSeverity != nil {
		s := *n.MinSeverity
		out.MinSeverity = &s
	}
	if n.Extra != nil {
		out.Extra = append(json.RawMessage{}, n.Extra...)
	}
	return out
}
