package service

import (
	"context"
	"encoding/json"
	"time"

	"mpbf-bottleneck/internal/models"

	"go.uber.org/zap"
)

// GetNotificationSetting 查询用户通知偏好
func (s *BottleneckService) GetNotificationSetting(ctx context.Context, userID string) (*models.NotificationSetting, error) {
	if userID == "" {
		return nil, invalid("user_id", "is required")
	}
	return s.settings.Get(ctx, userID)
}

func (s *BottleneckService) ListNotificationSettings(ctx context.Context) ([]models.NotificationSetting, error) {
	return s.settings.List(ctx)
}

// UpsertNotificationSetting 整体写入用户通知偏好
// 本服务只校验格式，不解释偏好内容
func (s *BottleneckService) UpsertNotificationSetting(ctx context.Context, setting models.NotificationSetting) (*models.NotificationSetting, error) {
	if err := validateNotificationSetting(&setting); err != nil {
		s.logger.Warn("Rejected notification setting", zap.String("user_id", setting.UserID), zap.Error(err))
		return nil, err
	}

	out, err := s.settings.Upsert(ctx, setting)
	if err != nil {
		s.logger.Error("Failed to save notification setting", zap.String("user_id", setting.UserID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Notification setting saved", zap.String("user_id", setting.UserID))
	return out, nil
}

func validateNotificationSetting(n *models.NotificationSetting) error {
	if n.UserID == "" {
		return invalid("user_id", "is required")
	}
	if n.MinSeverity != nil && !n.MinSeverity.Valid() {
		return invalid("min_severity", "unknown value %q", *n.MinSeverity)
	}
	for _, t := range n.AlertTypes {
		if !t.Valid() {
			return invalid("alert_types", "unknown value %q", t)
		}
	}
	for field, v := range map[string]*string{"quiet_hours_start": n.QuietHoursStart, "quiet_hours_end": n.QuietHoursEnd} {
		if v == nil {
			continue
		}
		if _, err := time.Parse("15:04", *v); err != nil {
			return invalid(field, "must be HH:MM")
		}
	}
	if len(n.Extra) > 0 && !json.Valid(n.Extra) {
		return invalid("extra", "must be valid JSON")
	}
	if n.SectionIDs == nil {
		n.SectionIDs = []string{}
	}
	if n.AlertTypes == nil {
		n.AlertTypes = []models.AlertType{}
	}
	return nil
}
