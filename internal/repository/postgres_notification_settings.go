package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mpbf-bottleneck/internal/models"

	"github.com/lib/pq"
)

const settingColumns = `user_id, email_enabled, sms_enabled, push_enabled, min_severity,
	section_ids, alert_types, quiet_hours_start, quiet_hours_end, extra, created_at, updated_at`

// PostgresNotificationSettingsStore 通知偏好仓库（notification_settings 表）
type PostgresNotificationSettingsStore struct {
	db    *sql.DB
	clock Clock
}

func NewPostgresNotificationSettingsStore(db *sql.DB, clock Clock) *PostgresNotificationSettingsStore {
	return &PostgresNotificationSettingsStore{db: db, clock: clock}
}

var _ NotificationSettingsStore = (*PostgresNotificationSettingsStore)(nil)

func (s *PostgresNotificationSettingsStore) Get(ctx context.Context, userID string) (*models.NotificationSetting, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_settings WHERE user_id = $1`, settingColumns)
	n, err := scanSetting(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user_id=%s: %w", userID, models.ErrSettingNotFound)
		}
		return nil, err
	}
	return n, nil
}

func (s *PostgresNotificationSettingsStore) Upsert(ctx context.Context, setting models.NotificationSetting) (*models.NotificationSetting, error) {
	now := s.clock.stamp()

	var minSeverity interface{}
	if setting.MinSeverity != nil {
		minSeverity = string(*setting.MinSeverity)
	}
	alertTypes := make([]string, len(setting.AlertTypes))
	for i, t := range setting.AlertTypes {
		alertTypes[i] = string(t)
	}
	var extra interface{}
	if len(setting.Extra) > 0 {
		extra = []byte(setting.Extra)
	}

	query := fmt.Sprintf(`
		INSERT INTO notification_settings (
			user_id, email_enabled, sms_enabled, push_enabled, min_severity,
			section_ids, alert_types, quiet_hours_start, quiet_hours_end, extra,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			sms_enabled = EXCLUDED.sms_enabled,
			push_enabled = EXCLUDED.push_enabled,
			min_severity = EXCLUDED.min_severity,
			section_ids = EXCLUDED.section_ids,
			alert_types = EXCLUDED.alert_types,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			extra = EXCLUDED.extra,
			updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, settingColumns)

	return scanSetting(s.db.QueryRowContext(ctx, query,
		setting.UserID,
		setting.EmailEnabled,
		setting.SMSEnabled,
		setting.PushEnabled,
		minSeverity,
		pq.Array(setting.SectionIDs),
		pq.Array(alertTypes),
		stringArg(setting.QuietHoursStart),
		stringArg(setting.QuietHoursEnd),
		extra,
		now,
	))
}

func (s *PostgresNotificationSettingsStore) List(ctx context.Context) ([]models.NotificationSetting, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_settings ORDER BY user_id ASC`, settingColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification settings: %w", err)
	}
	defer rows.Close()

	out := []models.NotificationSetting{}
	for rows.Next() {
		n, err := scanSetting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification settings: %w", err)
	}
	return out, nil
}

func scanSetting(row rowScanner) (*models.NotificationSetting, error) {
	var (
		n                      models.NotificationSetting
		minSeverity            sql.NullString
		sectionIDs, alertTypes pq.StringArray
		quietStart, quietEnd   sql.NullString
		extra                  []byte
	)
	err := row.Scan(
		&n.UserID,
		&n.EmailEnabled,
		&n.SMSEnabled,
		&n.PushEnabled,
		&minSeverity,
		&sectionIDs,
		&alertTypes,
		&quietStart,
		&quietEnd,
		&extra,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan notification setting: %w", err)
	}
	if minSeverity.Valid {
		sev := models.Severity(minSeverity.String)
		n.MinSeverity = &sev
	}
	n.SectionIDs = append([]string{}, sectionIDs...)
	n.AlertTypes = make([]models.AlertType, len(alertTypes))
	for i, t := range alertTypes {
		n.AlertTypes[i] = models.AlertType(t)
	}
	n.QuietHoursStart = nullString(quietStart)
	n.QuietHoursEnd = nullString(quietEnd)
	if len(extra) > 0 {
		n.Extra = json.RawMessage(extra)
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return &n, nil
}
