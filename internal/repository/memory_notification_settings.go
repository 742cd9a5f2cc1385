package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mpbf-bottleneck/internal/models"
)

// MemoryNotificationSettingsStore 内存通知偏好仓库
type MemoryNotificationSettingsStore struct {
	mu       sync.RWMutex
	settings map[string]models.NotificationSetting // userID -> setting
	clock    Clock
}

func NewMemoryNotificationSettingsStore(clock Clock) *MemoryNotificationSettingsStore {
	return &MemoryNotificationSettingsStore{
		settings: map[string]models.NotificationSetting{},
		clock:    clock,
	}
}

var _ NotificationSettingsStore = (*MemoryNotificationSettingsStore)(nil)

func (s *MemoryNotificationSettingsStore) Get(_ context.Context, userID string) (*models.NotificationSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.settings[userID]
	if !ok {
		return nil, fmt.Errorf("user_id=%s: %w", userID, models.ErrSettingNotFound)
	}
	out := n.Clone()
	return &out, nil
}

// Upsert 整体替换用户偏好；created_at 在首次写入时确定
func (s *MemoryNotificationSettingsStore) Upsert(_ context.Context, setting models.NotificationSetting) (*models.NotificationSetting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.stamp()
	stored := setting.Clone()
	stored.CreatedAt = now
	if prev, ok := s.settings[setting.UserID]; ok {
		stored.CreatedAt = prev.CreatedAt
	}
	stored.UpdatedAt = now
	s.settings[setting.UserID] = stored

	out := stored.Clone()
	return &out, nil
}

func (s *MemoryNotificationSettingsStore) List(_ context.Context) ([]models.NotificationSetting, error) {
	s.mu.RLock()
	out := make([]models.NotificationSetting, 0, len(s.settings))
	for _, n := range s.settings {
		out = append(out, n.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
