package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"mpbf-bottleneck/common/redis"
	"mpbf-bottleneck/internal/config"
	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/repository"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlertMessage 写入 stream 的报警事件
type AlertMessage struct {
	Event models.AlertEvent       `json:"event"`
	Alert *models.BottleneckAlert `json:"alert"`
}

// AlertPublisher 报警事件发布器（Redis）
// 1. 事件 XADD 到报警 stream，供外部通知器消费
// 2. 刷新工段未解决报警快照缓存（带 TTL）
type AlertPublisher struct {
	config      *config.Config
	redisClient *goredis.Client
	alerts      repository.AlertRegistry
	logger      *zap.Logger

	sectionLocks sync.Map // sectionID -> *sync.Mutex
}

// NewAlertPublisher 创建发布器
func NewAlertPublisher(
	cfg *config.Config,
	redisClient *goredis.Client,
	alerts repository.AlertRegistry,
	logger *zap.Logger,
) *AlertPublisher {
	return &AlertPublisher{
		config:      cfg,
		redisClient: redisClient,
		alerts:      alerts,
		logger:      logger,
	}
}

// PublishAlert 发布报警事件并刷新该工段的缓存
func (p *AlertPublisher) PublishAlert(ctx context.Context, event models.AlertEvent, alert *models.BottleneckAlert) error {
	msg := AlertMessage{Event: event, Alert: alert}
	id, err := redis.PublishJSONToStream(ctx, p.redisClient, p.config.Alert.Stream, string(event), msg, p.config.Alert.StreamMaxLen)
	if err != nil {
		return err
	}
	p.logger.Debug("Published alert event",
		zap.String("stream", p.config.Alert.Stream),
		zap.String("message_id", id),
		zap.String("event", string(event)),
		zap.String("alert_id", alert.AlertID),
	)

	return p.RefreshSectionCache(ctx, alert.SectionID)
}

// RefreshSectionCache 重新计算工段未解决报警（active + acknowledged）并写入缓存
// 同一工段的读取和 SET 串行执行，后写入的快照总是较新的读取结果。
// 多实例部署时不做跨进程协调，旧快照最多保留到 TTL 过期。
func (p *AlertPublisher) RefreshSectionCache(ctx context.Context, sectionID string) error {
	lock := p.sectionLock(sectionID)
	lock.Lock()
	defer lock.Unlock()

	alerts, err := p.alerts.Query(ctx, models.AlertFilters{SectionID: &sectionID})
	if err != nil {
		return fmt.Errorf("failed to load section alerts: %w", err)
	}
	open := make([]models.BottleneckAlert, 0, len(alerts))
	for i := range alerts {
		if alerts[i].Status.IsOpen() {
			open = append(open, alerts[i])
		}
	}
	return p.UpdateSectionCache(ctx, sectionID, open)
}

// UpdateSectionCache 写入工段报警快照（设置 TTL）
func (p *AlertPublisher) UpdateSectionCache(ctx context.Context, sectionID string, alerts []models.BottleneckAlert) error {
	key := p.sectionKey(sectionID)

	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alert snapshot: %w", err)
	}

	if err := p.redisClient.Set(ctx, key, jsonData, p.config.CacheTTL()).Err(); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	p.logger.Debug("Updated section alert cache",
		zap.String("section_id", sectionID),
		zap.String("key", key),
		zap.Int("alert_count", len(alerts)),
	)
	return nil
}

// GetSectionCache 读取工段报警快照；缓存不存在时返回 (nil, false, nil)
func (p *AlertPublisher) GetSectionCache(ctx context.Context, sectionID string) ([]models.BottleneckAlert, bool, error) {
	val, err := p.redisClient.Get(ctx, p.sectionKey(sectionID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get alert cache: %w", err)
	}

	var alerts []models.BottleneckAlert
	if err := json.Unmarshal([]byte(val), &alerts); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal alert snapshot: %w", err)
	}
	return alerts, true, nil
}

func (p *AlertPublisher) sectionLock(sectionID string) *sync.Mutex {
	lock, _ := p.sectionLocks.LoadOrStore(sectionID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (p *AlertPublisher) sectionKey(sectionID string) string {
	return fmt.Sprintf("%s%s%s", p.config.Alert.Cache.KeyPrefix, sectionID, p.config.Alert.Cache.KeySuffix)
}
