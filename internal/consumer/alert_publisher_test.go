package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"mpbf-bottleneck/internal/config"
	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Alert.Stream = "production:alerts"
	cfg.Alert.StreamMaxLen = 100
	cfg.Alert.Cache.KeyPrefix = "production:section:"
	cfg.Alert.Cache.KeySuffix = ":active_alerts"
	cfg.Alert.Cache.TTL = 300
	cfg.MQTT.Topic = "production/metrics/+"
	cfg.MQTT.QoS = 1
	return cfg
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client, *repository.MemoryAlertRegistry, *AlertPublisher) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = redisClient.Close() })

	alerts := repository.NewMemoryAlertRegistry(func() time.Time {
		return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	})
	publisher := NewAlertPublisher(testConfig(), redisClient, alerts, zap.NewNop())
	return mr, redisClient, alerts, publisher
}

func proposal(section string, alertType models.AlertType) models.AlertProposal {
	return models.AlertProposal{
		AlertType:        alertType,
		Severity:         models.SeverityHigh,
		SectionID:        section,
		Title:            "Efficiency drop on S1",
		Description:      "Efficiency 60.0% is below the minimum 70.0% for the day shift",
		EstimatedDelay:   2,
		SuggestedActions: []string{"Check machine calibration"},
	}
}

func TestAlertPublisher_PublishAlert_WritesStreamAndCache(t *testing.T) {
	mr, redisClient, alerts, publisher := setupTestRedis(t)
	ctx := context.Background()

	created, err := alerts.Create(ctx, proposal("S1", models.AlertTypeEfficiencyDrop))
	require.NoError(t, err)
	_, err = alerts.Create(ctx, proposal("S2", models.AlertTypeRateBelowTarget))
	require.NoError(t, err)

	err = publisher.PublishAlert(ctx, models.AlertEventCreated, created)
	require.NoError(t, err)

	// stream 中的消息
	msgs, err := redisClient.XRange(ctx, "production:alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "alert.created", msgs[0].Values["type"])

	var msg AlertMessage
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &msg))
	assert.Equal(t, models.AlertEventCreated, msg.Event)
	require.NotNil(t, msg.Alert)
	assert.Equal(t, created.AlertID, msg.Alert.AlertID)

	// 只缓存本工段的未解决报警
	cached, ok, err := publisher.GetSectionCache(ctx, "S1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, created.AlertID, cached[0].AlertID)
	assert.Equal(t, 5*time.Minute, mr.TTL("production:section:S1:active_alerts"))

	_, ok, err = publisher.GetSectionCache(ctx, "S2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertPublisher_ResolvedAlertLeavesCache(t *testing.T) {
	_, redisClient, alerts, publisher := setupTestRedis(t)
	ctx := context.Background()

	first, _ := alerts.Create(ctx, proposal("S1", models.AlertTypeEfficiencyDrop))
	second, _ := alerts.Create(ctx, proposal("S1", models.AlertTypeDowntimeExceeded))
	require.NoError(t, publisher.PublishAlert(ctx, models.AlertEventCreated, first))
	require.NoError(t, publisher.PublishAlert(ctx, models.AlertEventCreated, second))

	acked, err := alerts.Acknowledge(ctx, first.AlertID, "op-1")
	require.NoError(t, err)
	require.NoError(t, publisher.PublishAlert(ctx, models.AlertEventAcknowledged, acked))

	cached, _, err := publisher.GetSectionCache(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	resolved, err := alerts.Resolve(ctx, second.AlertID, "op-1", nil)
	require.NoError(t, err)
	require.NoError(t, publisher.PublishAlert(ctx, models.AlertEventResolved, resolved))

	cached, ok, err := publisher.GetSectionCache(ctx, "S1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.Equal(t, first.AlertID, cached[0].AlertID)
	assert.Equal(t, models.AlertStatusAcknowledged, cached[0].Status)

	n, err := redisClient.XLen(ctx, "production:alerts").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestAlertPublisher_RedisUnavailable(t *testing.T) {
	mr, _, alerts, publisher := setupTestRedis(t)
	ctx := context.Background()
	created, _ := alerts.Create(ctx, proposal("S1", models.AlertTypeEfficiencyDrop))

	mr.Close()

	err := publisher.PublishAlert(ctx, models.AlertEventCreated, created)
	assert.Error(t, err)
}

func TestAlertPublisher_GetSectionCache_Corrupted(t *testing.T) {
	mr, _, _, publisher := setupTestRedis(t)
	require.NoError(t, mr.Set("production:section:S1:active_alerts", "not-json"))

	_, _, err := publisher.GetSectionCache(context.Background(), "S1")
	assert.Error(t, err)
}

// stallingAlerts 第一次 Query 读到结果后阻塞，直到 release 关闭（模拟读到旧快照的慢刷新）
type stallingAlerts struct {
	repository.AlertRegistry
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stallingAlerts) Query(ctx context.Context, filters models.AlertFilters) ([]models.BottleneckAlert, error) {
	out, err := s.AlertRegistry.Query(ctx, filters)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return out, err
}

func TestAlertPublisher_ConcurrentRefreshKeepsNewestSnapshot(t *testing.T) {
	_, redisClient, alerts, _ := setupTestRedis(t)
	ctx := context.Background()

	created, err := alerts.Create(ctx, proposal("S1", models.AlertTypeEfficiencyDrop))
	require.NoError(t, err)

	stalling := &stallingAlerts{
		AlertRegistry: alerts,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	publisher := NewAlertPublisher(testConfig(), redisClient, stalling, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, publisher.RefreshSectionCache(ctx, "S1"))
	}()
	<-stalling.entered

	// 第一次刷新读到 active 之后报警被解决，第二次刷新随后开始
	_, err = alerts.Resolve(ctx, created.AlertID, "op", nil)
	require.NoError(t, err)
	go func() {
		defer wg.Done()
		assert.NoError(t, publisher.RefreshSectionCache(ctx, "S1"))
	}()
	time.Sleep(50 * time.Millisecond)
	close(stalling.release)
	wg.Wait()

	cached, found, err := publisher.GetSectionCache(ctx, "S1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, cached)
}
