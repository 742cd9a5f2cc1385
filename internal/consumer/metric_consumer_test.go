package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqttcommon "mpbf-bottleneck/common/mqtt"
	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/repository"
	"mpbf-bottleneck/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	subscribed   map[string]mqttcommon.MessageHandler
	qos          byte
	unsubscribed []string
	err          error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: map[string]mqttcommon.MessageHandler{}}
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subscribed[topic] = handler
	f.qos = qos
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSubscriber) handler(topic string) mqttcommon.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[topic]
}

// MockMetricRecorder is a mock implementation of MetricRecorder
type MockMetricRecorder struct {
	mock.Mock
}

func (m *MockMetricRecorder) RecordMetric(ctx context.Context, input models.MetricInput) (*service.RecordMetricResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RecordMetricResult), args.Error(1)
}

func newTestService(t *testing.T) (*service.BottleneckService, *repository.MemoryMetricStore) {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }
	metrics := repository.NewMemoryMetricStore(clock)
	targets := repository.NewMemoryTargetRegistry(clock)
	alerts := repository.NewMemoryAlertRegistry(clock)
	settings := repository.NewMemoryNotificationSettingsStore(clock)
	svc := service.NewBottleneckService(metrics, targets, alerts, settings,
		service.NewTrendAnalytics(metrics, alerts, clock, time.UTC, 0),
		service.Options{}, zap.NewNop())

	_, err := svc.CreateTarget(context.Background(), models.TargetInput{
		SectionID:     "S1",
		Stage:         models.StageExtruding,
		Shift:         models.ShiftDay,
		TargetRate:    100,
		MinEfficiency: 70,
		MaxDowntime:   30,
	})
	require.NoError(t, err)
	return svc, metrics
}

func TestMetricConsumer_HandleMessage(t *testing.T) {
	svc, metrics := newTestService(t)
	c := NewMetricConsumer(testConfig(), newFakeSubscriber(), svc, zap.NewNop())

	payload := []byte(`{"section_id":"S1","machine_id":"EXT-01","stage":"extruding","shift":"day",
		"target_rate":100,"actual_rate":95,"efficiency":40,"downtime":10}`)
	require.NoError(t, c.HandleMessage("production/metrics/S1", payload))

	stored, err := metrics.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].MachineID)
	assert.Equal(t, "EXT-01", *stored[0].MachineID)

	alerts, err := svc.ListAlerts(context.Background(), models.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertTypeEfficiencyDrop, alerts[0].AlertType)
}

func TestMetricConsumer_SectionFromTopic(t *testing.T) {
	svc, metrics := newTestService(t)
	c := NewMetricConsumer(testConfig(), newFakeSubscriber(), svc, zap.NewNop())

	payload := []byte(`{"stage":"cutting","shift":"night","target_rate":50,"actual_rate":48,"efficiency":96}`)
	require.NoError(t, c.HandleMessage("production/metrics/S7", payload))

	stored, _ := metrics.BySection(context.Background(), "S7")
	assert.Len(t, stored, 1)
}

func TestMetricConsumer_InvalidPayloadsDropped(t *testing.T) {
	svc, metrics := newTestService(t)
	c := NewMetricConsumer(testConfig(), newFakeSubscriber(), svc, zap.NewNop())

	err := c.HandleMessage("production/metrics/S1", []byte(`{not json`))
	assert.Error(t, err)

	err = c.HandleMessage("production/metrics/S1", []byte(`{"stage":"extruding","shift":"day","efficiency":140}`))
	assert.True(t, errors.Is(err, models.ErrValidation))

	// 无法确定工段
	err = c.HandleMessage("metrics", []byte(`{"stage":"extruding","shift":"day","efficiency":90}`))
	assert.True(t, errors.Is(err, models.ErrValidation))

	stored, _ := metrics.List(context.Background())
	assert.Empty(t, stored)
}

func TestMetricConsumer_StartAndStop(t *testing.T) {
	svc, metrics := newTestService(t)
	sub := newFakeSubscriber()
	cfg := testConfig()
	c := NewMetricConsumer(cfg, sub, svc, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return sub.handler(cfg.MQTT.Topic) != nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, byte(1), sub.qos)

	handler := sub.handler(cfg.MQTT.Topic)
	require.NoError(t, handler("production/metrics/S1",
		[]byte(`{"stage":"extruding","shift":"day","target_rate":100,"actual_rate":100,"efficiency":99}`)))
	stored, _ := metrics.List(context.Background())
	assert.Len(t, stored, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	c.Stop()
	assert.Equal(t, []string{cfg.MQTT.Topic}, sub.unsubscribed)
}

func TestMetricConsumer_SubscribeError(t *testing.T) {
	svc, _ := newTestService(t)
	sub := newFakeSubscriber()
	sub.err = errors.New("not connected")
	c := NewMetricConsumer(testConfig(), sub, svc, zap.NewNop())

	err := c.Start(context.Background())
	assert.Error(t, err)
}

func TestSectionFromTopic(t *testing.T) {
	assert.Equal(t, "S1", sectionFromTopic("production/metrics/S1"))
	assert.Equal(t, "", sectionFromTopic("production/metrics/+"))
	assert.Equal(t, "", sectionFromTopic("production/metrics/#"))
	assert.Equal(t, "", sectionFromTopic("metrics"))
}

func TestMetricConsumer_RecorderCalls(t *testing.T) {
	recorder := new(MockMetricRecorder)
	c := NewMetricConsumer(testConfig(), newFakeSubscriber(), recorder, zap.NewNop())

	// payload 中的 section_id 优先于主题
	recorder.On("RecordMetric", mock.Anything, mock.MatchedBy(func(in models.MetricInput) bool {
		return in.SectionID == "S2" && in.Stage == models.StageMixing && in.Efficiency == 88
	})).Return(&service.RecordMetricResult{
		Metric: &models.ProductionMetric{MetricID: "m-1", SectionID: "S2"},
	}, nil).Once()
	require.NoError(t, c.HandleMessage("production/metrics/S9",
		[]byte(`{"section_id":"S2","stage":"mixing","shift":"morning","target_rate":10,"actual_rate":9,"efficiency":88}`)))

	storeErr := errors.New("store unavailable")
	recorder.On("RecordMetric", mock.Anything, mock.MatchedBy(func(in models.MetricInput) bool {
		return in.SectionID == "S3"
	})).Return(nil, storeErr).Once()
	err := c.HandleMessage("production/metrics/S3",
		[]byte(`{"stage":"mixing","shift":"day","target_rate":10,"actual_rate":9,"efficiency":88}`))
	assert.True(t, errors.Is(err, storeErr))

	recorder.AssertExpectations(t)
}
