package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqttcommon "mpbf-bottleneck/common/mqtt"
	"mpbf-bottleneck/internal/config"
	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/service"

	"go.uber.org/zap"
)

const handleTimeout = 10 * time.Second

// Subscriber MQTT 订阅接口（*mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MetricRecorder 测量写入入口（*service.BottleneckService 实现）
type MetricRecorder interface {
	RecordMetric(ctx context.Context, input models.MetricInput) (*service.RecordMetricResult, error)
}

// MetricConsumer 从 MQTT 接收产线测量并写入服务
// 主题格式: production/metrics/{section_id}，payload 为 MetricInput JSON
// payload 未带 section_id 时使用主题中的工段
type MetricConsumer struct {
	config     *config.Config
	subscriber Subscriber
	recorder   MetricRecorder
	logger     *zap.Logger
}

// NewMetricConsumer 创建消费者
func NewMetricConsumer(
	cfg *config.Config,
	subscriber Subscriber,
	recorder MetricRecorder,
	logger *zap.Logger,
) *MetricConsumer {
	return &MetricConsumer{
		config:     cfg,
		subscriber: subscriber,
		recorder:   recorder,
		logger:     logger,
	}
}

// Start 订阅主题并阻塞到 ctx 取消
func (c *MetricConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(c.config.MQTT.Topic, c.config.MQTT.QoS, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to metric topic: %w", err)
	}

	c.logger.Info("Metric consumer started",
		zap.String("topic", c.config.MQTT.Topic),
		zap.Uint8("qos", c.config.MQTT.QoS),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MetricConsumer) Stop() {
	if err := c.subscriber.Unsubscribe(c.config.MQTT.Topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("Metric consumer stopped")
}

// HandleMessage 处理一条测量消息；非法消息记录日志后丢弃
func (c *MetricConsumer) HandleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var input models.MetricInput
	if err := json.Unmarshal(payload, &input); err != nil {
		c.logger.Warn("Dropped malformed metric payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal metric: %w", err)
	}
	if input.SectionID == "" {
		input.SectionID = sectionFromTopic(topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	result, err := c.recorder.RecordMetric(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to record metric from %s: %w", topic, err)
	}

	c.logger.Debug("Recorded metric from MQTT",
		zap.String("metric_id", result.Metric.MetricID),
		zap.String("section_id", result.Metric.SectionID),
		zap.Int("alerts", len(result.Alerts)),
	)
	return nil
}

// sectionFromTopic 取 production/metrics/{section_id} 的最后一段；通配或格式不符时返回空
func sectionFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	last := parts[len(parts)-1]
	if last == "+" || last == "#" {
		return ""
	}
	return last
}
