package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mpbf-bottleneck/common/config"
)

// Config 瓶颈检测服务配置
type Config struct {
	HTTP struct {
		Addr string // 监听地址，默认 ":8080"
	}

	Database        config.DatabaseConfig
	DatabaseEnabled bool // false 时使用内存仓库

	Redis        config.RedisConfig
	RedisEnabled bool

	MQTT        config.MQTTConfig
	MQTTEnabled bool

	// 报警相关配置
	Alert struct {
		SuppressDuplicates bool // 同一条件已有未解决报警时不再生成新报警

		// 报警事件发布（Redis Streams）
		Stream       string // 如 "production:alerts"
		StreamMaxLen int64  // stream 近似最大长度，0 不裁剪

		// 工段未解决报警快照缓存
		Cache struct {
			KeyPrefix string // 如 "production:section:"
			KeySuffix string // 如 ":active_alerts"
			TTL       int    // 秒，默认 300
		}
	}

	Trend struct {
		DefaultWindowDays int
		Timezone          string // IANA 时区，按天分桶使用
	}

	TargetsFile    string // 启动时载入的目标 YAML，可为空
	MetricsEnabled bool

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DatabaseEnabled = getEnvBool("DB_ENABLED", false)
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "mpbf")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.ConnMaxLifetime = 30 * time.Minute
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "mpbf-bottleneck")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "production/metrics/#")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Alert.SuppressDuplicates = getEnvBool("ALERT_SUPPRESS_DUPLICATES", false)
	cfg.Alert.Stream = getEnv("ALERT_STREAM", "production:alerts")
	cfg.Alert.StreamMaxLen = int64(getEnvInt("ALERT_STREAM_MAXLEN", 10000))
	cfg.Alert.Cache.KeyPrefix = getEnv("ALERT_CACHE_PREFIX", "production:section:")
	cfg.Alert.Cache.KeySuffix = ":active_alerts"
	cfg.Alert.Cache.TTL = getEnvInt("ALERT_CACHE_TTL", 300) // 5分钟

	cfg.Trend.DefaultWindowDays = getEnvInt("TREND_DEFAULT_WINDOW_DAYS", 7)
	cfg.Trend.Timezone = getEnv("TREND_TIMEZONE", "UTC")

	cfg.TargetsFile = getEnv("TARGETS_FILE", "")
	cfg.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	if c.Trend.DefaultWindowDays <= 0 || c.Trend.DefaultWindowDays > 366 {
		return fmt.Errorf("TREND_DEFAULT_WINDOW_DAYS must be within [1, 366], got %d", c.Trend.DefaultWindowDays)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TREND_TIMEZONE %q: %w", c.Trend.Timezone, err)
	}
	if c.Alert.Cache.TTL <= 0 {
		return fmt.Errorf("ALERT_CACHE_TTL must be positive, got %d", c.Alert.Cache.TTL)
	}
	if c.RedisEnabled && c.Alert.Stream == "" {
		return fmt.Errorf("ALERT_STREAM is required when REDIS_ENABLED=true")
	}
	if c.MQTTEnabled && c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT_ENABLED=true")
	}
	return nil
}

// Location 趋势统计使用的时区
func (c *Config) Location() (*time.Location, error) {
	if c.Trend.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Trend.Timezone)
}

// CacheTTL 报警快照缓存 TTL
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Alert.Cache.TTL) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
