package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mpbf-bottleneck/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.False(t, cfg.DatabaseEnabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "mpbf", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.False(t, cfg.MQTTEnabled)
	assert.Equal(t, "production/metrics/#", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)

	assert.False(t, cfg.Alert.SuppressDuplicates)
	assert.Equal(t, "production:alerts", cfg.Alert.Stream)
	assert.Equal(t, int64(10000), cfg.Alert.StreamMaxLen)
	assert.Equal(t, "production:section:", cfg.Alert.Cache.KeyPrefix)
	assert.Equal(t, ":active_alerts", cfg.Alert.Cache.KeySuffix)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())

	assert.Equal(t, 7, cfg.Trend.DefaultWindowDays)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	assert.Equal(t, "", cfg.TargetsFile)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("REDIS_ENABLED", "1")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("MQTT_ENABLED", "yes")
	t.Setenv("MQTT_TOPIC", "plant/+/metrics")
	t.Setenv("MQTT_QOS", "0")
	t.Setenv("ALERT_SUPPRESS_DUPLICATES", "TRUE")
	t.Setenv("ALERT_STREAM", "alerts")
	t.Setenv("ALERT_CACHE_TTL", "60")
	t.Setenv("TREND_DEFAULT_WINDOW_DAYS", "30")
	t.Setenv("TARGETS_FILE", "/etc/mpbf/targets.yaml")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.DatabaseEnabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.True(t, cfg.MQTTEnabled)
	assert.Equal(t, "plant/+/metrics", cfg.MQTT.Topic)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
	assert.True(t, cfg.Alert.SuppressDuplicates)
	assert.Equal(t, "alerts", cfg.Alert.Stream)
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.Equal(t, 30, cfg.Trend.DefaultWindowDays)
	assert.Equal(t, "/etc/mpbf/targets.yaml", cfg.TargetsFile)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"window too large", "TREND_DEFAULT_WINDOW_DAYS", "400"},
		{"window zero", "TREND_DEFAULT_WINDOW_DAYS", "0"},
		{"unknown timezone", "TREND_TIMEZONE", "Mars/Olympus_Mons"},
		{"negative cache ttl", "ALERT_CACHE_TTL", "-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, "default-value", getEnv("TEST_KEY", "default-value"))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))
	assert.True(t, getEnvBool("TEST_BOOL", true))

	t.Setenv("TEST_KEY", "set")
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_BOOL", "maybe")
	assert.Equal(t, "set", getEnv("TEST_KEY", "default-value"))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))
	assert.True(t, getEnvBool("TEST_BOOL", true))

	t.Setenv("TEST_BOOL", "off")
	assert.False(t, getEnvBool("TEST_BOOL", true))
}

func TestParseTargets(t *testing.T) {
	data := []byte(`
targets:
  - section_id: S1
    stage: extruding
    shift: day
    target_rate: 100
    min_efficiency: 70
    max_downtime: 30
  - section_id: S1
    stage: printing
    shift: night
    machine_id: PRN-02
    target_rate: 60.5
    min_efficiency: 75
    max_downtime: 20
`)
	targets, err := ParseTargets(data)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, models.TargetInput{
		SectionID:     "S1",
		Stage:         models.StageExtruding,
		Shift:         models.ShiftDay,
		TargetRate:    100,
		MinEfficiency: 70,
		MaxDowntime:   30,
	}, targets[0])
	require.NotNil(t, targets[1].MachineID)
	assert.Equal(t, "PRN-02", *targets[1].MachineID)
	assert.Equal(t, 60.5, targets[1].TargetRate)
}

func TestParseTargets_Errors(t *testing.T) {
	_, err := ParseTargets([]byte("targets:\n  - section_id: S1\n    colour: red\n"))
	assert.Error(t, err)

	targets, err := ParseTargets(nil)
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestLoadTargets_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - section_id: S2\n    stage: mixing\n    shift: morning\n    target_rate: 10\n"), 0o600))

	targets, err := LoadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, models.StageMixing, targets[0].Stage)

	none, err := LoadTargets("")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = LoadTargets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
