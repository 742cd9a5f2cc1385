package main

import (
	"context"
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"mpbf-bottleneck/common/database"
	"mpbf-bottleneck/common/logger"
	"mpbf-bottleneck/common/mqtt"
	"mpbf-bottleneck/common/redis"
	"mpbf-bottleneck/internal/config"
	"mpbf-bottleneck/internal/consumer"
	httpapi "mpbf-bottleneck/internal/http"
	"mpbf-bottleneck/internal/metrics"
	"mpbf-bottleneck/internal/models"
	"mpbf-bottleneck/internal/repository"
	"mpbf-bottleneck/internal/service"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "mpbf-bottleneck"

// stores 四个仓库（Postgres 或内存）
type stores struct {
	metrics  repository.MetricStore
	targets  repository.TargetRegistry
	alerts   repository.AlertRegistry
	settings repository.NotificationSettingsStore
	db       *sql.DB
}

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建上下文（支持优雅关闭）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 仓库
	st := openStores(ctx, cfg, log)
	if st.db != nil {
		defer st.db.Close()
	}

	// 5. 可选组件：Prometheus 指标、Redis 报警发布
	opts := service.Options{SuppressDuplicates: cfg.Alert.SuppressDuplicates}
	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
		opts.Observer = collector
	}
	if cfg.RedisEnabled {
		redisClient := redis.NewRedisClient(&cfg.Redis)
		defer redisClient.Close()
		if err := redis.Ping(ctx, redisClient); err != nil {
			log.Warn("Redis enabled but unreachable, alert publishing disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			opts.Publisher = consumer.NewAlertPublisher(cfg, redisClient, st.alerts, log)
			log.Info("Alert publishing enabled", zap.String("stream", cfg.Alert.Stream))
		}
	}

	// 6. 服务
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Invalid trend timezone", zap.Error(err))
	}
	trends := service.NewTrendAnalytics(st.metrics, st.alerts, time.Now, loc, cfg.Trend.DefaultWindowDays)
	svc := service.NewBottleneckService(st.metrics, st.targets, st.alerts, st.settings, trends, opts, log)

	if err := seedTargets(ctx, cfg.TargetsFile, svc, log); err != nil {
		log.Fatal("Failed to seed production targets", zap.Error(err))
	}

	// 7. HTTP
	router := httpapi.NewRouter(log)
	router.RegisterProductionRoutes(httpapi.NewProductionHandler(svc, log))
	router.RegisterHealthRoute()
	if collector != nil {
		router.RegisterMetricsRoute(collector.Handler())
	}
	server := service.NewServer(cfg.HTTP.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	// 8. MQTT 测量接入（可选）
	if cfg.MQTTEnabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
		if err != nil {
			log.Warn("MQTT enabled but connection failed, ingestion disabled", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			defer mqttClient.Disconnect()
			metricConsumer := consumer.NewMetricConsumer(cfg, mqttClient, svc, log)
			g.Go(func() error {
				defer metricConsumer.Stop()
				return metricConsumer.Start(gctx)
			})
		}
	}

	log.Info("Bottleneck service started",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Bool("postgres", st.db != nil),
		zap.Bool("suppress_duplicates", cfg.Alert.SuppressDuplicates),
	)

	if err := g.Wait(); err != nil {
		log.Error("Service error", zap.Error(err))
	}
	log.Info("Bottleneck service stopped")
}

// openStores DB_ENABLED 时使用 Postgres，连接失败回退到内存仓库
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) stores {
	if cfg.DatabaseEnabled {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err == nil {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				log.Fatal("Failed to ensure database schema", zap.Error(err))
			}
			log.Info("DB enabled for bottleneck service", zap.String("host", cfg.Database.Host))
			return stores{
				metrics:  repository.NewPostgresMetricStore(db, time.Now),
				targets:  repository.NewPostgresTargetRegistry(db, time.Now),
				alerts:   repository.NewPostgresAlertRegistry(db, time.Now),
				settings: repository.NewPostgresNotificationSettingsStore(db, time.Now),
				db:       db,
			}
		}
		log.Warn("DB enabled but connection failed, falling back to memory stores", zap.Error(err))
	}

	return stores{
		metrics:  repository.NewMemoryMetricStore(time.Now),
		targets:  repository.NewMemoryTargetRegistry(time.Now),
		alerts:   repository.NewMemoryAlertRegistry(time.Now),
		settings: repository.NewMemoryNotificationSettingsStore(time.Now),
	}
}

// seedTargets 载入目标种子文件；已存在相同 (section, stage, shift, machine) 的启用目标时跳过
func seedTargets(ctx context.Context, path string, svc *service.BottleneckService, log *zap.Logger) error {
	inputs, err := config.LoadTargets(path)
	if err != nil || len(inputs) == 0 {
		return err
	}

	existing, err := svc.ListActiveTargets(ctx, "")
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[targetKey(t.SectionID, t.Stage, t.Shift, t.MachineID)] = true
	}

	created := 0
	for _, in := range inputs {
		key := targetKey(in.SectionID, in.Stage, in.Shift, in.MachineID)
		if seen[key] {
			continue
		}
		if _, err := svc.CreateTarget(ctx, in); err != nil {
			return fmt.Errorf("seed target %s: %w", key, err)
		}
		seen[key] = true
		created++
	}
	log.Info("Production targets seeded", zap.String("file", path), zap.Int("created", created), zap.Int("total", len(inputs)))
	return nil
}

func targetKey(section string, stage models.Stage, shift models.Shift, machineID *string) string {
	machine := "*"
	if machineID != nil && *machineID != "" {
		machine = *machineID
	}
	return fmt.Sprintf("%s|%s|%s|%s", section, stage, shift, machine)
}
