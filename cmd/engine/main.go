// 文件: cmd/engine/main.go
// 告警触发引擎入口
//
// 连接显式建、显式关: 进程启动时获取，收到终止信号后按
// 调度器 -> 轮询器 -> 清扫 -> 流水 -> 连接 的顺序释放。

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ding.com/pkg/config"
	"ding.com/pkg/index"
	"ding.com/pkg/logger"
	"ding.com/pkg/notify"
	"ding.com/pkg/poll"
	"ding.com/pkg/pricesource"
	"ding.com/pkg/schedule"
	"ding.com/pkg/store"
	"ding.com/pkg/sweeper"
	"ding.com/pkg/trigger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// 缺连接配置: 拒绝启动
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("engine exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	// ========== 存储连接 ==========

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	defer redisClient.Close()

	db, err := gorm.Open(mysql.Open(cfg.MySQLDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	repo := store.NewMySQLAlertRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		return err
	}
	idx := index.NewRedisIndex(redisClient)

	// ========== 通知边界 ==========

	var notifier notify.Notifier
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		notifier = notify.NewNATSNotifier(conn)
	} else {
		// 无 NATS 只记日志，开发环境用
		log.Warn("NATS_URL not set, notifications are log-only")
		notifier = logNotifier{log: log}
	}

	var journal notify.Journal
	if cfg.KafkaBrokers != "" {
		kj, err := notify.NewKafkaJournal(strings.Split(cfg.KafkaBrokers, ","), log)
		if err != nil {
			return err
		}
		defer kj.Close()
		journal = kj
	}

	ids, err := notify.NewIDGenerator(cfg.NodeID)
	if err != nil {
		return err
	}

	// ========== 行情源与引擎组件 ==========

	source := pricesource.NewCachedSource(
		pricesource.NewBinanceSource(cfg.BinanceBaseURL), cfg.TickerCacheTTL)

	processor := trigger.NewProcessor(idx, repo, notifier, journal, ids, log)
	poller := poll.NewPoller(idx, source, processor, log, cfg.PollInterval, cfg.MaxInFlight)
	scheduler := schedule.NewScheduler(idx, source, processor, log, cfg.SettleBuffer)
	sweep := sweeper.NewSweeper(idx, repo, log, cfg.SweepInterval)

	poller.Start()
	scheduler.Start()
	sweep.Start()

	// ========== 运维面 ==========

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", zap.Error(err))
		}
	}()
	log.Info("engine started",
		zap.String("http", cfg.HTTPAddr),
		zap.Duration("poll_interval", cfg.PollInterval),
	)

	// ========== 优雅退出 ==========

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))

	scheduler.Stop()
	poller.Stop()
	sweep.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	log.Info("engine stopped")
	return nil
}

// logNotifier 无 NATS 时的退化投递
type logNotifier struct {
	log *zap.Logger
}

func (n logNotifier) Notify(ctx context.Context, event notify.Event) error {
	n.log.Info("alert triggered",
		zap.String("event_id", event.EventID),
		zap.String("alert_id", event.AlertID),
		zap.String("user_id", event.UserID),
		zap.String("market", event.Market),
		zap.String("direction", string(event.Direction)),
		zap.String("threshold", event.Threshold.String()),
		zap.Float64("price", event.Price),
	)
	return nil
}
