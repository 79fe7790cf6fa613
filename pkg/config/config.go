// 文件: pkg/config/config.go
// 环境变量配置
//
// 连接配置 (REDIS_ADDR / MYSQL_DSN) 没有默认值: 缺了就拒绝启动，
// 带着半套存储跑起来比不启动危害大得多。

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 引擎配置
type Config struct {
	Environment string

	// 必填连接
	RedisAddr string
	MySQLDSN  string

	// 可选连接 (为空则对应能力退化: 无 NATS 不启动、无 Kafka 不记流水)
	NATSURL      string
	KafkaBrokers string // 逗号分隔

	// 行情源
	BinanceBaseURL string // 为空用官方地址
	TickerCacheTTL time.Duration

	// 调度
	PollInterval  time.Duration
	MaxInFlight   int
	SettleBuffer  time.Duration
	SweepInterval time.Duration

	// 运维面
	HTTPAddr string
	NodeID   int64 // 雪花算法节点 (0-1023)
}

// Load 读取 .env (如存在) 和环境变量
// 缺必填项返回错误，由 main 以非零码退出
func Load() (*Config, error) {
	// .env 不存在不算错
	_ = godotenv.Load()

	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		MySQLDSN:       os.Getenv("MYSQL_DSN"),
		NATSURL:        os.Getenv("NATS_URL"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		BinanceBaseURL: os.Getenv("BINANCE_BASE_URL"),
		TickerCacheTTL: getDuration("TICKER_CACHE_TTL", 2*time.Second),
		PollInterval:   getDuration("POLL_INTERVAL", 5*time.Second),
		MaxInFlight:    getInt("MAX_IN_FLIGHT", 8),
		SettleBuffer:   getDuration("SETTLE_BUFFER", time.Second),
		SweepInterval:  getDuration("SWEEP_INTERVAL", 10*time.Minute),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		NodeID:         int64(getInt("NODE_ID", 0)),
	}

	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("config: REDIS_ADDR is required")
	}
	if cfg.MySQLDSN == "" {
		return nil, fmt.Errorf("config: MYSQL_DSN is required")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
