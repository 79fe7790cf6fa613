// 文件: pkg/sweeper/sweeper.go
// 索引对账清扫
//
// 触发器的自愈只覆盖 "有行情经过" 的市场; 用户撤销告警后如果编辑侧
// 没清干净索引，而该市场又一直不评估，失真条目会一直躺着。
// 清扫定期遍历详情记录和记录源对账，摘掉一切非 PENDING 的残留。

package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ding.com/pkg/index"
	"ding.com/pkg/store"
)

// DefaultInterval 默认清扫周期
const DefaultInterval = 10 * time.Minute

var sweptEntriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "alert_swept_entries_total",
		Help: "Stale index entries removed by the reconciliation sweep",
	},
)

func init() {
	prometheus.MustRegister(sweptEntriesTotal)
}

// Sweeper 对账清扫器
type Sweeper struct {
	index  index.Index
	repo   store.AlertRepository
	logger *zap.Logger

	interval time.Duration
	cron     *gocron.Scheduler
}

// NewSweeper interval 传 0 用默认周期
func NewSweeper(idx index.Index, repo store.AlertRepository, logger *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		index:    idx,
		repo:     repo,
		logger:   logger,
		interval: interval,
	}
}

// Start 挂上定时任务
func (s *Sweeper) Start() {
	if s.cron != nil {
		return
	}
	s.cron = gocron.NewScheduler(time.UTC)
	s.cron.Every(s.interval).Do(func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("reconciliation sweep failed", zap.Error(err))
		}
	})
	s.cron.StartAsync()
	s.logger.Info("reconciliation sweeper started", zap.Duration("interval", s.interval))
}

// Stop 摘掉定时任务
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.logger.Info("reconciliation sweeper stopped")
}

// Sweep 跑一轮对账，返回清掉的条目数
// 单条失败记日志继续，不中断整轮
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cleaned := 0
	err := s.index.ForEachDetail(ctx, func(d index.Detail) error {
		alert, err := s.repo.GetByID(ctx, d.AlertID)
		if err != nil && !errors.Is(err, store.ErrAlertNotFound) {
			s.logger.Warn("sweep record lookup failed",
				zap.String("alert_id", d.AlertID), zap.Error(err))
			return nil
		}
		if alert != nil && alert.Pending() {
			return nil
		}

		// 非 PENDING 或记录已不存在: 摘索引 + 删详情
		if err := s.index.Remove(ctx, d.Set(), d.AlertID); err != nil {
			s.logger.Warn("sweep index remove failed",
				zap.String("alert_id", d.AlertID), zap.Error(err))
			return nil
		}
		if err := s.index.DeleteDetail(ctx, d.AlertID); err != nil {
			s.logger.Warn("sweep detail delete failed",
				zap.String("alert_id", d.AlertID), zap.Error(err))
			return nil
		}
		cleaned++
		sweptEntriesTotal.Inc()
		return nil
	})
	if err != nil {
		return cleaned, err
	}

	if cleaned > 0 {
		s.logger.Info("reconciliation sweep completed", zap.Int("cleaned", cleaned))
	}
	return cleaned, nil
}
