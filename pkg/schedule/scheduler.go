// 文件: pkg/schedule/scheduler.go
// K线调度器
//
// 每个支持的周期一条自再装填的一次性定时器循环:
// 到点 -> 查该周期的已收盘 K 线 -> 喂给触发器 -> 以当前时间重算下一个边界。
// 不用固定周期 Ticker: 每次装填都从 now 重算，偏差不会累积，
// 进程重启或单次检查拖慢也不会让后续触发点漂离墙钟边界。
//
// 单个周期的状态机: idle -> armed -> firing -> armed (下一边界)
// 任意状态可进 stopped (清掉挂着的定时器，未触发的那次不再执行)。

package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ding.com/pkg/index"
	"ding.com/pkg/market"
	"ding.com/pkg/pricesource"
)

const (
	// DefaultSettleBuffer 收盘后的定影缓冲，等行情源把 K 线定稿
	DefaultSettleBuffer = time.Second

	// minArmDelay 最小装填延迟
	minArmDelay = time.Second

	// fetchTimeout 单市场取 K 线超时
	fetchTimeout = 8 * time.Second
)

var candleChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "candle_checks_total",
		Help: "Completed per-interval candle check cycles",
	},
	[]string{"interval"},
)

func init() {
	prometheus.MustRegister(candleChecksTotal)
}

// State 单周期循环状态
type State int32

const (
	StateIdle State = iota
	StateArmed
	StateFiring
	StateStopped
)

// CandleEvaluator K线评估入口 (触发器实现)
type CandleEvaluator interface {
	EvaluateCandle(ctx context.Context, mkt string, iv market.Interval, closePrice float64) error
}

// NextFireDelay 距下一次触发的装填延迟 (纯函数，便于性质测试)
//
// 周期 I 的下一个收盘时刻是 floor(now/I)*I + I (Truncate 以绝对时间桶对齐，
// 1d/1w 即 UTC 零点/周一零点)，再加定影缓冲；下限 minArmDelay。
func NextFireDelay(now time.Time, interval, settle time.Duration) time.Duration {
	nextClose := now.Truncate(interval).Add(interval)
	delay := nextClose.Sub(now) + settle
	if delay < minArmDelay {
		delay = minArmDelay
	}
	return delay
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler K线调度器，管理全部 7 条周期循环
type Scheduler struct {
	index     index.Index
	source    pricesource.Source
	evaluator CandleEvaluator
	logger    *zap.Logger

	settleBuffer time.Duration
	now          func() time.Time

	mu      sync.Mutex
	running bool
	loops   []*intervalLoop
	wg      sync.WaitGroup
}

// intervalLoop 一个周期的定时循环
type intervalLoop struct {
	interval market.Interval
	state    atomic.Int32
	stopCh   chan struct{}
}

// State 当前状态
func (l *intervalLoop) State() State {
	return State(l.state.Load())
}

// NewScheduler settle 传 0 用默认缓冲
func NewScheduler(idx index.Index, source pricesource.Source, evaluator CandleEvaluator, logger *zap.Logger, settle time.Duration) *Scheduler {
	if settle <= 0 {
		settle = DefaultSettleBuffer
	}
	return &Scheduler{
		index:        idx,
		source:       source,
		evaluator:    evaluator,
		logger:       logger,
		settleBuffer: settle,
		now:          time.Now,
	}
}

// Start 为每个支持的周期启动一条循环
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.loops = s.loops[:0]

	for _, iv := range market.SupportedIntervals() {
		loop := &intervalLoop{interval: iv, stopCh: make(chan struct{})}
		s.loops = append(s.loops, loop)

		s.wg.Add(1)
		go s.run(loop)
	}
	s.logger.Info("candle scheduler started", zap.Int("intervals", len(s.loops)))
}

// Stop 清掉所有挂着的定时器; 正在跑的检查允许收尾
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, loop := range s.loops {
		close(loop.stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("candle scheduler stopped")
}

// States 各周期当前状态快照 (监控/测试用)
func (s *Scheduler) States() map[market.Interval]State {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[market.Interval]State, len(s.loops))
	for _, loop := range s.loops {
		out[loop.interval] = loop.State()
	}
	return out
}

// run 单周期循环: armed -> firing -> armed -> ...
func (s *Scheduler) run(loop *intervalLoop) {
	defer s.wg.Done()

	for {
		delay := NextFireDelay(s.now(), loop.interval.Duration(), s.settleBuffer)
		loop.state.Store(int32(StateArmed))

		timer := time.NewTimer(delay)
		select {
		case <-loop.stopCh:
			timer.Stop()
			loop.state.Store(int32(StateStopped))
			return
		case <-timer.C:
			loop.state.Store(int32(StateFiring))
			s.checkInterval(context.Background(), loop.interval)
			// 回到循环头以当前时间重新装填
		}
	}
}

// checkInterval 一个周期的完整检查
// 单市场失败记日志跳过，既不影响同轮其他市场，也不影响下一个边界
func (s *Scheduler) checkInterval(ctx context.Context, iv market.Interval) {
	defer candleChecksTotal.WithLabelValues(string(iv)).Inc()

	markets, err := s.index.DiscoverMarkets(ctx, market.KindCandle, iv)
	if err != nil {
		s.logger.Error("candle market discovery failed",
			zap.String("interval", string(iv)), zap.Error(err))
		return
	}

	for _, mkt := range markets {
		symbol, err := market.ToSourceSymbol(mkt)
		if err != nil {
			s.logger.Warn("skipping market with unparseable identifier",
				zap.String("market", mkt), zap.Error(err))
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		// 取最近两根: 最后一根还在形成中，要的是倒数第二根的收盘价
		candles, err := s.source.RecentCandles(fetchCtx, symbol, iv, 2)
		cancel()
		if err != nil {
			s.logger.Warn("candle fetch failed",
				zap.String("market", mkt), zap.String("interval", string(iv)), zap.Error(err))
			continue
		}

		closed, err := pricesource.LastClosed(candles)
		if err != nil {
			s.logger.Warn("no closed candle available",
				zap.String("market", mkt), zap.String("interval", string(iv)), zap.Error(err))
			continue
		}

		if err := s.evaluator.EvaluateCandle(ctx, mkt, iv, closed.Close); err != nil {
			s.logger.Error("candle evaluation failed",
				zap.String("market", mkt), zap.String("interval", string(iv)), zap.Error(err))
		}
	}
}
