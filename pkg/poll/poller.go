// 文件: pkg/poll/poller.go
// 现价轮询器
//
// 固定节拍驱动现价告警评估: 发现有挂单的市场 -> 并发取价 (限宽) -> 喂给触发器。
// 单个市场的失败只影响它自己这一拍，轮询循环本身永不因此停摆。

package poll

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ding.com/pkg/index"
	"ding.com/pkg/market"
	"ding.com/pkg/pricesource"
)

const (
	// DefaultInterval 默认轮询节拍
	DefaultInterval = 5 * time.Second

	// DefaultMaxInFlight 默认并发取价上限
	DefaultMaxInFlight = 8

	// fetchTimeout 单次取价超时，超时按本拍跳过处理
	fetchTimeout = 4 * time.Second
)

var (
	pollCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_poll_cycles_total",
			Help: "Completed price poll ticks",
		},
	)
	fetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_fetch_errors_total",
			Help: "Per-market price fetches that failed or were skipped",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(pollCyclesTotal, fetchErrorsTotal)
}

// Evaluator 现价评估入口 (触发器实现)
type Evaluator interface {
	EvaluatePrice(ctx context.Context, mkt string, price float64) error
}

// Poller 现价轮询器
type Poller struct {
	index     index.Index
	source    pricesource.Source
	evaluator Evaluator
	logger    *zap.Logger

	interval    time.Duration
	maxInFlight int

	// 生命周期
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewPoller interval/maxInFlight 传 0 用默认值
func NewPoller(idx index.Index, source pricesource.Source, evaluator Evaluator, logger *zap.Logger, interval time.Duration, maxInFlight int) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Poller{
		index:       idx,
		source:      source,
		evaluator:   evaluator,
		logger:      logger,
		interval:    interval,
		maxInFlight: maxInFlight,
	}
}

// Start 启动轮询循环
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})

	p.wg.Add(1)
	go p.run()

	p.logger.Info("price poller started", zap.Duration("interval", p.interval))
}

// Stop 停止循环并等正在跑的一拍收尾
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("price poller stopped")
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.tick(context.Background())
		}
	}
}

// tick 一拍完整流程，导出给测试直接驱动
func (p *Poller) tick(ctx context.Context) {
	defer pollCyclesTotal.Inc()

	markets, err := p.index.DiscoverMarkets(ctx, market.KindPrice, "")
	if err != nil {
		p.logger.Error("market discovery failed", zap.Error(err))
		return
	}
	if len(markets) == 0 {
		// 空发现结果短路，不碰行情源
		return
	}

	// 限宽并发取价，各市场相互独立
	sem := make(chan struct{}, p.maxInFlight)
	var wg sync.WaitGroup
	for _, mkt := range markets {
		symbol, err := market.ToSourceSymbol(mkt)
		if err != nil {
			// 拆不出安全交易对: 跳过并告警，绝不瞎猜
			fetchErrorsTotal.WithLabelValues("unparseable").Inc()
			p.logger.Warn("skipping market with unparseable identifier",
				zap.String("market", mkt), zap.Error(err))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(mkt, symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			p.pollOne(ctx, mkt, symbol)
		}(mkt, symbol)
	}
	wg.Wait()
}

// pollOne 单市场取价 + 评估
func (p *Poller) pollOne(ctx context.Context, mkt, symbol string) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	price, err := p.source.Ticker(fetchCtx, symbol)
	if err != nil {
		// 本拍跳过，下一拍自然重试
		fetchErrorsTotal.WithLabelValues("fetch").Inc()
		p.logger.Warn("price fetch failed",
			zap.String("market", mkt), zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if err := p.evaluator.EvaluatePrice(ctx, mkt, price); err != nil {
		p.logger.Error("price evaluation failed",
			zap.String("market", mkt), zap.Error(err))
	}
}
