// 文件: pkg/poll/poller_test.go

package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ding.com/pkg/index"
	"ding.com/pkg/market"
	"ding.com/pkg/pricesource"
)

// fakeSource 按 symbol 给价，指定 symbol 报错
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   map[string]bool
	calls  atomic.Int64
}

func (s *fakeSource) Ticker(ctx context.Context, symbol string) (float64, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[symbol] {
		return 0, errors.New("exchange unavailable")
	}
	return s.prices[symbol], nil
}

func (s *fakeSource) RecentCandles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]pricesource.Candle, error) {
	return nil, nil
}

// recordingEvaluator 记录评估调用
type recordingEvaluator struct {
	mu   sync.Mutex
	seen map[string]float64
}

func (e *recordingEvaluator) EvaluatePrice(ctx context.Context, mkt string, price float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen == nil {
		e.seen = make(map[string]float64)
	}
	e.seen[mkt] = price
	return nil
}

func subscribePrice(t *testing.T, idx *index.MemoryIndex, id, mkt string) {
	t.Helper()
	require.NoError(t, idx.Subscribe(context.Background(), index.Detail{
		AlertID:   id,
		UserID:    "u1",
		Market:    mkt,
		Kind:      market.KindPrice,
		Direction: market.DirectionAbove,
		Threshold: decimal.RequireFromString("1"),
	}))
}

func TestPoller_TickEvaluatesDiscoveredMarkets(t *testing.T) {
	idx := index.NewMemoryIndex()
	subscribePrice(t, idx, "a1", "BINANCE:BTCUSDT")
	subscribePrice(t, idx, "a2", "BINANCE:ETHUSDT")

	src := &fakeSource{prices: map[string]float64{
		"BTC/USDT": 50000,
		"ETH/USDT": 3000,
	}}
	eval := &recordingEvaluator{}
	p := NewPoller(idx, src, eval, zap.NewNop(), 0, 0)

	p.tick(context.Background())

	assert.Equal(t, map[string]float64{
		"BINANCE:BTCUSDT": 50000,
		"BINANCE:ETHUSDT": 3000,
	}, eval.seen)
}

// 单个市场取价失败不影响其他市场
func TestPoller_TickIsolatesFetchFailures(t *testing.T) {
	idx := index.NewMemoryIndex()
	subscribePrice(t, idx, "a1", "BINANCE:BTCUSDT")
	subscribePrice(t, idx, "a2", "BINANCE:ETHUSDT")

	src := &fakeSource{
		prices: map[string]float64{"ETH/USDT": 3000},
		fail:   map[string]bool{"BTC/USDT": true},
	}
	eval := &recordingEvaluator{}
	p := NewPoller(idx, src, eval, zap.NewNop(), 0, 0)

	p.tick(context.Background())

	assert.Equal(t, map[string]float64{"BINANCE:ETHUSDT": 3000}, eval.seen)
}

// 拆不出安全交易对的市场被跳过，不取价
func TestPoller_TickSkipsUnparseableMarket(t *testing.T) {
	idx := index.NewMemoryIndex()
	subscribePrice(t, idx, "a1", "BINANCE:USDT") // 只剩计价币，无法拆分

	src := &fakeSource{prices: map[string]float64{}}
	eval := &recordingEvaluator{}
	p := NewPoller(idx, src, eval, zap.NewNop(), 0, 0)

	p.tick(context.Background())

	assert.Empty(t, eval.seen)
	assert.Equal(t, int64(0), src.calls.Load())
}

// 空发现结果短路: 不碰行情源
func TestPoller_TickShortCircuitsOnEmptyDiscovery(t *testing.T) {
	idx := index.NewMemoryIndex()
	src := &fakeSource{}
	eval := &recordingEvaluator{}
	p := NewPoller(idx, src, eval, zap.NewNop(), 0, 0)

	p.tick(context.Background())

	assert.Equal(t, int64(0), src.calls.Load())
	assert.Empty(t, eval.seen)
}

func TestPoller_StartStop(t *testing.T) {
	idx := index.NewMemoryIndex()
	subscribePrice(t, idx, "a1", "BINANCE:BTCUSDT")
	src := &fakeSource{prices: map[string]float64{"BTC/USDT": 50000}}
	eval := &recordingEvaluator{}

	p := NewPoller(idx, src, eval, zap.NewNop(), 10*time.Millisecond, 0)
	p.Start()
	p.Start() // 幂等

	assert.Eventually(t, func() bool {
		eval.mu.Lock()
		defer eval.mu.Unlock()
		return len(eval.seen) > 0
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop() // 幂等

	// 停止后不再产生新的取价
	calls := src.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, src.calls.Load())
}
