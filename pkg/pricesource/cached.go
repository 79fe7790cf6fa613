// 文件: pkg/pricesource/cached.go
// 行情源短 TTL 缓存装饰器
//
// 【设计模式】装饰器: 包装底层 Source，调用方无感知
// 作用是吸收同一个轮询窗口内各组件对同一市场的重复取价，
// 不是行情历史库。K 线请求按周期边界发起，不缓存。

package pricesource

import (
	"context"
	"sync"
	"time"

	"ding.com/pkg/market"
)

// 确保实现了接口
var _ Source = (*CachedSource)(nil)

// DefaultTickerTTL 默认取价缓存时长
const DefaultTickerTTL = 2 * time.Second

// CachedSource 带取价缓存的行情源
type CachedSource struct {
	source Source
	ttl    time.Duration

	mu      sync.Mutex
	tickers map[string]cachedTicker

	now func() time.Time // 可注入时钟，测试用
}

type cachedTicker struct {
	price     float64
	expiresAt time.Time
}

// NewCachedSource 包装底层行情源，ttl <= 0 用默认值
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTickerTTL
	}
	return &CachedSource{
		source:  source,
		ttl:     ttl,
		tickers: make(map[string]cachedTicker),
		now:     time.Now,
	}
}

// Ticker 命中未过期缓存直接返回，否则透传并回填
// 透传失败不写缓存，错误原样上抛
func (c *CachedSource) Ticker(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	if entry, ok := c.tickers[symbol]; ok && c.now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.price, nil
	}
	c.mu.Unlock()

	price, err := c.source.Ticker(ctx, symbol)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.tickers[symbol] = cachedTicker{price: price, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return price, nil
}

// RecentCandles 直接透传
func (c *CachedSource) RecentCandles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]Candle, error) {
	return c.source.RecentCandles(ctx, symbol, interval, limit)
}
