// 文件: pkg/pricesource/pricesource_test.go

package pricesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ding.com/pkg/market"
)

// =============================================================================
// Binance 客户端 (httptest 假服务)
// =============================================================================

func TestBinanceSource_Ticker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol")) // 斜杠被剥掉
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.45"}`))
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL)
	price, err := src.Ticker(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 50123.45, price)
}

func TestBinanceSource_Ticker_BadPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"not-a-number"}`))
	}))
	defer srv.Close()

	_, err := NewBinanceSource(srv.URL).Ticker(context.Background(), "BTC/USDT")
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestBinanceSource_Ticker_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewBinanceSource(srv.URL).Ticker(context.Background(), "BTC/USDT")
	assert.Error(t, err)
}

func TestBinanceSource_RecentCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		// 已收盘一根 + 形成中一根
		w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.5","1234.5",1700003599999,"0",0,"0","0","0"],
			[1700003600000,"105.5","106.0","104.0","104.2","99.9",1700007199999,"0",0,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	src := NewBinanceSource(srv.URL)
	candles, err := src.RecentCandles(context.Background(), "BTC/USDT", market.Interval1h, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	closed, err := LastClosed(candles)
	require.NoError(t, err)
	assert.Equal(t, 105.5, closed.Close)
	assert.Equal(t, int64(1700000000000), closed.OpenTime)
}

func TestLastClosed_NotEnough(t *testing.T) {
	_, err := LastClosed([]Candle{{Close: 1}})
	assert.ErrorIs(t, err, ErrNotEnoughCandles)
	_, err = LastClosed(nil)
	assert.ErrorIs(t, err, ErrNotEnoughCandles)
}

// =============================================================================
// 缓存装饰器
// =============================================================================

// countingSource 记录透传次数的假行情源
type countingSource struct {
	tickerCalls atomic.Int64
	price       float64
}

func (s *countingSource) Ticker(ctx context.Context, symbol string) (float64, error) {
	s.tickerCalls.Add(1)
	return s.price, nil
}

func (s *countingSource) RecentCandles(ctx context.Context, symbol string, interval market.Interval, limit int) ([]Candle, error) {
	return nil, nil
}

func TestCachedSource_AbsorbsDuplicateFetches(t *testing.T) {
	under := &countingSource{price: 42}
	cached := NewCachedSource(under, 2*time.Second)

	now := time.Unix(1700000000, 0)
	cached.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		price, err := cached.Ticker(ctx, "BTC/USDT")
		require.NoError(t, err)
		assert.Equal(t, 42.0, price)
	}
	assert.Equal(t, int64(1), under.tickerCalls.Load())

	// 不同市场不共享缓存
	_, err := cached.Ticker(ctx, "ETH/USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(2), under.tickerCalls.Load())

	// TTL 过期后重新透传
	now = now.Add(3 * time.Second)
	_, err = cached.Ticker(ctx, "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, int64(3), under.tickerCalls.Load())
}
