// 文件: pkg/index/memory_index_test.go

package index

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ding.com/pkg/market"
)

func priceDetail(id, mkt string, dir market.Direction, threshold string) Detail {
	return Detail{
		AlertID:   id,
		UserID:    "u1",
		Market:    mkt,
		Kind:      market.KindPrice,
		Direction: dir,
		Threshold: decimal.RequireFromString(threshold),
	}
}

func TestMemoryIndex_RangeQueries(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Subscribe(ctx, priceDetail("a1", "BINANCE:BTCUSDT", market.DirectionAbove, "50000")))
	require.NoError(t, idx.Subscribe(ctx, priceDetail("a2", "BINANCE:BTCUSDT", market.DirectionAbove, "60000")))
	require.NoError(t, idx.Subscribe(ctx, priceDetail("b1", "BINANCE:BTCUSDT", market.DirectionBelow, "40000")))

	// 49999 未到 above 阈值
	ids, err := idx.FindCrossedAbove(ctx, PriceSet("BINANCE:BTCUSDT", market.DirectionAbove), 49999)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// 恰好 50000: 边界含等于
	ids, err = idx.FindCrossedAbove(ctx, PriceSet("BINANCE:BTCUSDT", market.DirectionAbove), 50000)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)

	// 65000 两条 above 都穿越
	ids, err = idx.FindCrossedAbove(ctx, PriceSet("BINANCE:BTCUSDT", market.DirectionAbove), 65000)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, ids)

	// below: 价格跌到 40000 及以下
	ids, err = idx.FindCrossedBelow(ctx, PriceSet("BINANCE:BTCUSDT", market.DirectionBelow), 40000)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, ids)

	ids, err = idx.FindCrossedBelow(ctx, PriceSet("BINANCE:BTCUSDT", market.DirectionBelow), 40001)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryIndex_RemoveIdempotent(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	set := PriceSet("BINANCE:BTCUSDT", market.DirectionAbove)

	require.NoError(t, idx.Subscribe(ctx, priceDetail("a1", "BINANCE:BTCUSDT", market.DirectionAbove, "50000")))
	require.NoError(t, idx.Remove(ctx, set, "a1"))
	// 重复移除和移除不存在的条目都不报错
	require.NoError(t, idx.Remove(ctx, set, "a1"))
	require.NoError(t, idx.Remove(ctx, set, "ghost"))
}

func TestMemoryIndex_DetailLifecycle(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	d, err := idx.GetDetail(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, idx.Subscribe(ctx, priceDetail("a1", "BINANCE:BTCUSDT", market.DirectionAbove, "50000")))
	d, err = idx.GetDetail(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "u1", d.UserID)
	assert.True(t, d.Threshold.Equal(decimal.RequireFromString("50000")))

	// 残缺详情按不存在处理
	idx.CorruptDetail("a1")
	d, err = idx.GetDetail(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, idx.DeleteDetail(ctx, "a1"))
	require.NoError(t, idx.DeleteDetail(ctx, "a1"))
}

func TestMemoryIndex_DiscoverMarkets(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.Subscribe(ctx, priceDetail("a1", "BINANCE:BTCUSDT", market.DirectionAbove, "50000")))
	require.NoError(t, idx.Subscribe(ctx, priceDetail("a2", "BINANCE:ETHUSDT", market.DirectionBelow, "3000")))

	candle := priceDetail("c1", "BINANCE:SOLUSDT", market.DirectionAbove, "200")
	candle.Kind = market.KindCandle
	candle.Interval = market.Interval1h
	require.NoError(t, idx.Subscribe(ctx, candle))

	markets, err := idx.DiscoverMarkets(ctx, market.KindPrice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"BINANCE:BTCUSDT", "BINANCE:ETHUSDT"}, markets)

	markets, err = idx.DiscoverMarkets(ctx, market.KindCandle, market.Interval1h)
	require.NoError(t, err)
	assert.Equal(t, []string{"BINANCE:SOLUSDT"}, markets)

	// 其他周期没有条目
	markets, err = idx.DiscoverMarkets(ctx, market.KindCandle, market.Interval1d)
	require.NoError(t, err)
	assert.Empty(t, markets)

	// 摘空后不再出现在发现结果里
	require.NoError(t, idx.Unsubscribe(ctx, "a2"))
	markets, err = idx.DiscoverMarkets(ctx, market.KindPrice, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"BINANCE:BTCUSDT"}, markets)
}

func TestDetail_Validate(t *testing.T) {
	ok := priceDetail("a1", "BINANCE:BTCUSDT", market.DirectionAbove, "1")
	require.NoError(t, ok.Validate())

	missing := ok
	missing.UserID = ""
	assert.ErrorIs(t, missing.Validate(), ErrInvalidDetail)

	badDir := ok
	badDir.Direction = "sideways"
	assert.ErrorIs(t, badDir.Validate(), ErrInvalidDetail)

	candleNoInterval := ok
	candleNoInterval.Kind = market.KindCandle
	assert.ErrorIs(t, candleNoInterval.Validate(), ErrInvalidDetail)
}

func TestSetKey_String(t *testing.T) {
	assert.Equal(t, "alerts:price:BINANCE:BTCUSDT:above",
		PriceSet("binance:btcusdt", market.DirectionAbove).String())
	assert.Equal(t, "alerts:candle:1h:BINANCE:BTCUSDT:below",
		CandleSet("BINANCE:BTCUSDT", market.Interval1h, market.DirectionBelow).String())
}
