// 文件: pkg/sweeper/sweeper_test.go

package sweeper

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ding.com/pkg/index"
	"ding.com/pkg/market"
	"ding.com/pkg/store"
)

func seed(t *testing.T, idx *index.MemoryIndex, repo *store.MemoryAlertRepository, id string, status store.Status) {
	t.Helper()

	repo.Put(store.Alert{
		ID:         id,
		UserID:     "u1",
		PairSymbol: "BINANCE:BTCUSDT",
		Kind:       market.KindPrice,
		Direction:  market.DirectionAbove,
		Threshold:  "50000",
		Status:     status,
	})
	require.NoError(t, idx.Subscribe(context.Background(), index.Detail{
		AlertID:   id,
		UserID:    "u1",
		Market:    "BINANCE:BTCUSDT",
		Kind:      market.KindPrice,
		Direction: market.DirectionAbove,
		Threshold: decimal.RequireFromString("50000"),
	}))
}

func TestSweep_RemovesStaleKeepsPending(t *testing.T) {
	idx := index.NewMemoryIndex()
	repo := store.NewMemoryAlertRepository()
	ctx := context.Background()

	seed(t, idx, repo, "keep", store.StatusPending)
	seed(t, idx, repo, "cancelled", store.StatusCancelled)
	seed(t, idx, repo, "triggered", store.StatusTriggered)

	// 记录源里没有的孤儿详情
	require.NoError(t, idx.Subscribe(ctx, index.Detail{
		AlertID:   "ghost",
		UserID:    "u1",
		Market:    "BINANCE:BTCUSDT",
		Kind:      market.KindPrice,
		Direction: market.DirectionAbove,
		Threshold: decimal.RequireFromString("1"),
	}))

	s := NewSweeper(idx, repo, zap.NewNop(), 0)
	cleaned, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cleaned)

	// PENDING 的留着
	d, err := idx.GetDetail(ctx, "keep")
	require.NoError(t, err)
	assert.NotNil(t, d)

	// 其余详情和索引条目都被摘掉
	for _, id := range []string{"cancelled", "triggered", "ghost"} {
		d, err := idx.GetDetail(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, d, id)
	}
	ids, err := idx.FindCrossedAbove(ctx, index.PriceSet("BINANCE:BTCUSDT", market.DirectionAbove), 1e12)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, ids)
}

func TestSweep_EmptyIndexNoop(t *testing.T) {
	s := NewSweeper(index.NewMemoryIndex(), store.NewMemoryAlertRepository(), zap.NewNop(), 0)
	cleaned, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cleaned)
}

func TestSweeper_StartStopIdempotent(t *testing.T) {
	s := NewSweeper(index.NewMemoryIndex(), store.NewMemoryAlertRepository(), zap.NewNop(), 0)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
