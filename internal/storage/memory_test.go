package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

func makeKline(ts int64, open, close string) types.KLineData {
	return types.KLineData{
		Timestamp:  ts,
		Open:       open,
		High:       close,
		Low:        open,
		Close:      close,
		VolumeSol:  "1",
		TradeCount: 1,
		LastUpdate: ts,
	}
}

func TestMemoryStoreSeriesOrderAndLimit(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	// 乱序写入
	require.NoError(t, store.AppendCandle(ctx, "mint1", makeKline(120, "1", "2")))
	require.NoError(t, store.AppendCandle(ctx, "mint1", makeKline(60, "0.5", "1")))
	require.NoError(t, store.AppendCandle(ctx, "mint1", makeKline(180, "2", "3")))

	klines, err := store.GetSeries(ctx, "mint1", 0)
	require.NoError(t, err)
	require.Len(t, klines, 3)
	assert.Equal(t, int64(60), klines[0].Timestamp)
	assert.Equal(t, int64(120), klines[1].Timestamp)
	assert.Equal(t, int64(180), klines[2].Timestamp)

	// limit取最近的N根
	klines, err = store.GetSeries(ctx, "mint1", 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.Equal(t, int64(120), klines[0].Timestamp)
	assert.Equal(t, int64(180), klines[1].Timestamp)
}

func TestMemoryStoreOpenCandle(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	open, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	assert.Nil(t, open)

	require.NoError(t, store.PutOpenCandle(ctx, "mint1", makeKline(60, "1", "1.5")))
	open, err = store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "1.5", open.Close)

	// 未收盘K线不出现在已收盘序列中
	klines, err := store.GetSeries(ctx, "mint1", 0)
	require.NoError(t, err)
	assert.Empty(t, klines)
}

func TestMemoryStoreEviction(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	base := time.Now().Unix()
	require.NoError(t, store.AppendCandle(ctx, "idle", makeKline(base-120, "1", "2")))
	require.NoError(t, store.AppendCandle(ctx, "fresh", makeKline(base-10, "1", "2")))

	evicted, err := store.EvictExpired(ctx, time.Unix(base, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, evicted)

	klines, err := store.GetSeries(ctx, "idle", 0)
	require.NoError(t, err)
	assert.Empty(t, klines)

	klines, err = store.GetSeries(ctx, "fresh", 0)
	require.NoError(t, err)
	assert.Len(t, klines, 1)
}

func TestMemoryStoreEvictionBoundary(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	base := time.Now().Unix()
	// 刚好等于超时的也要淘汰
	require.NoError(t, store.AppendCandle(ctx, "exact", makeKline(base-60, "1", "2")))

	evicted, err := store.EvictExpired(ctx, time.Unix(base, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"exact"}, evicted)
}

func TestMemoryStoreTouchDefersEviction(t *testing.T) {
	store := NewMemoryStore(60 * time.Second)
	ctx := context.Background()

	base := time.Now().Unix()
	require.NoError(t, store.AppendCandle(ctx, "mint1", makeKline(base-120, "1", "2")))
	require.NoError(t, store.Touch(ctx, "mint1", base-5))

	evicted, err := store.EvictExpired(ctx, time.Unix(base, 0))
	require.NoError(t, err)
	assert.Empty(t, evicted)
}

func TestMemoryStoreActiveMintsAndStats(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	require.NoError(t, store.AppendCandle(ctx, "a", makeKline(100, "1", "2")))
	require.NoError(t, store.AppendCandle(ctx, "b", makeKline(200, "1", "2")))
	require.NoError(t, store.PutOpenCandle(ctx, "b", makeKline(260, "2", "2.1")))

	mints, err := store.ListActiveMints(ctx)
	require.NoError(t, err)
	require.Len(t, mints, 2)
	// 按活跃度降序
	assert.Equal(t, "b", mints[0].Mint)

	mintCount, klineCount, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, mintCount)
	assert.Equal(t, 3, klineCount)
}
