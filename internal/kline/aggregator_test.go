package kline

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisarmy/pump-kmonitor/internal/storage"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

func makeTrade(mint string, ts int64, price, sol string, isBuy bool) types.Trade {
	p := decimal.RequireFromString(price)
	s := decimal.RequireFromString(sol)
	return types.Trade{
		Mint:        mint,
		Venue:       types.VenuePump,
		Signature:   "sig",
		Price:       p,
		SolAmount:   s,
		TokenAmount: s.Div(p),
		IsBuy:       isBuy,
		Timestamp:   ts,
	}
}

func applyTrade(a *Aggregator, trade types.Trade) {
	a.apply(a.shardFor(trade.Mint), trade)
}

func TestAggregatorMergesTradesIntoBucket(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	applyTrade(agg, makeTrade("mint1", 65, "1", "2", true))
	applyTrade(agg, makeTrade("mint1", 70, "1.5", "3", true))
	applyTrade(agg, makeTrade("mint1", 110, "0.8", "1", false))

	open, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	require.NotNil(t, open)

	assert.Equal(t, int64(60), open.Timestamp)
	assert.Equal(t, "1", open.Open)
	assert.Equal(t, "1.5", open.High)
	assert.Equal(t, "0.8", open.Low)
	assert.Equal(t, "0.8", open.Close)
	assert.Equal(t, "6", open.VolumeSol)
	assert.Equal(t, "4", open.NetFlowSol) // +2 +3 -1
	assert.Equal(t, int64(3), open.TradeCount)
	assert.Equal(t, int64(110), open.LastUpdate)
}

func TestAggregatorRolloverFinalizesCandle(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	applyTrade(agg, makeTrade("mint1", 65, "1", "2", true))
	applyTrade(agg, makeTrade("mint1", 125, "1.2", "1", true))

	klines, err := store.GetSeries(ctx, "mint1", 0)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, int64(60), klines[0].Timestamp)
	assert.Equal(t, "1", klines[0].Close)

	open, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, int64(120), open.Timestamp)
	assert.Equal(t, "1.2", open.Open)
}

func TestAggregatorDropsStaleTrades(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	applyTrade(agg, makeTrade("mint1", 125, "1.2", "1", true))
	applyTrade(agg, makeTrade("mint1", 65, "9.9", "5", true)) // 迟到，所属周期已过

	assert.Equal(t, uint64(1), agg.StaleDropped())

	// 已收盘的序列不受影响，当前K线也没被污染
	open, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "1.2", open.High)
	assert.Equal(t, int64(1), open.TradeCount)
}

func TestAggregatorFlushFinalizesOpenCandles(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	applyTrade(agg, makeTrade("mint1", 65, "1", "2", true))
	applyTrade(agg, makeTrade("mint2", 70, "3", "1", false))

	agg.Flush(ctx)

	for _, mint := range []string{"mint1", "mint2"} {
		klines, err := store.GetSeries(ctx, mint, 0)
		require.NoError(t, err)
		assert.Len(t, klines, 1, mint)
	}
}

func TestAggregatorFlushDrainsQueuedTrades(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	// 未启动分片goroutine，交易停留在队列里
	agg.Ingest(makeTrade("mint1", 65, "1", "2", true))
	agg.Flush(ctx)

	klines, err := store.GetSeries(ctx, "mint1", 0)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	assert.Equal(t, "1", klines[0].Close)
}

func TestAggregatorForgetDropsState(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	applyTrade(agg, makeTrade("mint1", 65, "1", "2", true))
	// 快照时间晚于最后一笔写入，状态应被清理
	agg.Forget([]string{"mint1"}, time.Now().Add(time.Second))

	// 状态被清理后同周期交易重新开仓
	applyTrade(agg, makeTrade("mint1", 70, "2", "1", true))
	open, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "2", open.Open)
	assert.Equal(t, int64(1), open.TradeCount)
}

func TestAggregatorForgetSparesTradesAppliedAfterSweepSnapshot(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	// 早已不活跃的mint，等待被淘汰
	applyTrade(agg, makeTrade("mint1", 65, "1", "3", true))

	asOf := time.Now()
	evicted, err := store.EvictExpired(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, []string{"mint1"}, evicted)

	// 淘汰快照之后、Forget之前到达的交易：它必须赢，重建序列
	applyTrade(agg, makeTrade("mint1", 6065, "2", "1", true))

	agg.Forget(evicted, asOf)

	// 同周期的后续交易要合并进同一根K线，而不是因状态被误删而重新开仓
	applyTrade(agg, makeTrade("mint1", 6070, "5", "1", true))

	open, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "2", open.Open)
	assert.Equal(t, int64(2), open.TradeCount)
}

func TestAggregatorIngestOverflowDropsOldest(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	// 未启动分片goroutine，把单个分片队列灌满后再多灌一笔
	agg.Ingest(makeTrade("mint1", 65, "9", "1", true)) // 最旧一笔，应被挤掉
	for i := 0; i < shardQueueSize; i++ {
		agg.Ingest(makeTrade("mint1", 65, "1", "1", true))
	}

	assert.Equal(t, uint64(1), agg.OverflowDropped())

	agg.Flush(ctx)

	klines, err := store.GetSeries(ctx, "mint1", 0)
	require.NoError(t, err)
	require.Len(t, klines, 1)
	// 被挤掉的是价格为9的最旧交易，K线里看不到它
	assert.Equal(t, "1", klines[0].Open)
	assert.Equal(t, "1", klines[0].High)
	assert.Equal(t, int64(shardQueueSize), klines[0].TradeCount)
}

func TestAggregatorPerMintIsolation(t *testing.T) {
	store := storage.NewMemoryStore(time.Minute)
	agg := NewAggregator(store, time.Minute)
	ctx := context.Background()

	applyTrade(agg, makeTrade("mint1", 65, "1", "2", true))
	applyTrade(agg, makeTrade("mint2", 66, "5", "3", true))

	open1, err := store.GetOpenCandle(ctx, "mint1")
	require.NoError(t, err)
	open2, err := store.GetOpenCandle(ctx, "mint2")
	require.NoError(t, err)

	assert.Equal(t, "1", open1.Close)
	assert.Equal(t, "5", open2.Close)
}
