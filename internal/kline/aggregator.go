package kline

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/storage"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

const (
	defaultShardCount = 16
	shardQueueSize    = 1024
	maxPendingAppends = 256
	appendRetries     = 3
)

// surgeThreshold 单根K线内涨幅超过10000%时记录异常日志
var surgeThreshold = decimal.NewFromInt(100)

// openCandle 某个mint当前未收盘K线的聚合状态
type openCandle struct {
	bucket      int64
	open        decimal.Decimal
	high        decimal.Decimal
	low         decimal.Decimal
	close       decimal.Decimal
	volumeSol   decimal.Decimal
	volumeToken decimal.Decimal
	netFlowSol  decimal.Decimal
	tradeCount  int64
	lastUpdate  int64
	appliedAt   int64 // 最近一次应用交易的本地时间（秒），淘汰对账用
}

func (c *openCandle) toKLine() types.KLineData {
	return types.KLineData{
		Timestamp:   c.bucket,
		Open:        c.open.String(),
		High:        c.high.String(),
		Low:         c.low.String(),
		Close:       c.close.String(),
		VolumeSol:   c.volumeSol.String(),
		VolumeToken: c.volumeToken.String(),
		NetFlowSol:  c.netFlowSol.String(),
		TradeCount:  c.tradeCount,
		LastUpdate:  c.lastUpdate,
	}
}

type pendingAppend struct {
	mint  string
	kline types.KLineData
}

// shard 每个分片一个goroutine串行处理，保证同一mint按到达顺序独占更新
type shard struct {
	trades  chan types.Trade
	mu      sync.Mutex
	states  map[string]*openCandle
	pending []pendingAppend
}

// Aggregator K线聚合器：消费归一化交易，维护每个mint的未收盘K线，
// 周期切换时把已收盘K线写入存储
type Aggregator struct {
	store    storage.SeriesStore
	interval int64 // K线周期（秒）
	shards   []*shard
	wg       sync.WaitGroup

	staleDropped    uint64
	overflowDropped uint64
}

// NewAggregator 创建聚合器
func NewAggregator(store storage.SeriesStore, interval time.Duration) *Aggregator {
	shards := make([]*shard, defaultShardCount)
	for i := range shards {
		shards[i] = &shard{
			trades: make(chan types.Trade, shardQueueSize),
			states: make(map[string]*openCandle),
		}
	}
	return &Aggregator{
		store:    store,
		interval: int64(interval.Seconds()),
		shards:   shards,
	}
}

// Start 启动分片处理goroutine
func (a *Aggregator) Start(ctx context.Context) {
	for _, s := range a.shards {
		a.wg.Add(1)
		go func(s *shard) {
			defer a.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case trade := <-s.trades:
					a.apply(s, trade)
				}
			}
		}(s)
	}
}

// Wait 等待所有分片goroutine退出
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

func (a *Aggregator) shardFor(mint string) *shard {
	h := fnv.New32a()
	h.Write([]byte(mint))
	return a.shards[h.Sum32()%uint32(len(a.shards))]
}

// Ingest 非阻塞入队。队列满时丢弃最旧的交易并计数，绝不阻塞摄取。
func (a *Aggregator) Ingest(trade types.Trade) {
	s := a.shardFor(trade.Mint)
	select {
	case s.trades <- trade:
		return
	default:
	}

	// 队列满：丢最旧，再次尝试入队
	select {
	case <-s.trades:
		atomic.AddUint64(&a.overflowDropped, 1)
	default:
	}
	select {
	case s.trades <- trade:
	default:
		atomic.AddUint64(&a.overflowDropped, 1)
	}
}

// apply 把一笔交易应用到mint的聚合状态
func (a *Aggregator) apply(s *shard, trade types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.drainPending(s)

	bucket := trade.Timestamp / a.interval * a.interval
	state := s.states[trade.Mint]

	switch {
	case state == nil:
		state = a.seed(trade, bucket)
		s.states[trade.Mint] = state

	case bucket == state.bucket:
		a.merge(state, trade)

	case bucket > state.bucket:
		// 周期切换：旧K线收盘落库，新K线开仓
		a.finalize(s, trade.Mint, state)
		state = a.seed(trade, bucket)
		s.states[trade.Mint] = state

	default:
		// 迟到交易，所属周期早于当前未收盘K线：丢弃并计数，已收盘K线不可变
		atomic.AddUint64(&a.staleDropped, 1)
		zap.L().Debug("丢弃过期交易",
			zap.String("mint", trade.Mint),
			zap.Int64("trade_bucket", bucket),
			zap.Int64("open_bucket", state.bucket))
		return
	}

	state.appliedAt = time.Now().Unix()
	a.putOpen(trade.Mint, state)
}

func (a *Aggregator) seed(trade types.Trade, bucket int64) *openCandle {
	netFlow := trade.SolAmount
	if !trade.IsBuy {
		netFlow = trade.SolAmount.Neg()
	}
	return &openCandle{
		bucket:      bucket,
		open:        trade.Price,
		high:        trade.Price,
		low:         trade.Price,
		close:       trade.Price,
		volumeSol:   trade.SolAmount,
		volumeToken: trade.TokenAmount,
		netFlowSol:  netFlow,
		tradeCount:  1,
		lastUpdate:  trade.Timestamp,
	}
}

func (a *Aggregator) merge(state *openCandle, trade types.Trade) {
	if trade.Price.GreaterThan(state.high) {
		state.high = trade.Price
	}
	if trade.Price.LessThan(state.low) {
		state.low = trade.Price
	}
	state.close = trade.Price
	state.volumeSol = state.volumeSol.Add(trade.SolAmount)
	state.volumeToken = state.volumeToken.Add(trade.TokenAmount)
	if trade.IsBuy {
		state.netFlowSol = state.netFlowSol.Add(trade.SolAmount)
	} else {
		state.netFlowSol = state.netFlowSol.Sub(trade.SolAmount)
	}
	state.tradeCount++
	state.lastUpdate = trade.Timestamp

	if state.open.IsPositive() {
		increase := state.high.Sub(state.open).Div(state.open)
		if increase.GreaterThan(surgeThreshold) {
			zap.L().Warn("⚠️ mint单周期内暴涨",
				zap.String("mint", trade.Mint),
				zap.String("increase_pct", increase.Mul(decimal.NewFromInt(100)).StringFixed(2)),
				zap.String("open", state.open.String()),
				zap.String("high", state.high.String()))
		}
	}
}

// finalize 已收盘K线落库；失败时缓存重试，超过上限丢最旧
func (a *Aggregator) finalize(s *shard, mint string, state *openCandle) {
	kline := state.toKLine()
	if a.appendWithRetry(mint, kline) {
		return
	}

	if len(s.pending) >= maxPendingAppends {
		s.pending = s.pending[1:]
		atomic.AddUint64(&a.overflowDropped, 1)
		zap.L().Error("待落库K线缓冲已满，丢弃最旧一根", zap.String("mint", mint))
	}
	s.pending = append(s.pending, pendingAppend{mint: mint, kline: kline})
}

// drainPending 重试之前落库失败的K线
func (a *Aggregator) drainPending(s *shard) {
	if len(s.pending) == 0 {
		return
	}
	remaining := s.pending[:0]
	for _, p := range s.pending {
		if !a.appendWithRetry(p.mint, p.kline) {
			remaining = append(remaining, p)
		}
	}
	s.pending = remaining
}

func (a *Aggregator) appendWithRetry(mint string, kline types.KLineData) bool {
	delay := 100 * time.Millisecond
	for attempt := 0; attempt < appendRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := a.store.AppendCandle(ctx, mint, kline)
		cancel()
		if err == nil {
			return true
		}
		zap.L().Warn("K线落库失败",
			zap.String("mint", mint),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(delay)
		delay *= 2
	}
	return false
}

func (a *Aggregator) putOpen(mint string, state *openCandle) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := a.store.PutOpenCandle(ctx, mint, state.toKLine()); err != nil {
		zap.L().Warn("写入未收盘K线失败", zap.String("mint", mint), zap.Error(err))
	}
}

// Flush 优雅关闭时把所有未收盘K线收盘落库，不静默丢失数据
func (a *Aggregator) Flush(ctx context.Context) {
	for _, s := range a.shards {
		s.mu.Lock()

		// 先清空队列中尚未处理的交易
	drain:
		for {
			select {
			case trade := <-s.trades:
				s.mu.Unlock()
				a.apply(s, trade)
				s.mu.Lock()
			default:
				break drain
			}
		}

		a.drainPending(s)
		for mint, state := range s.states {
			kline := state.toKLine()
			if err := a.store.AppendCandle(ctx, mint, kline); err != nil {
				zap.L().Error("关闭时K线落库失败", zap.String("mint", mint), zap.Error(err))
			}
			delete(s.states, mint)
		}
		s.mu.Unlock()
	}
	zap.L().Info("✅ 所有未收盘K线已落库")
}

// Forget 丢弃被淘汰mint的内存聚合状态。
// asOf是本轮淘汰的快照时间：快照之后才有交易写入的mint不清理，
// 该交易重新开仓、下次写入时重建存储键（交易赢，淘汰输）
func (a *Aggregator) Forget(mints []string, asOf time.Time) {
	cutoff := asOf.Unix()
	for _, mint := range mints {
		s := a.shardFor(mint)
		s.mu.Lock()
		if state := s.states[mint]; state != nil && state.appliedAt >= cutoff {
			zap.L().Debug("mint在淘汰快照后有新交易，保留聚合状态", zap.String("mint", mint))
			s.mu.Unlock()
			continue
		}
		delete(s.states, mint)
		s.mu.Unlock()
	}
}

// StaleDropped 被丢弃的过期交易数
func (a *Aggregator) StaleDropped() uint64 {
	return atomic.LoadUint64(&a.staleDropped)
}

// OverflowDropped 因队列溢出被丢弃的数量
func (a *Aggregator) OverflowDropped() uint64 {
	return atomic.LoadUint64(&a.overflowDropped)
}
