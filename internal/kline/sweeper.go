package kline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/storage"
)

// Sweeper 周期性淘汰不活跃mint的K线序列，并同步清理聚合器内存状态
type Sweeper struct {
	store    storage.SeriesStore
	agg      *Aggregator
	interval time.Duration
}

// NewSweeper 创建淘汰器
func NewSweeper(store storage.SeriesStore, agg *Aggregator, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, agg: agg, interval: interval}
}

// Start 阻塞运行淘汰循环，直到ctx取消
func (s *Sweeper) Start(ctx context.Context) {
	zap.L().Info("🧹 K线淘汰器已启动", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("K线淘汰器已停止")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	// asOf固定本轮快照时间：快照后并发写入的交易不能被清理掉
	asOf := time.Now()
	evicted, err := s.store.EvictExpired(ctx, asOf)
	if err != nil {
		zap.L().Warn("K线淘汰失败", zap.Error(err))
		return
	}
	if len(evicted) == 0 {
		return
	}

	if s.agg != nil {
		s.agg.Forget(evicted, asOf)
	}
	zap.L().Info("🗑️ 本轮淘汰完成", zap.Int("evicted", len(evicted)))
}
