package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/database"
	"github.com/wisarmy/pump-kmonitor/internal/notifier"
	"github.com/wisarmy/pump-kmonitor/internal/storage"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// 每个mint只取最近几根K线做形态检测
const scanKlineLimit = 10

// Engine 策略引擎：周期性扫描活跃mint，命中形态后经冷却闸门发出告警
type Engine struct {
	store    storage.SeriesStore
	pattern  ConsecutiveRisingPattern
	gate     notifier.Gate
	notifier notifier.Notifier
	db       *database.Manager // 可为nil（未配置MySQL时不落库）

	// 每个mint最近检查过的活动时间，数据没变化就跳过
	lastChecked map[string]int64
}

// NewEngine 创建策略引擎
func NewEngine(store storage.SeriesStore, pattern ConsecutiveRisingPattern, gate notifier.Gate, n notifier.Notifier, db *database.Manager) *Engine {
	return &Engine{
		store:       store,
		pattern:     pattern,
		gate:        gate,
		notifier:    n,
		db:          db,
		lastChecked: make(map[string]int64),
	}
}

// RunOnce 执行一轮策略检测
func (e *Engine) RunOnce(ctx context.Context) error {
	zap.L().Info("🔍 开始运行策略检测...")

	mints, err := e.store.ListActiveMints(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("📊 发现活跃mint", zap.Int("count", len(mints)))

	for _, m := range mints {
		if last, ok := e.lastChecked[m.Mint]; ok && m.LastActivity <= last {
			continue
		}

		klines, err := e.store.GetSeries(ctx, m.Mint, scanKlineLimit)
		if err != nil {
			zap.L().Warn("读取K线序列失败", zap.String("mint", m.Mint), zap.Error(err))
			continue
		}

		if alert := e.pattern.Match(m.Mint, klines); alert != nil {
			e.emit(ctx, alert)
		}

		e.lastChecked[m.Mint] = m.LastActivity
	}
	return nil
}

// emit 经过冷却闸门后发出告警
func (e *Engine) emit(ctx context.Context, alert *types.StrategyAlert) {
	zap.L().Info("🚨 策略触发",
		zap.String("strategy", alert.StrategyName),
		zap.String("mint", alert.Mint),
		zap.String("message", alert.Message))

	admitted, err := e.gate.Admit(ctx, alert.Mint)
	if err != nil {
		zap.L().Warn("⚠️ 冷却检查失败，跳过本次告警", zap.String("mint", alert.Mint), zap.Error(err))
		return
	}
	if !admitted {
		zap.L().Info("🔄 冷却期内已通知过，跳过重复通知", zap.String("mint", alert.Mint))
		return
	}

	// 冷却已登记：发送失败也不回滚，宁可漏发一次不重复骚扰
	if err := e.notifier.Send(ctx, alert); err != nil {
		zap.L().Error("❌ 通知发送失败", zap.String("mint", alert.Mint), zap.Error(err))
	} else {
		zap.L().Info("✅ 通知发送成功", zap.String("mint", alert.Mint))
	}

	if e.db != nil {
		if err := e.db.SaveAlert(alert); err != nil {
			zap.L().Warn("告警落库失败", zap.String("mint", alert.Mint), zap.Error(err))
		}
	}
}

// RunContinuous 持续运行策略检测，直到ctx取消
func (e *Engine) RunContinuous(ctx context.Context, interval time.Duration) {
	zap.L().Info("🔄 开始持续策略检测", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("策略检测已停止")
			return
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				zap.L().Warn("❌ 策略检测出错", zap.Error(err))
			}
		}
	}
}
