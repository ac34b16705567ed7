package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/database"
	"github.com/wisarmy/pump-kmonitor/internal/kline"
	"github.com/wisarmy/pump-kmonitor/internal/monitor"
	"github.com/wisarmy/pump-kmonitor/internal/notifier"
	"github.com/wisarmy/pump-kmonitor/internal/rpcpool"
	"github.com/wisarmy/pump-kmonitor/internal/storage"
	"github.com/wisarmy/pump-kmonitor/internal/strategy"
	"github.com/wisarmy/pump-kmonitor/internal/web"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

const shutdownTimeout = 30 * time.Second

// App 各子命令共享的依赖
type App struct {
	cfg   *types.Config
	redis *redis.Client // REDIS_URL为空时为nil，降级为内存存储
	store storage.SeriesStore
}

func newApp(cfg *types.Config) (*App, error) {
	app := &App{cfg: cfg}

	if cfg.RedisURL == "" {
		zap.L().Warn("⚠️ 未配置REDIS_URL，使用内存存储（重启后数据丢失）")
		app.store = storage.NewMemoryStore(cfg.KlineTimeout())
		return app, nil
	}

	client, err := storage.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	zap.L().Info("✅ Redis连接成功")

	app.redis = client
	app.store = storage.NewRedisStore(client, cfg.KlineTimeout())
	return app, nil
}

func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// signalContext 收到SIGINT/SIGTERM时取消的context
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// runMonitor 运行交易监控：WebSocket订阅 → 解析 → K线聚合 → 周期淘汰
func (a *App) runMonitor(amm bool) error {
	if a.cfg.RPCWebsocketEndpoint == "" {
		return fmt.Errorf("必须配置RPC_WEBSOCKET_ENDPOINT")
	}

	ctx, cancel := signalContext()
	defer cancel()

	agg := kline.NewAggregator(a.store, a.cfg.KlineInterval())
	agg.Start(ctx)

	sweeper := kline.NewSweeper(a.store, agg, a.cfg.SweepInterval())
	go sweeper.Start(ctx)

	dedup := monitor.NewDeduper()

	var handler monitor.EventHandler
	var programs []string
	var name string

	if amm {
		pool, err := rpcpool.New(a.cfg.RPCEndpointList())
		if err != nil {
			return fmt.Errorf("初始化RPC池失败: %w", err)
		}
		a.checkRPCHealth(ctx, pool)

		resolver := monitor.NewPoolResolver(pool, a.redis)
		handler = monitor.NewAmmHandler(agg, dedup, resolver, a.cfg.MinSolAmm())
		programs = []string{monitor.PumpAmmProgram}
		name = "AMM"
	} else {
		handler = monitor.NewPumpHandler(agg, dedup, a.cfg.MinSolPump())
		programs = []string{monitor.PumpProgram}
		name = "PUMP"
	}

	zap.L().Info("📡 开始订阅交易日志",
		zap.String("monitor", name),
		zap.String("endpoint", a.cfg.RPCWebsocketEndpoint))

	m := monitor.NewMonitor(a.cfg.RPCWebsocketEndpoint, programs, name, handler)
	err := m.Start(ctx)

	// 无论怎么退出，先把未收盘K线落库再返回
	a.shutdown(agg)

	if ctx.Err() != nil {
		zap.L().Info("收到退出信号，服务已停止")
		return nil
	}
	return err
}

// checkRPCHealth 启动时检查一次RPC健康状态，之后每5分钟复查
func (a *App) checkRPCHealth(ctx context.Context, pool *rpcpool.Pool) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := pool.GetHealth(checkCtx); err != nil {
			zap.L().Warn("⚠️ RPC健康检查失败", zap.Error(err))
		} else {
			zap.L().Info("✅ RPC健康检查通过")
		}
	}
	check()

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

func (a *App) shutdown(agg *kline.Aggregator) {
	zap.L().Info("正在落库未收盘K线...")

	done := make(chan struct{})
	go func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		agg.Flush(flushCtx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		zap.L().Error("❌ 关闭超时，部分K线可能未落库")
	}
	agg.Wait()
}

// runWeb 运行K线查看Web服务
func (a *App) runWeb(port int) error {
	ctx, cancel := signalContext()
	defer cancel()

	zap.L().Info("🌐 Web界面地址", zap.String("url", fmt.Sprintf("http://localhost:%d", port)))
	return web.NewServer(a.store).Run(ctx, port)
}

// runStrategy 运行策略检测
func (a *App) runStrategy(once bool, intervalSecs int) error {
	ctx, cancel := signalContext()
	defer cancel()

	var gate notifier.Gate
	if a.redis != nil {
		gate = notifier.NewRedisGate(a.redis, a.cfg.NotificationCooldown())
	} else {
		gate = notifier.NewMemoryGate(a.cfg.NotificationCooldown())
	}

	var n notifier.Notifier
	if a.cfg.NotificationEnabled {
		script := notifier.NewScriptNotifier(a.cfg.NotificationScriptPath)
		if script.Available() {
			zap.L().Info("✅ 通知功能已启用", zap.String("script", a.cfg.NotificationScriptPath))
		} else {
			zap.L().Warn("⚠️ 通知脚本不存在，请确认路径和执行权限",
				zap.String("script", a.cfg.NotificationScriptPath))
		}
		n = script
	} else {
		zap.L().Info("ℹ️ 通知功能已禁用")
		n = notifier.ConsoleNotifier{}
	}

	var db *database.Manager
	if a.cfg.MysqlDSN != "" {
		var err error
		db, err = database.NewManager(a.cfg.MysqlDSN)
		if err != nil {
			return fmt.Errorf("初始化MySQL失败: %w", err)
		}
		defer db.Close()
	}

	pattern := strategy.DefaultPattern(a.cfg.KlineInterval())
	engine := strategy.NewEngine(a.store, pattern, gate, n, db)

	if once {
		zap.L().Info("🔍 执行一次性策略检测...")
		if err := engine.RunOnce(ctx); err != nil {
			return err
		}
		zap.L().Info("✅ 策略检测完成")
		return nil
	}

	engine.RunContinuous(ctx, time.Duration(intervalSecs)*time.Second)
	return nil
}
