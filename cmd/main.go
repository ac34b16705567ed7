package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/pkg/config"
	"github.com/wisarmy/pump-kmonitor/pkg/logger"
)

const usage = `用法: pump-kmonitor <command> [flags]

命令:
  monitor       监控pump.fun bonding curve交易
  monitor-amm   监控PumpSwap AMM交易
  web           启动K线查看Web服务
                  --port     监听端口（默认8080）
  strategy      运行策略检测
                  --once     只执行一轮后退出
                  --interval 持续检测间隔秒数（默认10）
`

func main() {
	// .env不存在时直接用进程环境变量
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	log := logger.Init(cfg)
	defer log.Sync()

	app, err := newApp(cfg)
	if err != nil {
		zap.L().Fatal("初始化失败", zap.Error(err))
	}
	defer app.Close()

	switch os.Args[1] {
	case "monitor":
		zap.L().Info("🔍 启动Pump监控服务...")
		err = app.runMonitor(false)

	case "monitor-amm":
		zap.L().Info("🔍 启动AMM监控服务...")
		err = app.runMonitor(true)

	case "web":
		fs := flag.NewFlagSet("web", flag.ExitOnError)
		port := fs.Int("port", 8080, "监听端口")
		_ = fs.Parse(os.Args[2:])

		zap.L().Info("🌐 启动Web服务...")
		err = app.runWeb(*port)

	case "strategy":
		fs := flag.NewFlagSet("strategy", flag.ExitOnError)
		once := fs.Bool("once", false, "只执行一轮后退出")
		interval := fs.Int("interval", 10, "持续检测间隔秒数")
		_ = fs.Parse(os.Args[2:])

		zap.L().Info("🎯 启动策略检测...")
		err = app.runStrategy(*once, *interval)

	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	if err != nil {
		zap.L().Fatal("服务异常退出", zap.Error(err))
	}
}
