package types

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config 主配置结构（环境变量驱动）
type Config struct {
	RPCEndpoints                string `mapstructure:"rpc_endpoints"`            // RPC节点列表，逗号分隔
	RPCWebsocketEndpoint        string `mapstructure:"rpc_websocket_endpoint"`   // WebSocket订阅节点
	RedisURL                    string `mapstructure:"redis_url"`                // Redis地址
	KlineTimeoutSecs            int    `mapstructure:"kline_timeout_secs"`       // mint不活跃淘汰超时（秒）
	KlineIntervalSecs           int    `mapstructure:"kline_interval_secs"`      // K线周期（秒）
	SweepIntervalSecs           int    `mapstructure:"sweep_interval_secs"`      // 淘汰清理周期（秒）
	NotificationEnabled         bool   `mapstructure:"notification_enabled"`     // 是否启用通知
	NotificationScriptPath      string `mapstructure:"notification_script_path"` // 通知脚本路径
	NotificationCooldownSeconds int    `mapstructure:"notification_cooldown_seconds"`
	MinSolAmountPump            string `mapstructure:"min_sol_amount_pump"` // Pump最小SOL金额过滤
	MinSolAmountAmm             string `mapstructure:"min_sol_amount_amm"`  // AMM最小SOL金额过滤
	MysqlDSN                    string `mapstructure:"mysql_dsn"`           // 可选：告警持久化MySQL

	LogLevel      string `mapstructure:"log_level"`
	LogFilePath   string `mapstructure:"log_file_path"`
	LogMaxSize    int    `mapstructure:"log_max_size"`    // 单位：MB
	LogMaxAge     int    `mapstructure:"log_max_age"`     // 单位：天
	LogMaxBackups int    `mapstructure:"log_max_backups"` // 备份数量
	LogCompress   bool   `mapstructure:"log_compress"`
}

// RPCEndpointList 解析RPC节点列表
func (c *Config) RPCEndpointList() []string {
	var endpoints []string
	for _, e := range strings.Split(c.RPCEndpoints, ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return endpoints
}

// KlineInterval K线周期
func (c *Config) KlineInterval() time.Duration {
	return time.Duration(c.KlineIntervalSecs) * time.Second
}

// KlineTimeout 不活跃淘汰超时
func (c *Config) KlineTimeout() time.Duration {
	return time.Duration(c.KlineTimeoutSecs) * time.Second
}

// SweepInterval 淘汰清理周期
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// NotificationCooldown 通知冷却时间
func (c *Config) NotificationCooldown() time.Duration {
	return time.Duration(c.NotificationCooldownSeconds) * time.Second
}

// MinSolPump Pump交易过滤阈值，解析失败回退0.01
func (c *Config) MinSolPump() decimal.Decimal {
	return parseMinSol(c.MinSolAmountPump)
}

// MinSolAmm AMM交易过滤阈值，解析失败回退0.01
func (c *Config) MinSolAmm() decimal.Decimal {
	return parseMinSol(c.MinSolAmountAmm)
}

func parseMinSol(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.New(1, -2) // 默认 0.01 SOL
	}
	return d
}
