package config

import (
	"github.com/spf13/viper"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// Load 加载配置（环境变量优先，未设置时使用默认值）
func Load() (*types.Config, error) {
	setDefaults()

	// 读取环境变量
	viper.AutomaticEnv()

	var config types.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("rpc_endpoints", "")
	viper.SetDefault("rpc_websocket_endpoint", "")
	viper.SetDefault("redis_url", "redis://127.0.0.1:6379/")
	viper.SetDefault("kline_timeout_secs", 60)
	viper.SetDefault("kline_interval_secs", 60)
	viper.SetDefault("sweep_interval_secs", 30)
	viper.SetDefault("notification_enabled", true)
	viper.SetDefault("notification_script_path", "./scripts/notify.sh")
	viper.SetDefault("notification_cooldown_seconds", 600)
	viper.SetDefault("min_sol_amount_pump", "0.01")
	viper.SetDefault("min_sol_amount_amm", "0.01")
	viper.SetDefault("mysql_dsn", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file_path", "logs")
	viper.SetDefault("log_max_size", 200)
	viper.SetDefault("log_max_age", 30)
	viper.SetDefault("log_max_backups", 7)
	viper.SetDefault("log_compress", false)
}
