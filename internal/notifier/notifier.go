package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// Notifier 告警发送器
type Notifier interface {
	Send(ctx context.Context, alert *types.StrategyAlert) error
}

// scriptPayload 传给通知脚本的JSON结构
type scriptPayload struct {
	Type             string               `json:"type"`
	Alert            *types.StrategyAlert `json:"alert"`
	FormattedMessage string               `json:"formatted_message"`
}

// ScriptNotifier 调用外部bash脚本发送通知，脚本以JSON字符串为唯一参数
type ScriptNotifier struct {
	scriptPath string
}

// NewScriptNotifier 创建脚本通知器
func NewScriptNotifier(scriptPath string) *ScriptNotifier {
	return &ScriptNotifier{scriptPath: scriptPath}
}

// Available 检查通知脚本是否存在
func (n *ScriptNotifier) Available() bool {
	info, err := os.Stat(n.scriptPath)
	return err == nil && info.Mode().IsRegular()
}

func (n *ScriptNotifier) Send(ctx context.Context, alert *types.StrategyAlert) error {
	if !n.Available() {
		zap.L().Warn("⚠️ 通知脚本不存在，跳过发送", zap.String("script", n.scriptPath))
		return nil
	}

	payload, err := json.Marshal(scriptPayload{
		Type:             "strategy_alert",
		Alert:            alert,
		FormattedMessage: FormatAlertMessage(alert),
	})
	if err != nil {
		return fmt.Errorf("序列化通知数据失败: %w", err)
	}

	cmd := exec.CommandContext(ctx, "bash", n.scriptPath, string(payload))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("通知脚本执行失败: %w, 输出: %s", err, output)
	}

	zap.L().Info("✅ 通知脚本执行成功")
	if len(output) > 0 {
		zap.L().Info("📤 脚本输出", zap.ByteString("output", output))
	}
	return nil
}

// ConsoleNotifier 只打日志不外发，通知被禁用时使用
type ConsoleNotifier struct{}

func (ConsoleNotifier) Send(_ context.Context, alert *types.StrategyAlert) error {
	zap.L().Info("📢 策略告警（通知已禁用）",
		zap.String("mint", alert.Mint),
		zap.String("strategy", alert.StrategyName),
		zap.String("message", alert.Message))
	return nil
}

// FormatAlertMessage 格式化Markdown告警消息
func FormatAlertMessage(alert *types.StrategyAlert) string {
	return fmt.Sprintf(`## 🚀连续上涨📈
- 🚨 策略告警
- 📍 Token: %s
- 🔍 策略: %s
- 📊 详情: %s
- ⏰ 时间: %s
- 📈 K线数量: %d
- 🔗 [GMGN](https://gmgn.ai/sol/token/%s)`,
		alert.Mint,
		alert.StrategyName,
		alert.Message,
		time.Unix(alert.Timestamp, 0).Format("2006-01-02 15:04:05"),
		len(alert.Klines),
		alert.Mint)
}
