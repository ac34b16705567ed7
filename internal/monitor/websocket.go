package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PumpProgram pump.fun bonding curve程序地址
	PumpProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	// PumpAmmProgram PumpSwap AMM程序地址
	PumpAmmProgram = "pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA"
	// WSOLMint wrapped SOL的mint地址
	WSOLMint = "So11111111111111111111111111111111111111112"

	maxReconnectAttempts  = 10
	initialReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 5 * time.Minute
	pingInterval          = 30 * time.Second
	handshakeTimeout      = 15 * time.Second

	// 连接存活超过这个时长视为曾经健康，重连计数清零
	healthyConnDuration = time.Minute
)

// LogsEvent logsNotification推送中与交易相关的字段
type LogsEvent struct {
	Signature string
	Slot      uint64
	Success   bool
	Logs      []string
}

// EventHandler 处理一条日志推送
type EventHandler interface {
	Handle(ctx context.Context, event *LogsEvent)
}

// logsNotification Solana logsSubscribe推送消息
type logsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string          `json:"signature"`
				Err       json.RawMessage `json:"err"`
				Logs      []string        `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// Monitor 订阅指定程序日志的WebSocket监控器，断线自动指数退避重连
type Monitor struct {
	endpoint string
	programs []string
	name     string
	handler  EventHandler
}

// NewMonitor 创建WebSocket监控器
func NewMonitor(endpoint string, programs []string, name string, handler EventHandler) *Monitor {
	return &Monitor{
		endpoint: endpoint,
		programs: programs,
		name:     name,
		handler:  handler,
	}
}

// Start 阻塞运行监控循环，连续重连失败超过上限时返回错误
func (m *Monitor) Start(ctx context.Context) error {
	attempts := 0

	for {
		connectedAt := time.Now()
		err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// 连接跑了足够久才断开，说明上游恢复过，重连额度重置
		if time.Since(connectedAt) >= healthyConnDuration {
			attempts = 0
		}

		attempts++
		zap.L().Error("❌ WebSocket连接断开",
			zap.String("monitor", m.name),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", maxReconnectAttempts),
			zap.Error(err))

		if attempts >= maxReconnectAttempts {
			return fmt.Errorf("%s监控重连次数已达上限: %w", m.name, err)
		}

		delay := reconnectDelay(attempts)
		zap.L().Warn("等待重连", zap.String("monitor", m.name), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// reconnectDelay 指数退避加随机抖动（0~50%），避免多个实例同时重连挤压节点
func reconnectDelay(attempt int) time.Duration {
	delay := initialReconnectDelay << (attempt - 1)
	if delay > maxReconnectDelay || delay <= 0 {
		delay = maxReconnectDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

func (m *Monitor) connectOnce(ctx context.Context) error {
	zap.L().Info("🔌 连接WebSocket服务器",
		zap.String("monitor", m.name), zap.String("endpoint", m.endpoint))

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, m.endpoint, nil)
	if err != nil {
		return fmt.Errorf("WebSocket连接失败: %w", err)
	}
	defer conn.Close()

	if err := m.subscribe(conn); err != nil {
		return err
	}
	zap.L().Info("✅ 日志订阅已发送", zap.String("monitor", m.name))

	// ping协程保活；WriteControl可以与读取并发调用
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go m.pingLoop(pingCtx, conn)

	// ctx取消时主动关闭连接，打断阻塞的ReadMessage
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("读取消息失败: %w", err)
		}
		m.dispatch(ctx, data)
	}
}

func (m *Monitor) subscribe(conn *websocket.Conn) error {
	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": m.programs},
			map[string]interface{}{"commitment": "confirmed"},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("发送订阅请求失败: %w", err)
	}
	return nil
}

func (m *Monitor) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				zap.L().Debug("发送ping失败", zap.String("monitor", m.name), zap.Error(err))
				return
			}
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context, data []byte) {
	var notif logsNotification
	if err := json.Unmarshal(data, &notif); err != nil {
		zap.L().Debug("解析推送消息失败", zap.String("monitor", m.name), zap.Error(err))
		return
	}
	if notif.Method != "logsNotification" {
		// 订阅确认等非推送消息
		zap.L().Debug("收到非推送消息", zap.String("monitor", m.name))
		return
	}

	value := notif.Params.Result.Value
	event := &LogsEvent{
		Signature: value.Signature,
		Slot:      notif.Params.Result.Context.Slot,
		Success:   string(value.Err) == "null" || len(value.Err) == 0,
		Logs:      value.Logs,
	}
	m.handler.Handle(ctx, event)
}
