package monitor

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/kline"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

const (
	buyInstructionLog  = "Program log: Instruction: Buy"
	sellInstructionLog = "Program log: Instruction: Sell"
	programDataPrefix  = "Program data: "

	pumpEventMinLen = 129
)

var (
	lamportsPerSol = decimal.NewFromInt(1_000_000_000)
	tokenDivisor   = decimal.NewFromInt(1_000_000)
	totalSupply    = decimal.NewFromInt(1_000_000_000)
)

// pumpTradeEvent bonding curve交易事件（program data二进制布局）
type pumpTradeEvent struct {
	mint                 string
	user                 string
	solAmount            uint64
	tokenAmount          uint64
	timestamp            int64
	virtualSolReserves   uint64
	virtualTokenReserves uint64
	realSolReserves      uint64
	realTokenReserves    uint64
}

// PumpHandler 解析pump.fun bonding curve的交易日志并投递给聚合器
type PumpHandler struct {
	agg    *kline.Aggregator
	dedup  *Deduper
	minSol decimal.Decimal
}

// NewPumpHandler 创建pump.fun处理器
func NewPumpHandler(agg *kline.Aggregator, dedup *Deduper, minSol decimal.Decimal) *PumpHandler {
	return &PumpHandler{agg: agg, dedup: dedup, minSol: minSol}
}

func (h *PumpHandler) Handle(_ context.Context, event *LogsEvent) {
	if !event.Success {
		zap.L().Debug("交易执行失败（err非空），忽略", zap.String("signature", event.Signature))
		return
	}
	if !hasTradeInstruction(event.Logs) {
		return
	}
	if hasFailedInstruction(event.Logs) {
		zap.L().Debug("交易包含失败指令，忽略", zap.String("signature", event.Signature))
		return
	}
	// 同一笔交易可能被重复推送
	if h.dedup.Seen(event.Signature, types.VenuePump) {
		zap.L().Debug("重复推送，忽略", zap.String("signature", event.Signature))
		return
	}

	// 买卖方向由program data之前最近的指令日志决定
	isBuy := false
	for _, logLine := range event.Logs {
		switch {
		case strings.Contains(logLine, buyInstructionLog):
			isBuy = true
		case strings.Contains(logLine, sellInstructionLog):
			isBuy = false
		case strings.HasPrefix(logLine, programDataPrefix):
			raw := strings.TrimPrefix(logLine, programDataPrefix)
			trade, ok := decodePumpEvent(raw)
			if !ok {
				continue
			}
			h.process(event, trade, isBuy)
		}
	}
}

func (h *PumpHandler) process(event *LogsEvent, te *pumpTradeEvent, isBuy bool) {
	solAmount := decimal.NewFromUint64(te.solAmount).Div(lamportsPerSol)
	tokenAmount := decimal.NewFromUint64(te.tokenAmount).Div(tokenDivisor)

	if tokenAmount.IsZero() {
		zap.L().Warn("跳过token数量为零的交易",
			zap.String("signature", event.Signature), zap.String("mint", te.mint))
		return
	}
	price := solAmount.Div(tokenAmount)
	if price.IsZero() {
		zap.L().Warn("跳过价格为零的交易",
			zap.String("signature", event.Signature), zap.String("mint", te.mint))
		return
	}
	// 过滤小额交易，保持K线干净
	if solAmount.LessThan(h.minSol) {
		zap.L().Debug("跳过小额交易",
			zap.String("mint", te.mint), zap.String("sol", solAmount.String()))
		return
	}

	h.agg.Ingest(types.Trade{
		Mint:        te.mint,
		Venue:       types.VenuePump,
		Signature:   event.Signature,
		Slot:        event.Slot,
		Price:       price,
		SolAmount:   solAmount,
		TokenAmount: tokenAmount,
		IsBuy:       isBuy,
		Timestamp:   te.timestamp,
	})

	marketCap := price.Mul(totalSupply)
	zap.L().Info(tradeEmoji(isBuy)+" [PUMP] "+tradeSide(isBuy),
		zap.String("signature", event.Signature),
		zap.String("mint", te.mint),
		zap.String("user", te.user),
		zap.String("sol", solAmount.StringFixed(6)),
		zap.String("tokens", tokenAmount.StringFixed(2)),
		zap.String("price", price.StringFixed(9)),
		zap.String("market_cap", marketCap.StringFixed(2)),
		zap.String("time", time.Unix(te.timestamp, 0).Format("2006-01-02 15:04:05")))
}

// decodePumpEvent 解码bonding curve交易事件：
// 8字节事件标识 + 32字节mint + sol_amount + token_amount + is_buy(1字节，方向以日志为准)
// + 32字节user + timestamp + 4个储备量字段，整数均为小端
func decodePumpEvent(data string) (*pumpTradeEvent, bool) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(decoded) < pumpEventMinLen {
		return nil, false
	}

	pos := 8 // 跳过事件标识
	mint := base58.Encode(decoded[pos : pos+32])
	pos += 32

	solAmount := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8
	tokenAmount := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8

	pos++ // is_buy

	user := base58.Encode(decoded[pos : pos+32])
	pos += 32

	timestamp := int64(binary.LittleEndian.Uint64(decoded[pos:]))
	pos += 8

	virtualSol := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8
	virtualToken := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8
	realSol := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8
	realToken := binary.LittleEndian.Uint64(decoded[pos:])

	return &pumpTradeEvent{
		mint:                 mint,
		user:                 user,
		solAmount:            solAmount,
		tokenAmount:          tokenAmount,
		timestamp:            timestamp,
		virtualSolReserves:   virtualSol,
		virtualTokenReserves: virtualToken,
		realSolReserves:      realSol,
		realTokenReserves:    realToken,
	}, true
}

func hasTradeInstruction(logs []string) bool {
	for _, logLine := range logs {
		if strings.Contains(logLine, buyInstructionLog) || strings.Contains(logLine, sellInstructionLog) {
			return true
		}
	}
	return false
}

func hasFailedInstruction(logs []string) bool {
	for _, logLine := range logs {
		if strings.Contains(logLine, "failed") {
			return true
		}
	}
	return false
}

func tradeEmoji(isBuy bool) string {
	if isBuy {
		return "🟢"
	}
	return "🔴"
}

func tradeSide(isBuy bool) string {
	if isBuy {
		return "Buy"
	}
	return "Sell"
}
