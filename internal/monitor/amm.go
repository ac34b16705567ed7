package monitor

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wisarmy/pump-kmonitor/internal/kline"
	"github.com/wisarmy/pump-kmonitor/internal/rpcpool"
	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

const (
	ammEventMinLen = 200
	poolCacheTTL   = time.Hour
	poolKeyPrefix  = "pool:"
)

// ammTradeEvent PumpSwap AMM交易事件（program data二进制布局）
type ammTradeEvent struct {
	pool              string
	user              string
	solAmount         uint64
	tokenAmount       uint64
	timestamp         int64
	poolBaseReserves  uint64
	poolQuoteReserves uint64
	lpFee             uint64
	protocolFee       uint64
	coinCreatorFee    uint64
}

// PoolResolver 把AMM池地址解析为配对的token mint，结果在Redis缓存1小时
type PoolResolver struct {
	rpc   *rpcpool.Pool
	cache *redis.Client // 可为nil（降级为每次请求RPC）
}

// NewPoolResolver 创建池解析器
func NewPoolResolver(rpc *rpcpool.Pool, cache *redis.Client) *PoolResolver {
	return &PoolResolver{rpc: rpc, cache: cache}
}

// Resolve 返回池中与WSOL配对的token mint
func (r *PoolResolver) Resolve(ctx context.Context, pool string) (string, error) {
	baseMint, quoteMint, err := r.poolMints(ctx, pool)
	if err != nil {
		return "", err
	}

	switch {
	case baseMint == WSOLMint:
		return quoteMint, nil
	case quoteMint == WSOLMint:
		return baseMint, nil
	default:
		return "", fmt.Errorf("池未与WSOL配对: %s", pool)
	}
}

func (r *PoolResolver) poolMints(ctx context.Context, pool string) (string, string, error) {
	cacheKey := poolKeyPrefix + pool

	if r.cache != nil {
		if cached, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
			parts := strings.Split(cached, ",")
			if len(parts) == 2 {
				return parts[0], parts[1], nil
			}
		}
	}

	data, err := r.rpc.GetAccountData(ctx, pool)
	if err != nil {
		return "", "", fmt.Errorf("获取池账户失败: %w", err)
	}
	if len(data) < ammEventMinLen {
		return "", "", fmt.Errorf("池账户数据过短: %d字节", len(data))
	}

	// 跳过discriminator(8) + 头部字段(35)，之后依次是base和quote的mint
	pos := 8 + 35
	baseMint := base58.Encode(data[pos : pos+32])
	pos += 32
	quoteMint := base58.Encode(data[pos : pos+32])

	if r.cache != nil {
		if err := r.cache.Set(ctx, cacheKey, baseMint+","+quoteMint, poolCacheTTL).Err(); err != nil {
			zap.L().Warn("缓存池信息失败", zap.String("pool", pool), zap.Error(err))
		}
	}
	return baseMint, quoteMint, nil
}

// AmmHandler 解析PumpSwap AMM的交易日志并投递给聚合器
type AmmHandler struct {
	agg      *kline.Aggregator
	dedup    *Deduper
	resolver *PoolResolver
	minSol   decimal.Decimal
}

// NewAmmHandler 创建AMM处理器
func NewAmmHandler(agg *kline.Aggregator, dedup *Deduper, resolver *PoolResolver, minSol decimal.Decimal) *AmmHandler {
	return &AmmHandler{agg: agg, dedup: dedup, resolver: resolver, minSol: minSol}
}

func (h *AmmHandler) Handle(ctx context.Context, event *LogsEvent) {
	if !event.Success {
		zap.L().Debug("交易执行失败（err非空），忽略", zap.String("signature", event.Signature))
		return
	}
	if !h.hasAmmInvoke(event.Logs) || !hasTradeInstruction(event.Logs) {
		return
	}
	if hasFailedInstruction(event.Logs) {
		zap.L().Debug("AMM交易包含失败指令，忽略", zap.String("signature", event.Signature))
		return
	}
	if h.dedup.Seen(event.Signature, types.VenueAmm) {
		zap.L().Debug("重复推送，忽略", zap.String("signature", event.Signature))
		return
	}

	isBuy, ok := h.direction(event.Logs)
	if !ok {
		return
	}

	for _, logLine := range event.Logs {
		if !strings.HasPrefix(logLine, programDataPrefix) {
			continue
		}
		trade, decoded := decodeAmmEvent(strings.TrimPrefix(logLine, programDataPrefix))
		if !decoded {
			continue
		}
		h.process(ctx, event, trade, isBuy)
		return
	}
}

func (h *AmmHandler) hasAmmInvoke(logs []string) bool {
	needle := "Program " + PumpAmmProgram + " invoke"
	for _, logLine := range logs {
		if strings.Contains(logLine, needle) {
			return true
		}
	}
	return false
}

func (h *AmmHandler) direction(logs []string) (bool, bool) {
	for _, logLine := range logs {
		if strings.Contains(logLine, buyInstructionLog) {
			return true, true
		}
		if strings.Contains(logLine, sellInstructionLog) {
			return false, true
		}
	}
	return false, false
}

func (h *AmmHandler) process(ctx context.Context, event *LogsEvent, te *ammTradeEvent, isBuy bool) {
	solAmount := decimal.NewFromUint64(te.solAmount).Div(lamportsPerSol)
	tokenAmount := decimal.NewFromUint64(te.tokenAmount).Div(tokenDivisor)

	if tokenAmount.IsZero() {
		zap.L().Warn("跳过token数量为零的AMM交易",
			zap.String("signature", event.Signature), zap.String("pool", te.pool))
		return
	}
	price := solAmount.Div(tokenAmount)
	if price.IsZero() {
		zap.L().Warn("跳过价格为零的AMM交易",
			zap.String("signature", event.Signature), zap.String("pool", te.pool))
		return
	}
	if solAmount.LessThan(h.minSol) {
		zap.L().Debug("跳过小额AMM交易",
			zap.String("pool", te.pool), zap.String("sol", solAmount.String()))
		return
	}

	// K线按token mint归集，需要把池地址解析成mint
	mint, err := h.resolver.Resolve(ctx, te.pool)
	if err != nil {
		zap.L().Warn("解析池mint失败", zap.String("pool", te.pool), zap.Error(err))
		return
	}

	h.agg.Ingest(types.Trade{
		Mint:        mint,
		Venue:       types.VenueAmm,
		Signature:   event.Signature,
		Slot:        event.Slot,
		Price:       price,
		SolAmount:   solAmount,
		TokenAmount: tokenAmount,
		IsBuy:       isBuy,
		Timestamp:   te.timestamp,
	})

	zap.L().Info(tradeEmoji(isBuy)+" [AMM] "+tradeSide(isBuy),
		zap.String("signature", event.Signature),
		zap.String("pool", te.pool),
		zap.String("mint", mint),
		zap.String("user", te.user),
		zap.String("sol", solAmount.StringFixed(6)),
		zap.String("tokens", tokenAmount.StringFixed(2)),
		zap.String("price", price.StringFixed(9)),
		zap.String("lp_fee", decimal.NewFromUint64(te.lpFee).Div(lamportsPerSol).StringFixed(6)),
		zap.String("protocol_fee", decimal.NewFromUint64(te.protocolFee).Div(lamportsPerSol).StringFixed(6)),
		zap.String("time", time.Unix(te.timestamp, 0).Format("2006-01-02 15:04:05")))
}

// decodeAmmEvent 解码AMM交易事件。base/quote哪边是SOL由储备量大小判断：
// token储备（10^6精度）数值远大于SOL储备（10^9精度但数量少）
func decodeAmmEvent(data string) (*ammTradeEvent, bool) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(decoded) < ammEventMinLen {
		return nil, false
	}

	pos := 8 // 跳过事件标识

	timestamp := int64(binary.LittleEndian.Uint64(decoded[pos:]))
	pos += 8

	// baseAmountOut（买）或baseAmountIn（卖）
	baseAmount := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8

	pos += 8  // maxQuoteAmountIn / minQuoteAmountOut
	pos += 16 // userBaseTokenReserves + userQuoteTokenReserves

	poolBaseReserves := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8
	poolQuoteReserves := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8

	// quoteAmountIn（买）或quoteAmountOut（卖）
	quoteAmount := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8

	var solAmount, tokenAmount uint64
	if poolBaseReserves > poolQuoteReserves {
		solAmount, tokenAmount = quoteAmount, baseAmount
	} else {
		solAmount, tokenAmount = baseAmount, quoteAmount
	}

	pos += 8 // lpFeeBasisPoints
	lpFee := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8

	pos += 8 // protocolFeeBasisPoints
	protocolFee := binary.LittleEndian.Uint64(decoded[pos:])
	pos += 8

	pos += 16 // 中间字段

	pool := base58.Encode(decoded[pos : pos+32])
	pos += 32
	user := base58.Encode(decoded[pos : pos+32])
	pos += 32

	// userBaseTokenAccount + userQuoteTokenAccount + protocolFeeRecipient
	// + protocolFeeRecipientTokenAccount + coinCreator
	pos += 32 * 5
	pos += 8 // coinCreatorFeeBasisPoints

	var coinCreatorFee uint64
	if pos+8 <= len(decoded) {
		coinCreatorFee = binary.LittleEndian.Uint64(decoded[pos:])
	}

	return &ammTradeEvent{
		pool:              pool,
		user:              user,
		solAmount:         solAmount,
		tokenAmount:       tokenAmount,
		timestamp:         timestamp,
		poolBaseReserves:  poolBaseReserves,
		poolQuoteReserves: poolQuoteReserves,
		lpFee:             lpFee,
		protocolFee:       protocolFee,
		coinCreatorFee:    coinCreatorFee,
	}, true
}
