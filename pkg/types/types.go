package types

import (
	"github.com/shopspring/decimal"
)

// Venue 交易事件来源
type Venue string

const (
	// VenuePump pump.fun bonding curve
	VenuePump Venue = "PUMP"
	// VenueAmm PumpSwap AMM
	VenueAmm Venue = "AMM"
)

// Trade 归一化后的交易记录（由监控器产出，聚合器消费）
type Trade struct {
	Mint        string          `json:"mint"`
	Venue       Venue           `json:"venue"`
	Signature   string          `json:"signature"`
	Slot        uint64          `json:"slot"`
	Price       decimal.Decimal `json:"price"`
	SolAmount   decimal.Decimal `json:"sol_amount"`
	TokenAmount decimal.Decimal `json:"token_amount"`
	IsBuy       bool            `json:"is_buy"`
	Timestamp   int64           `json:"timestamp"`
}

// KLineData K线数据（价格以字符串存储，保持Decimal精度）
type KLineData struct {
	Timestamp   int64  `json:"timestamp"`    // K线起始时间戳（秒）
	Open        string `json:"open"`         // 开盘价
	High        string `json:"high"`         // 最高价
	Low         string `json:"low"`          // 最低价
	Close       string `json:"close"`        // 收盘价
	VolumeSol   string `json:"volume_sol"`   // 成交量（SOL）
	VolumeToken string `json:"volume_token"` // 成交量（Token）
	NetFlowSol  string `json:"net_flow_sol"` // 净流入（买-卖，SOL）
	TradeCount  int64  `json:"trade_count"`  // 成交笔数
	LastUpdate  int64  `json:"last_update"`  // 最后更新时间戳（秒）
}

// OpenDecimal 解析开盘价
func (k *KLineData) OpenDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(k.Open)
	return d
}

// CloseDecimal 解析收盘价
func (k *KLineData) CloseDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(k.Close)
	return d
}

// HighDecimal 解析最高价
func (k *KLineData) HighDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(k.High)
	return d
}

// LowDecimal 解析最低价
func (k *KLineData) LowDecimal() decimal.Decimal {
	d, _ := decimal.NewFromString(k.Low)
	return d
}

// Gain K线实体涨幅（百分比），开盘价为零时返回零
func (k *KLineData) Gain() decimal.Decimal {
	open := k.OpenDecimal()
	if open.IsZero() {
		return decimal.Zero
	}
	return k.CloseDecimal().Sub(open).Div(open).Mul(decimal.NewFromInt(100))
}

// IsBullish 是否为阳线（收盘价 > 开盘价）
func (k *KLineData) IsBullish() bool {
	return k.CloseDecimal().GreaterThan(k.OpenDecimal())
}

// StrategyAlert 策略告警
type StrategyAlert struct {
	Mint         string      `json:"mint"`
	StrategyName string      `json:"strategy_name"`
	Message      string      `json:"message"`
	Timestamp    int64       `json:"timestamp"`
	Klines       []KLineData `json:"klines"`
}

// MintActivity 活跃mint及其最后活动时间
type MintActivity struct {
	Mint         string `json:"mint"`
	LastActivity int64  `json:"last_activity"`
}
