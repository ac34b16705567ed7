package strategy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

// PatternName 连续递增上涨模式的策略名
const PatternName = "连续递增上涨模式"

// ConsecutiveRisingPattern 连续上涨K线形态：
// 最近N根相邻周期的K线全部为阳线，每根实体涨幅不低于阈值，且涨幅逐根递增
type ConsecutiveRisingPattern struct {
	// ConsecutiveCount 连续上涨K线数量
	ConsecutiveCount int
	// RequireIncreasingGains 是否要求递增涨幅
	RequireIncreasingGains bool
	// MinGainThreshold 最小涨幅阈值（百分比）
	MinGainThreshold decimal.Decimal
	// Interval K线周期，用于校验窗口内无缺口
	Interval time.Duration
}

// DefaultPattern 默认形态参数：4根、涨幅递增、每根至少1%
func DefaultPattern(interval time.Duration) ConsecutiveRisingPattern {
	return ConsecutiveRisingPattern{
		ConsecutiveCount:       4,
		RequireIncreasingGains: true,
		MinGainThreshold:       decimal.New(1, 0), // 1%
		Interval:               interval,
	}
}

// Match 检测K线序列是否命中形态，命中时返回告警
func (p ConsecutiveRisingPattern) Match(mint string, klines []types.KLineData) *types.StrategyAlert {
	if len(klines) < p.ConsecutiveCount {
		return nil
	}

	sorted := make([]types.KLineData, len(klines))
	copy(sorted, klines)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	recent := sorted[len(sorted)-p.ConsecutiveCount:]

	// 窗口内K线必须周期连续，中间有无成交的空窗则不算连续上涨
	intervalSecs := int64(p.Interval.Seconds())
	for i := 1; i < len(recent); i++ {
		if recent[i].Timestamp-recent[i-1].Timestamp != intervalSecs {
			return nil
		}
	}

	gains := make([]decimal.Decimal, 0, p.ConsecutiveCount)
	for i := range recent {
		kline := &recent[i]
		if !kline.IsBullish() {
			return nil
		}

		gain := kline.Gain()
		if gain.LessThan(p.MinGainThreshold) {
			return nil
		}
		gains = append(gains, gain)
	}

	if p.RequireIncreasingGains {
		for i := 1; i < len(gains); i++ {
			if gains[i].LessThanOrEqual(gains[i-1]) {
				return nil
			}
		}
	}

	totalGain := decimal.Zero
	sequence := make([]string, 0, len(gains))
	for _, gain := range gains {
		totalGain = totalGain.Add(gain)
		sequence = append(sequence, gain.StringFixed(2)+"%")
	}

	message := fmt.Sprintf("发现连续%d根递增上涨K线！总涨幅: %s%%, 涨幅序列: [%s]",
		p.ConsecutiveCount, totalGain.StringFixed(2), strings.Join(sequence, ", "))

	return &types.StrategyAlert{
		Mint:         mint,
		StrategyName: PatternName,
		Message:      message,
		Timestamp:    time.Now().Unix(),
		Klines:       recent,
	}
}
