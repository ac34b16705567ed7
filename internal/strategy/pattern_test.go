package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

func candle(ts int64, open, close string) types.KLineData {
	return types.KLineData{
		Timestamp: ts,
		Open:      open,
		High:      close,
		Low:       open,
		Close:     close,
	}
}

// 4根相邻K线，涨幅约1.0%、2.0%、3.0%、4.0%递增
func risingSeries() []types.KLineData {
	return []types.KLineData{
		candle(60, "1.00", "1.01"),
		candle(120, "1.01", "1.0302"),
		candle(180, "1.0302", "1.0611"),
		candle(240, "1.0611", "1.1035"),
	}
}

func TestPatternMatchConsecutiveRising(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	alert := pattern.Match("mint1", risingSeries())
	require.NotNil(t, alert)
	assert.Equal(t, "mint1", alert.Mint)
	assert.Equal(t, PatternName, alert.StrategyName)
	assert.Len(t, alert.Klines, 4)
	assert.Contains(t, alert.Message, "连续4根")
}

func TestPatternMatchUsesMostRecentWindow(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	// 前面有下跌K线不影响，窗口只看最近4根
	klines := append([]types.KLineData{candle(0, "2", "1")}, risingSeries()...)
	alert := pattern.Match("mint1", klines)
	require.NotNil(t, alert)
	assert.Equal(t, int64(60), alert.Klines[0].Timestamp)
}

func TestPatternRejectsNonIncreasingGains(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	// 全为阳线且涨幅≥1%，但涨幅不递增
	klines := []types.KLineData{
		candle(60, "1.00", "1.04"),
		candle(120, "1.04", "1.0712"),
		candle(180, "1.0712", "1.0926"),
		candle(240, "1.0926", "1.1035"),
	}
	assert.Nil(t, pattern.Match("mint1", klines))
}

func TestPatternRejectsGainBelowThreshold(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	klines := risingSeries()
	klines[0] = candle(60, "1.00", "1.005") // 0.5% < 1%
	assert.Nil(t, pattern.Match("mint1", klines))
}

func TestPatternRejectsBearishCandle(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	klines := risingSeries()
	klines[2] = candle(180, "1.0302", "1.02")
	assert.Nil(t, pattern.Match("mint1", klines))
}

func TestPatternRejectsGapInWindow(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	// 第3根和第4根之间缺一个周期
	klines := risingSeries()
	klines[3].Timestamp = 300
	assert.Nil(t, pattern.Match("mint1", klines))
}

func TestPatternRejectsTooFewKlines(t *testing.T) {
	pattern := DefaultPattern(time.Minute)
	assert.Nil(t, pattern.Match("mint1", risingSeries()[:3]))
}

func TestPatternSortsUnorderedInput(t *testing.T) {
	pattern := DefaultPattern(time.Minute)

	klines := risingSeries()
	klines[0], klines[3] = klines[3], klines[0]
	assert.NotNil(t, pattern.Match("mint1", klines))
}
