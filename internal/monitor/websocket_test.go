package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconnectDelayGrowsWithJitterWithinBounds(t *testing.T) {
	// 每个档位多抽样几次，抖动是随机的
	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		base := initialReconnectDelay << (attempt - 1)
		if base > maxReconnectDelay {
			base = maxReconnectDelay
		}
		for i := 0; i < 20; i++ {
			delay := reconnectDelay(attempt)
			assert.GreaterOrEqual(t, delay, base, "attempt %d", attempt)
			assert.LessOrEqual(t, delay, base+base/2, "attempt %d", attempt)
		}
	}
}

func TestReconnectDelayCapsOnShiftOverflow(t *testing.T) {
	// 档位大到移位溢出时也不能退化成零或负值
	delay := reconnectDelay(64)
	assert.GreaterOrEqual(t, delay, maxReconnectDelay)
	assert.LessOrEqual(t, delay, maxReconnectDelay+maxReconnectDelay/2)
}
