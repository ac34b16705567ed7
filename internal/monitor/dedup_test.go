package monitor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wisarmy/pump-kmonitor/pkg/types"
)

func TestDeduperSeenOncePerVenue(t *testing.T) {
	d := NewDeduper()

	assert.False(t, d.Seen("sig1", types.VenuePump))
	assert.True(t, d.Seen("sig1", types.VenuePump))

	// 同一签名不同来源视为不同事件
	assert.False(t, d.Seen("sig1", types.VenueAmm))
	assert.True(t, d.Seen("sig1", types.VenueAmm))
}

func TestDeduperWindowIsBounded(t *testing.T) {
	d := NewDeduper()

	for i := 0; i < dedupWindowSize+1; i++ {
		d.Seen(fmt.Sprintf("sig%d", i), types.VenuePump)
	}

	// 最旧的条目被淘汰后重新视为未见过
	assert.False(t, d.Seen("sig0", types.VenuePump))
	assert.Len(t, d.seen, dedupWindowSize)
}
