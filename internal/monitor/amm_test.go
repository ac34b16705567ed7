package monitor

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPoolBytes    = bytes.Repeat([]byte{0x33}, 32)
	testAmmUserBytes = bytes.Repeat([]byte{0x44}, 32)
)

// buildAmmPayload 按链上事件布局构造AMM program data
func buildAmmPayload(timestamp int64, baseAmount, quoteAmount, poolBase, poolQuote, lpFee, protocolFee, creatorFee uint64) string {
	buf := make([]byte, 0, 400)
	buf = append(buf, bytes.Repeat([]byte{0xee}, 8)...) // 事件标识
	buf = binary.LittleEndian.AppendUint64(buf, uint64(timestamp))
	buf = binary.LittleEndian.AppendUint64(buf, baseAmount)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // quote限价字段
	buf = append(buf, make([]byte, 16)...)         // 用户储备
	buf = binary.LittleEndian.AppendUint64(buf, poolBase)
	buf = binary.LittleEndian.AppendUint64(buf, poolQuote)
	buf = binary.LittleEndian.AppendUint64(buf, quoteAmount)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // lpFeeBasisPoints
	buf = binary.LittleEndian.AppendUint64(buf, lpFee)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // protocolFeeBasisPoints
	buf = binary.LittleEndian.AppendUint64(buf, protocolFee)
	buf = append(buf, make([]byte, 16)...) // 中间字段
	buf = append(buf, testPoolBytes...)
	buf = append(buf, testAmmUserBytes...)
	buf = append(buf, make([]byte, 32*5)...)       // 账户字段
	buf = binary.LittleEndian.AppendUint64(buf, 0) // coinCreatorFeeBasisPoints
	buf = binary.LittleEndian.AppendUint64(buf, creatorFee)
	return base64.StdEncoding.EncodeToString(buf)
}

func TestDecodeAmmEventBaseIsToken(t *testing.T) {
	// base储备（token，10^6精度）远大于quote储备（SOL）：
	// base_amount是token数量，quote_amount是SOL数量
	payload := buildAmmPayload(1700000065,
		50_000_000_000,    // baseAmount (token)
		2_000_000_000,     // quoteAmount (SOL)
		1_000_000_000_000, // poolBase
		500_000_000_000,   // poolQuote
		10_000, 20_000, 30_000)

	te, ok := decodeAmmEvent(payload)
	require.True(t, ok)
	assert.Equal(t, base58.Encode(testPoolBytes), te.pool)
	assert.Equal(t, base58.Encode(testAmmUserBytes), te.user)
	assert.Equal(t, uint64(2_000_000_000), te.solAmount)
	assert.Equal(t, uint64(50_000_000_000), te.tokenAmount)
	assert.Equal(t, int64(1700000065), te.timestamp)
	assert.Equal(t, uint64(10_000), te.lpFee)
	assert.Equal(t, uint64(20_000), te.protocolFee)
	assert.Equal(t, uint64(30_000), te.coinCreatorFee)
}

func TestDecodeAmmEventBaseIsSol(t *testing.T) {
	// base储备小于quote储备时，base是SOL、quote是token
	payload := buildAmmPayload(1700000065,
		2_000_000_000,     // baseAmount (SOL)
		50_000_000_000,    // quoteAmount (token)
		500_000_000_000,   // poolBase
		1_000_000_000_000, // poolQuote
		0, 0, 0)

	te, ok := decodeAmmEvent(payload)
	require.True(t, ok)
	assert.Equal(t, uint64(2_000_000_000), te.solAmount)
	assert.Equal(t, uint64(50_000_000_000), te.tokenAmount)
}

func TestDecodeAmmEventRejectsShortPayload(t *testing.T) {
	short := base64.StdEncoding.EncodeToString(make([]byte, 150))
	_, ok := decodeAmmEvent(short)
	assert.False(t, ok)
}
