package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGateAdmitsOncePerCooldown(t *testing.T) {
	gate := NewMemoryGate(10 * time.Minute)
	ctx := context.Background()

	admitted, err := gate.Admit(ctx, "mint1")
	require.NoError(t, err)
	assert.True(t, admitted)

	admitted, err = gate.Admit(ctx, "mint1")
	require.NoError(t, err)
	assert.False(t, admitted)

	// 不同mint互不影响
	admitted, err = gate.Admit(ctx, "mint2")
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestMemoryGateAdmitsAfterCooldownExpires(t *testing.T) {
	gate := NewMemoryGate(10 * time.Minute)
	ctx := context.Background()

	now := time.Now()
	gate.now = func() time.Time { return now }

	admitted, err := gate.Admit(ctx, "mint1")
	require.NoError(t, err)
	require.True(t, admitted)

	gate.now = func() time.Time { return now.Add(11 * time.Minute) }
	admitted, err = gate.Admit(ctx, "mint1")
	require.NoError(t, err)
	assert.True(t, admitted)
}

func TestMemoryGatePrunesExpiredEntries(t *testing.T) {
	gate := NewMemoryGate(10 * time.Minute)
	ctx := context.Background()

	now := time.Now()
	gate.now = func() time.Time { return now }

	for _, mint := range []string{"mint1", "mint2", "mint3"} {
		admitted, err := gate.Admit(ctx, mint)
		require.NoError(t, err)
		require.True(t, admitted)
	}
	assert.Len(t, gate.until, 3)

	// 冷却全部过期后，下一次Admit顺手清掉旧记录，内存不随mint数量无限增长
	gate.now = func() time.Time { return now.Add(11 * time.Minute) }
	admitted, err := gate.Admit(ctx, "mint4")
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Len(t, gate.until, 1)
}
