package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimWatermark_CooldownWindow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := "rule:stale-pending:order:ord-1"

	ok, err := s.ClaimWatermark(ctx, key, testNow, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "first claim fires")

	ok, err = s.ClaimWatermark(ctx, key, testNow.Add(30*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "inside cooldown")

	ok, err = s.ClaimWatermark(ctx, key, testNow.Add(61*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "cooldown elapsed")

	ok, err = s.ClaimWatermark(ctx, key, testNow.Add(90*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "window restarts at the last alert")
}

func TestClaimWatermark_KeysAreIndependent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok, err := s.ClaimWatermark(ctx, "a", testNow, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ClaimWatermark(ctx, "b", testNow, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimWatermark_ConcurrentClaimsFireOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, err := s.ClaimWatermark(ctx, "k", testNow, time.Hour)
			if err == nil && ok {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fired)
}
