package timeutils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_DoublesUntilCap(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(2*time.Second, 0, 1))
	assert.Equal(t, 4*time.Second, Backoff(2*time.Second, 0, 2))
	assert.Equal(t, 8*time.Second, Backoff(2*time.Second, 0, 3))
	assert.Equal(t, 5*time.Second, Backoff(2*time.Second, 5*time.Second, 3))
	assert.Equal(t, 2*time.Second, Backoff(2*time.Second, 5*time.Second, 0))
}

func TestFakeClock_SleepAdvancesAndRecords(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)

	require.NoError(t, c.Sleep(context.Background(), 2*time.Second))
	require.NoError(t, c.Sleep(context.Background(), 4*time.Second))

	assert.Equal(t, start.Add(6*time.Second), c.Now())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, c.Sleeps())
}

func TestFakeClock_SleepHonoursCancelledContext(t *testing.T) {
	c := NewFakeClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	assert.Empty(t, c.Sleeps())
}

func TestSystemClock_ZeroSleepReturnsImmediately(t *testing.T) {
	start := time.Now()
	require.NoError(t, SystemClock().Sleep(context.Background(), 0))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
