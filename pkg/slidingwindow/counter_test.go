package slidingwindow_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-connectivity/pkg/slidingwindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_SoundnessAtFixedInstant(t *testing.T) {
	c := slidingwindow.New([]time.Duration{time.Minute}, 60)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		c.IncrementAt(base.Add(time.Duration(i)*time.Second), true)
	}
	for i := 0; i < 3; i++ {
		c.IncrementAt(base.Add(time.Duration(i)*time.Second), false)
	}

	readAt := base.Add(50 * time.Second)
	success, failure, windowStart, ok := c.CountsAt(readAt, time.Minute)
	require.True(t, ok)
	assert.Equal(t, int64(10), success)
	assert.Equal(t, int64(3), failure)
	assert.Equal(t, readAt.Add(-time.Minute), windowStart)
}

func TestCounter_OldBucketsAreEvictedOnRead(t *testing.T) {
	c := slidingwindow.New([]time.Duration{time.Minute}, 60)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.IncrementAt(base, true)

	// Reading two minutes later: the one-minute window should no longer
	// contain the increment made at base.
	readAt := base.Add(2 * time.Minute)
	success, failure, _, ok := c.CountsAt(readAt, time.Minute)
	require.True(t, ok)
	assert.Equal(t, int64(0), success)
	assert.Equal(t, int64(0), failure)
}

func TestCounter_LongIdleThenIncrementStillReportsCorrectly(t *testing.T) {
	c := slidingwindow.New([]time.Duration{time.Minute}, 60)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	c.IncrementAt(base, true)

	// Long idle period, well beyond the window: the stale bucket from
	// the increment at `base` must not leak into a fresh read once the
	// ring has wrapped all the way around and back to that bucket.
	idleUntil := base.Add(24 * time.Hour)
	c.IncrementAt(idleUntil, true)

	success, _, _, ok := c.CountsAt(idleUntil, time.Minute)
	require.True(t, ok)
	assert.Equal(t, int64(1), success)
}

func TestCounter_UnconfiguredWindowIsNotOK(t *testing.T) {
	c := slidingwindow.New([]time.Duration{time.Minute}, 60)
	_, _, _, ok := c.CountsAt(time.Now(), time.Hour)
	assert.False(t, ok)
}

func TestCounter_DefaultWindows(t *testing.T) {
	c := slidingwindow.New(nil, 0)
	ms := c.Measurements()
	require.Len(t, ms, 3)
	assert.Equal(t, time.Minute, ms[0].Window)
	assert.Equal(t, time.Hour, ms[1].Window)
	assert.Equal(t, 24*time.Hour, ms[2].Window)
}

func TestCounter_IncrementNowSmokeTest(t *testing.T) {
	c := slidingwindow.New([]time.Duration{time.Minute}, 60)
	c.Increment(true)
	success, _, _, ok := c.Counts(time.Minute)
	require.True(t, ok)
	assert.Equal(t, int64(1), success)
}
