// internal/telemetry/buffer_test.go
package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuffer(now time.Time) *Buffer {
	b := NewBuffer()
	b.now = func() time.Time { return now }
	return b
}

func reading(at time.Time, dev string) Reading {
	return Reading{CapturedAt: at, DeviceID: dev, Unit: "A"}
}

func TestBuffer_EvictsBeyondWindow(t *testing.T) {
	now := time.Now()
	b := testBuffer(now)

	b.Append(reading(now.Add(-45*time.Minute), "old"))
	b.Append(reading(now.Add(-10*time.Minute), "mid"))
	b.Append(reading(now, "new"))

	got := b.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "mid", got[0].DeviceID)
	assert.Equal(t, "new", got[1].DeviceID)

	for _, r := range got {
		assert.LessOrEqual(t, now.Sub(r.CapturedAt), RetentionWindow)
	}
}

func TestBuffer_ZeroTimestampRetained(t *testing.T) {
	now := time.Now()
	b := testBuffer(now)

	b.Append(Reading{DeviceID: "unparsable"}) // zero CapturedAt
	b.Append(reading(now, "new"))

	got := b.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "unparsable", got[0].DeviceID)
}

func TestBuffer_ZeroTimestampDoesNotShieldStaleEntries(t *testing.T) {
	now := time.Now()
	b := testBuffer(now)

	// A malformed history row loads with a zero timestamp at the
	// front; eviction must reach past it to the stale entry behind.
	b.Preload([]Reading{
		{DeviceID: "unparsable"},
		reading(now.Add(-2*time.Hour), "stale"),
	})
	b.Append(reading(now, "fresh"))

	got := b.Snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "unparsable", got[0].DeviceID)
	assert.Equal(t, "fresh", got[1].DeviceID)
}

func TestBuffer_OutOfOrderTolerated(t *testing.T) {
	now := time.Now()
	b := testBuffer(now)

	// A stale entry hiding behind a fresh one is not evicted; the
	// pop-from-front scan stops at the first survivor.
	b.Append(reading(now, "fresh"))
	b.Append(reading(now.Add(-2*time.Hour), "straggler"))
	b.Append(reading(now, "fresh2"))

	assert.Equal(t, 3, b.Len())
}

func TestBuffer_SnapshotIsACopy(t *testing.T) {
	now := time.Now()
	b := testBuffer(now)
	b.Append(reading(now, "a"))

	snap := b.Snapshot()
	snap[0].DeviceID = "mutated"

	assert.Equal(t, "a", b.Snapshot()[0].DeviceID)
}

func TestBuffer_PreloadAppliesWindow(t *testing.T) {
	now := time.Now()
	b := testBuffer(now)

	b.Preload([]Reading{
		reading(now.Add(-31*time.Minute), "stale"),
		reading(now.Add(-5*time.Minute), "keep"),
	})

	got := b.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].DeviceID)
}

func TestBuffer_Clear(t *testing.T) {
	b := testBuffer(time.Now())
	b.Append(reading(time.Now(), "a"))
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Snapshot())
}
