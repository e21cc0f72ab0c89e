// internal/telemetry/buffer.go
package telemetry

import (
	"sync"
	"time"
)

// RetentionWindow bounds how long a reading survives in the buffer.
const RetentionWindow = 30 * time.Minute

// Buffer is the insertion-ordered retention buffer. Eviction runs on
// every append so no surviving entry is older than the window, except
// entries without a usable timestamp, which are retained.
//
// External reads are snapshot copies; the backing slice never escapes.
type Buffer struct {
	mu      sync.Mutex
	entries []Reading
	window  time.Duration
	now     func() time.Time
}

func NewBuffer() *Buffer {
	return &Buffer{
		window: RetentionWindow,
		now:    time.Now,
	}
}

// Append adds one reading and evicts entries that fell out the window.
func (b *Buffer) Append(r Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, r)
	b.evict()
}

// Preload seeds the buffer, typically from the local history log after
// a restart, then applies the window once.
func (b *Buffer) Preload(rs []Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, rs...)
	b.evict()
}

// evict pops stale entries off the front. Insertion order normally
// matches time order, so the scan stops at the first timestamped
// survivor; a zero timestamp (unparsable at load time) always
// survives and is skipped over so it cannot shield stale entries
// behind it. Out-of-order stragglers behind a survivor are tolerated
// rather than hunted down.
func (b *Buffer) evict() {
	bound := b.now().Add(-b.window)

	i := 0
	var unstamped []Reading
	for i < len(b.entries) {
		e := b.entries[i]
		if e.CapturedAt.IsZero() {
			unstamped = append(unstamped, e)
			i++
			continue
		}
		if !e.CapturedAt.Before(bound) {
			break
		}
		i++
	}

	if i == 0 {
		return
	}
	if unstamped == nil {
		b.entries = b.entries[i:]
		return
	}
	b.entries = append(unstamped, b.entries[i:]...)
}

// Snapshot returns a copy of the current contents.
func (b *Buffer) Snapshot() []Reading {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Reading, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
