// Package ringbuf provides a fixed-capacity sliding window of candles.
// Appends overwrite the oldest entry once the window is full, so the ring
// always holds the most recent history. One writer (the provider stream)
// and any number of readers; Window returns a copy.
package ringbuf

import (
	"sync"

	"perpsignals/internal/model"
)

// Ring is a sliding candle window. Capacity is rounded up to a power of
// two for bitwise index masking.
type Ring struct {
	mu      sync.RWMutex
	buf     []model.Candle
	mask    uint64
	head    uint64 // next write index
	count   int
	evicted uint64
}

// New creates a ring. capacity is rounded up to the next power of two,
// minimum 2.
func New(capacity int) *Ring {
	c := nextPow2(capacity)
	if c < 2 {
		c = 2
	}
	return &Ring{
		buf:  make([]model.Candle, c),
		mask: uint64(c - 1),
	}
}

// Append records a candle, evicting the oldest when the window is full.
func (r *Ring) Append(c model.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.head&r.mask] = c
	r.head++
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.evicted++
	}
}

// ReplaceLast swaps the newest entry in place. Live streams re-send the
// current bar until it closes; the provider replaces rather than appends
// when the open time matches. Returns false on an empty ring.
func (r *Ring) ReplaceLast(c model.Candle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return false
	}
	r.buf[(r.head-1)&r.mask] = c
	return true
}

// Window returns the buffered candles oldest-first. The slice is a copy;
// callers may hold it across evaluations.
func (r *Ring) Window() []model.Candle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Candle, r.count)
	start := r.head - uint64(r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+uint64(i))&r.mask]
	}
	return out
}

// Last returns the newest candle.
func (r *Ring) Last() (model.Candle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == 0 {
		return model.Candle{}, false
	}
	return r.buf[(r.head-1)&r.mask], true
}

// Len returns the number of buffered candles.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Cap returns the window capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Evicted returns the total number of candles overwritten since creation,
// for metrics.
func (r *Ring) Evicted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
