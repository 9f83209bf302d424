// Package ringbuf provides a fixed-capacity FIFO of closed candles. When full,
// a push evicts the oldest entry. A Ring is owned by a single goroutine (the
// ingestion task) and is not safe for concurrent use.
package ringbuf

import "github.com/hchalla2021/mytradingSignal-sub000/internal/model"

// DefaultCapacity is the per-symbol candle history kept in memory.
const DefaultCapacity = 100

// Ring is a bounded candle history, oldest first.
type Ring struct {
	buf   []model.Candle
	head  int // index of the oldest entry
	count int

	evicted uint64
}

// New creates a ring holding at most capacity candles. Minimum capacity is 1.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]model.Candle, capacity)}
}

// Push appends a candle. Returns true if the oldest candle was evicted to
// make room.
func (r *Ring) Push(c model.Candle) bool {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = c
		r.count++
		return false
	}
	r.buf[r.head] = c
	r.head = (r.head + 1) % len(r.buf)
	r.evicted++
	return true
}

// At returns the i-th candle, 0 being the oldest.
func (r *Ring) At(i int) model.Candle {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Last returns the newest candle.
func (r *Ring) Last() (model.Candle, bool) {
	if r.count == 0 {
		return model.Candle{}, false
	}
	return r.At(r.count - 1), true
}

// Candles returns a copy of the history, oldest first.
func (r *Ring) Candles() []model.Candle {
	out := make([]model.Candle, r.count)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Closes returns the close series, oldest first.
func (r *Ring) Closes() []float64 {
	out := make([]float64, r.count)
	for i := range out {
		out[i] = r.At(i).Close
	}
	return out
}

// Len returns the current number of candles.
func (r *Ring) Len() int { return r.count }

// Cap returns the configured capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Evicted returns how many candles were pushed out by overflow.
func (r *Ring) Evicted() uint64 { return r.evicted }
