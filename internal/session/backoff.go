package session

import "time"

// Backoff yields exponentially growing delays: base, 2×base, ... capped at max.
// Not safe for concurrent use; the Supervisor loop owns it.
type Backoff struct {
	base, max time.Duration
	next      time.Duration
}

// NewBackoff returns a backoff starting at base (default 1s) and capped at
// max (default 60s).
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = 60 * time.Second
		if max < base {
			max = base
		}
	}
	return &Backoff{base: base, max: max, next: base}
}

// Next returns the delay to wait now and advances the sequence.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Peek returns the delay Next would return.
func (b *Backoff) Peek() time.Duration { return b.next }

// Reset restarts the sequence at base.
func (b *Backoff) Reset() { b.next = b.base }
