// Package breaker isolates failing features. After maxFailures consecutive
// failures a breaker opens and rejects calls for a cooldown window, then
// lets one probe through; the probe's outcome closes or reopens it.
package breaker

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker is open.
var ErrOpen = errors.New("breaker: open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // Normal operation, calls pass through
	StateOpen     State = 1 // Tripped, calls rejected until the cooldown ends
	StateHalfOpen State = 2 // One probe call allowed through
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards one feature.
type Breaker struct {
	name        string
	mu          sync.Mutex
	state       State
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool

	now func() time.Time

	// OnStateChange is called on every transition, under the breaker lock (optional).
	OnStateChange func(name string, from, to State)
}

// New creates a closed breaker.
func New(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Name returns the guarded feature's name.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open and admits exactly one probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
	}
	return nil
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		b.failures = 0
		b.probing = false
		return
	}

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.trip()
	case b.state == StateClosed && b.failures >= b.maxFailures:
		b.trip()
	}
}

// Execute runs fn through the breaker. Returns ErrOpen without calling fn
// while the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.probing = false
	b.transition(StateOpen)
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil && from != to {
		b.OnStateChange(b.name, from, to)
	}
}

// Set holds one breaker per feature, created on first use with shared settings.
type Set struct {
	mu          sync.Mutex
	breakers    map[string]*Breaker
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	// OnStateChange is installed on every breaker the set creates (optional).
	OnStateChange func(name string, from, to State)
}

// NewSet creates an empty set.
func NewSet(maxFailures int, cooldown time.Duration) *Set {
	return &Set{
		breakers:    make(map[string]*Breaker),
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// For returns the breaker for feature, creating it if needed.
func (s *Set) For(feature string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[feature]
	if !ok {
		b = New(feature, s.maxFailures, s.cooldown)
		b.now = s.now
		b.OnStateChange = s.OnStateChange
		s.breakers[feature] = b
	}
	return b
}

// States returns every known breaker's state, keyed by feature.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	names := make([]string, 0, len(s.breakers))
	for n := range s.breakers {
		names = append(names, n)
	}
	s.mu.Unlock()
	sort.Strings(names)

	out := make(map[string]State, len(names))
	for _, n := range names {
		out[n] = s.For(n).State()
	}
	return out
}
