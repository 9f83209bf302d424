package session

import (
	"sync"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// DefaultWatchdogTimeout is the tick silence that declares the feed stale.
const DefaultWatchdogTimeout = 60 * time.Second

// Watchdog detects a silent feed. It fires at most once per outage: after
// firing it stays quiet until the next tick is observed.
type Watchdog struct {
	mu       sync.Mutex
	timeout  time.Duration
	lastTick time.Time
	pending  bool
}

// NewWatchdog returns a watchdog with the given timeout (default 60s).
func NewWatchdog(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultWatchdogTimeout
	}
	return &Watchdog{timeout: timeout}
}

// Timeout returns the configured silence limit.
func (w *Watchdog) Timeout() time.Duration { return w.timeout }

// Observe records a tick at now and re-arms the watchdog.
func (w *Watchdog) Observe(now time.Time) {
	w.mu.Lock()
	w.lastTick = now
	w.pending = false
	w.mu.Unlock()
}

// Arm starts the silence clock at now without counting a tick, e.g. right
// after a connect.
func (w *Watchdog) Arm(now time.Time) {
	w.mu.Lock()
	w.lastTick = now
	w.mu.Unlock()
}

// LastTick returns the time of the last observed tick or arm.
func (w *Watchdog) LastTick() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTick
}

// Check reports whether a reconnect should be requested. It is true only in
// CONNECTED, only while phase is watched, only once the silence exceeds the
// timeout, and only once until the next Observe.
func (w *Watchdog) Check(now time.Time, state model.ConnectionState, phase model.SessionPhase) bool {
	if state != model.StateConnected || !phase.Watched() {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending || w.lastTick.IsZero() || now.Sub(w.lastTick) <= w.timeout {
		return false
	}
	w.pending = true
	return true
}
