package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// clockAt returns a clock that starts at base and advances in real time.
func clockAt(base time.Time) func() time.Time {
	start := time.Now()
	return func() time.Time { return base.Add(time.Since(start)) }
}

var liveMorning = time.Date(2026, 3, 10, 10, 0, 0, 0, markethours.IST)

type fakeAuth struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int) (Credentials, error)
}

func (a *fakeAuth) Login(ctx context.Context) (Credentials, error) {
	n := int(a.calls.Add(1))
	if a.fn == nil {
		return Credentials{AuthToken: "jwt", FeedToken: "feed"}, nil
	}
	return a.fn(ctx, n)
}

type fakeFeed struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int, out chan<- model.Quote) error
}

func (f *fakeFeed) Stream(ctx context.Context, _ Credentials, out chan<- model.Quote) error {
	return f.fn(ctx, int(f.calls.Add(1)), out)
}

type fakePoller struct{ calls atomic.Int32 }

func (p *fakePoller) Poll(context.Context) ([]model.Quote, error) {
	p.calls.Add(1)
	return []model.Quote{{Token: "26000", Exchange: "NSE", LTP: 100}}, nil
}

// tickThenSilence sends one quote and then blocks until cancelled.
func tickThenSilence(ctx context.Context, _ int, out chan<- model.Quote) error {
	select {
	case out <- model.Quote{Token: "26000", Exchange: "NSE", LTP: 100, Source: "stream"}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

type eventLog struct {
	mu  sync.Mutex
	trs []Transition
}

func (l *eventLog) record(tr Transition) {
	l.mu.Lock()
	l.trs = append(l.trs, tr)
	l.mu.Unlock()
}

func (l *eventLog) count(ev Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, tr := range l.trs {
		if tr.Event == ev {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func start(t *testing.T, s *Supervisor) (chan model.Quote, func()) {
	t.Helper()
	out := make(chan model.Quote, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, out)
	}()
	return out, func() {
		cancel()
		<-done
	}
}

func TestWatchdogSchedulesExactlyOneReconnect(t *testing.T) {
	feed := &fakeFeed{fn: tickThenSilence}
	s := NewSupervisor(Config{
		BaseBackoff:     300 * time.Millisecond,
		WatchdogTimeout: 60 * time.Millisecond,
		CheckInterval:   5 * time.Millisecond,
		Now:             clockAt(liveMorning),
	}, &fakeAuth{}, feed, nil)

	var log eventLog
	s.OnTransition = log.record
	var scheduled []time.Duration
	var mu sync.Mutex
	s.OnReconnectScheduled = func(d time.Duration, cause Event) {
		mu.Lock()
		scheduled = append(scheduled, d)
		mu.Unlock()
	}

	out, stop := start(t, s)
	<-out
	waitFor(t, "watchdog", func() bool { return log.count(EventWatchdogTimeout) == 1 })

	// Inside the first backoff window: one reconnect scheduled, no new connect.
	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	if len(scheduled) != 1 || scheduled[0] != 300*time.Millisecond {
		t.Errorf("scheduled = %v, want one reconnect after 300ms", scheduled)
	}
	mu.Unlock()
	if n := feed.calls.Load(); n != 1 {
		t.Errorf("stream attempts = %d inside the backoff window, want 1", n)
	}
	if n := log.count(EventWatchdogTimeout); n != 1 {
		t.Errorf("watchdog fired %d times", n)
	}

	waitFor(t, "reconnect", func() bool { return feed.calls.Load() == 2 })
	stop()
	if s.State() != model.StateDisconnected {
		t.Errorf("state after shutdown = %s", s.State())
	}
}

func TestAuthFailuresDegradeUntilRefresh(t *testing.T) {
	auth := &fakeAuth{fn: func(_ context.Context, call int) (Credentials, error) {
		if call <= 3 {
			return Credentials{}, Credential("login", errors.New("invalid totp"))
		}
		return Credentials{AuthToken: "jwt"}, nil
	}}
	feed := &fakeFeed{fn: tickThenSilence}
	poller := &fakePoller{}
	s := NewSupervisor(Config{
		BaseBackoff:  time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		Now:          clockAt(liveMorning),
	}, auth, feed, poller)

	out, stop := start(t, s)
	defer stop()

	waitFor(t, "degraded", func() bool { return s.State() == model.StateDegradedPolling })
	waitFor(t, "polling", func() bool { return poller.calls.Load() >= 2 })
	if n := auth.calls.Load(); n != 3 {
		t.Fatalf("login attempts = %d, want 3", n)
	}
	if q := <-out; q.Source != "poll" {
		t.Errorf("degraded quote source = %q", q.Source)
	}
	st := s.Status()
	if !st.Degraded || st.AuthFailures != 3 || st.Phase != model.PhaseLive {
		t.Errorf("status = %+v", st)
	}

	// Still no login attempts while degraded.
	time.Sleep(20 * time.Millisecond)
	if n := auth.calls.Load(); n != 3 {
		t.Fatalf("login attempts while degraded = %d", n)
	}

	s.RefreshCredentials()
	waitFor(t, "connected", func() bool { return s.State() == model.StateConnected })
	if n := auth.calls.Load(); n != 4 {
		t.Errorf("login attempts after refresh = %d, want 4", n)
	}
}

func TestRefreshAbandonsInFlightLogin(t *testing.T) {
	firstCancelled := make(chan struct{})
	auth := &fakeAuth{fn: func(ctx context.Context, call int) (Credentials, error) {
		if call == 1 {
			<-ctx.Done()
			close(firstCancelled)
			return Credentials{}, Network("login", ctx.Err())
		}
		return Credentials{AuthToken: "jwt"}, nil
	}}
	feed := &fakeFeed{fn: tickThenSilence}
	s := NewSupervisor(Config{
		BaseBackoff: time.Hour,
		Now:         clockAt(liveMorning),
	}, auth, feed, nil)
	var log eventLog
	s.OnTransition = log.record

	_, stop := start(t, s)
	defer stop()

	waitFor(t, "first login", func() bool { return auth.calls.Load() == 1 })
	s.RefreshCredentials()

	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight login was not cancelled")
	}
	// The hour-long backoff is bypassed.
	waitFor(t, "connected", func() bool { return s.State() == model.StateConnected })
	if log.count(EventNetworkFailure) != 0 {
		t.Error("an abandoned attempt must not count as a failure")
	}
	if log.count(EventCredentialRefresh) != 1 {
		t.Errorf("credential refresh events = %d", log.count(EventCredentialRefresh))
	}
}

func TestRefreshQueuedBeforeAttemptCancelled(t *testing.T) {
	var s *Supervisor
	queuedAtCancel := make(chan int, 1)
	auth := &fakeAuth{fn: func(ctx context.Context, call int) (Credentials, error) {
		if call == 1 {
			<-ctx.Done()
			queuedAtCancel <- len(s.refreshCh)
			return Credentials{}, ctx.Err()
		}
		return Credentials{AuthToken: "jwt"}, nil
	}}
	s = NewSupervisor(Config{
		BaseBackoff: time.Hour,
		Now:         clockAt(liveMorning),
	}, auth, &fakeFeed{fn: tickThenSilence}, nil)
	var log eventLog
	s.OnTransition = log.record

	_, stop := start(t, s)
	defer stop()

	waitFor(t, "first login", func() bool { return auth.calls.Load() == 1 })
	s.RefreshCredentials()

	select {
	case n := <-queuedAtCancel:
		if n != 1 {
			t.Fatalf("refresh not queued when the attempt was cancelled (%d pending)", n)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight login was not cancelled")
	}
	waitFor(t, "connected", func() bool { return s.State() == model.StateConnected })
	if got := log.count(EventCredentialRefresh); got != 1 {
		t.Errorf("credential refresh events = %d, want 1", got)
	}
	if len(s.refreshCh) != 0 {
		t.Error("refresh left pending for a later wait")
	}
}

func TestNetworkFailureBacksOff(t *testing.T) {
	feed := &fakeFeed{fn: func(ctx context.Context, call int, out chan<- model.Quote) error {
		return Network("stream", errors.New("connection reset"))
	}}
	s := NewSupervisor(Config{
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  40 * time.Millisecond,
		Now:         clockAt(liveMorning),
	}, &fakeAuth{}, feed, nil)

	var mu sync.Mutex
	var delays []time.Duration
	s.OnReconnectScheduled = func(d time.Duration, cause Event) {
		mu.Lock()
		defer mu.Unlock()
		if cause == EventNetworkFailure {
			delays = append(delays, d)
		}
	}

	_, stop := start(t, s)
	waitFor(t, "four failures", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delays) >= 4
	})
	stop()

	mu.Lock()
	defer mu.Unlock()
	want := []time.Duration{10, 20, 40, 40}
	for i, w := range want {
		if delays[i] != w*time.Millisecond {
			t.Errorf("delay %d = %s, want %s", i, delays[i], w*time.Millisecond)
		}
	}
}

func TestClosedPhaseDisconnects(t *testing.T) {
	// Just before the close.
	base := time.Date(2026, 3, 10, 15, 29, 59, 900_000_000, markethours.IST)
	feed := &fakeFeed{fn: tickThenSilence}
	poller := &fakePoller{}
	s := NewSupervisor(Config{
		CheckInterval: 5 * time.Millisecond,
		ClosedRefresh: time.Hour,
		Now:           clockAt(base),
	}, &fakeAuth{}, feed, poller)
	var log eventLog
	s.OnTransition = log.record

	_, stop := start(t, s)
	defer stop()

	waitFor(t, "phase close", func() bool { return log.count(EventPhaseClosed) >= 1 })
	waitFor(t, "disconnected", func() bool { return s.State() == model.StateDisconnected })
	// One low-frequency snapshot refresh on entering CLOSED.
	waitFor(t, "closed refresh", func() bool { return poller.calls.Load() == 1 })
	if feed.calls.Load() != 1 {
		t.Errorf("stream attempts = %d, want 1", feed.calls.Load())
	}
}
