package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Credentials are the tokens of one successful login.
type Credentials struct {
	AuthToken    string
	FeedToken    string
	RefreshToken string
	IssuedAt     time.Time
}

// Authenticator performs a fresh login. Every call must generate a new
// credential (for SmartAPI: a new TOTP); a rejected one is never reused.
// Rejections are returned as *CredentialError.
type Authenticator interface {
	Login(ctx context.Context) (Credentials, error)
}

// Feed is the upstream streaming subscription. Stream blocks until ctx is
// cancelled or the connection fails, and must select on ctx when sending.
type Feed interface {
	Stream(ctx context.Context, creds Credentials, out chan<- model.Quote) error
}

// Poller fetches the subscribed fields by request/response. Used while
// degraded and for the low-frequency refresh outside market hours.
type Poller interface {
	Poll(ctx context.Context) ([]model.Quote, error)
}

// Config tunes the Supervisor. Zero values take the defaults noted.
type Config struct {
	AuthFailureLimit int           // 3
	BaseBackoff      time.Duration // 1s
	MaxBackoff       time.Duration // 60s
	WatchdogTimeout  time.Duration // 60s
	CheckInterval    time.Duration // 1s, watchdog and phase check period
	PollInterval     time.Duration // 5s, degraded polling
	ClosedRefresh    time.Duration // 5m, snapshot refresh while CLOSED
	QueueSize        int           // 1024, internal stream buffer
	Calendar         *markethours.Calendar
	Now              func() time.Time
}

func (c *Config) defaults() {
	if c.AuthFailureLimit <= 0 {
		c.AuthFailureLimit = DefaultAuthFailureLimit
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.WatchdogTimeout <= 0 {
		c.WatchdogTimeout = DefaultWatchdogTimeout
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.ClosedRefresh <= 0 {
		c.ClosedRefresh = 5 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Calendar == nil {
		c.Calendar = markethours.DefaultCalendar()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Status is the connectivity summary stamped on outgoing data.
type Status struct {
	State        model.ConnectionState `json:"state"`
	Degraded     bool                  `json:"degraded"`
	AuthFailures int                   `json:"auth_failures"`
	Phase        model.SessionPhase    `json:"phase"`
	LastTick     time.Time             `json:"last_tick"`
	Since        time.Time             `json:"since"`
}

// eventNone marks an attempt abandoned by shutdown or a credential refresh.
const eventNone Event = -1

// Supervisor owns the single upstream subscription. Run drives the state
// machine; RefreshCredentials may be called from any goroutine.
type Supervisor struct {
	cfg      Config
	auth     Authenticator
	feed     Feed
	poller   Poller
	machine  *Machine
	backoff  *Backoff
	watchdog *Watchdog

	refreshCh chan struct{}

	mu            sync.Mutex
	cancelAttempt context.CancelFunc
	since         time.Time

	// Optional hooks.
	OnTransition         func(Transition)
	OnReconnectScheduled func(delay time.Duration, cause Event)
	OnPoll               func(quotes int, err error)
	OnQuoteDropped       func()
}

// NewSupervisor creates a supervisor. poller may be nil.
func NewSupervisor(cfg Config, auth Authenticator, feed Feed, poller Poller) *Supervisor {
	cfg.defaults()
	return &Supervisor{
		cfg:       cfg,
		auth:      auth,
		feed:      feed,
		poller:    poller,
		machine:   NewMachine(cfg.AuthFailureLimit),
		backoff:   NewBackoff(cfg.BaseBackoff, cfg.MaxBackoff),
		watchdog:  NewWatchdog(cfg.WatchdogTimeout),
		refreshCh: make(chan struct{}, 1),
		since:     cfg.Now(),
	}
}

// State returns the current connection state.
func (s *Supervisor) State() model.ConnectionState { return s.machine.State() }

// Status returns a snapshot of connectivity. The phase is recomputed.
func (s *Supervisor) Status() Status {
	state := s.machine.State()
	s.mu.Lock()
	since := s.since
	s.mu.Unlock()
	return Status{
		State:        state,
		Degraded:     state.Degraded(),
		AuthFailures: s.machine.AuthFailures(),
		Phase:        s.phase(s.cfg.Now()),
		LastTick:     s.watchdog.LastTick(),
		Since:        since,
	}
}

// RefreshCredentials abandons any in-flight attempt and reconnects at once
// with a fresh login, bypassing backoff and lifting DEGRADED_POLLING.
func (s *Supervisor) RefreshCredentials() {
	// Queue before cancelling: an abandoned attempt settles by taking the
	// refresh, so it must already be there.
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
	s.mu.Lock()
	if s.cancelAttempt != nil {
		s.cancelAttempt()
	}
	s.mu.Unlock()
}

// Run supervises the subscription and forwards quotes to out until ctx is
// cancelled. Quotes are dropped when out is full.
func (s *Supervisor) Run(ctx context.Context, out chan<- model.Quote) error {
	defer s.fire(EventStop)

	for ctx.Err() == nil {
		switch {
		case s.machine.State() == model.StateDegradedPolling:
			s.poll(ctx, out)
		case s.phase(s.cfg.Now()) == model.PhaseClosed:
			s.fire(EventPhaseClosed)
			s.idle(ctx, out)
		default:
			if s.machine.State() == model.StateDisconnected {
				s.fire(EventStart)
			}
			s.settle(ctx, s.attempt(ctx, out))
		}
	}
	return nil
}

func (s *Supervisor) phase(now time.Time) model.SessionPhase {
	return markethours.Phase(now, s.cfg.Calendar)
}

func (s *Supervisor) fire(ev Event) Transition {
	tr := s.machine.Fire(ev)
	if tr.Changed() {
		log.Printf("[session] %s -> %s (%s)", tr.From, tr.To, ev)
		s.mu.Lock()
		s.since = s.cfg.Now()
		s.mu.Unlock()
	}
	if tr.Applied && s.OnTransition != nil {
		s.OnTransition(tr)
	}
	return tr
}

// attempt performs one login and stream. It returns the event that ended
// the stream, or eventNone when the attempt was abandoned.
func (s *Supervisor) attempt(ctx context.Context, out chan<- model.Quote) Event {
	attemptCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelAttempt = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelAttempt = nil
		s.mu.Unlock()
		cancel()
	}()

	creds, err := s.auth.Login(attemptCtx)
	if err != nil {
		if attemptCtx.Err() != nil {
			return eventNone
		}
		log.Printf("[session] login failed: %v", err)
		return classify(err)
	}

	quotes := make(chan model.Quote, s.cfg.QueueSize)
	errCh := make(chan error, 1)
	go func() { errCh <- s.feed.Stream(attemptCtx, creds, quotes) }()

	s.watchdog.Arm(s.cfg.Now())
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case q := <-quotes:
			s.watchdog.Observe(s.cfg.Now())
			if s.machine.State() != model.StateConnected {
				if s.fire(EventTickReceived).Changed() {
					s.backoff.Reset()
				}
			}
			s.forward(out, q)

		case err := <-errCh:
			if attemptCtx.Err() != nil || cancelled(err) {
				return eventNone
			}
			if err == nil {
				log.Printf("[session] stream ended by upstream")
				return EventNetworkFailure
			}
			log.Printf("[session] stream failed: %v", err)
			return classify(err)

		case <-ticker.C:
			now := s.cfg.Now()
			phase := s.phase(now)
			if phase == model.PhaseClosed {
				cancel()
				<-errCh
				return EventPhaseClosed
			}
			if s.watchdog.Check(now, s.machine.State(), phase) {
				log.Printf("[session] no tick for %s in %s, reconnecting", s.watchdog.Timeout(), phase)
				cancel()
				<-errCh
				return EventWatchdogTimeout
			}

		case <-attemptCtx.Done():
			<-errCh
			return eventNone
		}
	}
}

// settle applies the attempt outcome and waits out the backoff.
func (s *Supervisor) settle(ctx context.Context, ev Event) {
	switch ev {
	case eventNone:
		s.takeRefresh()
		return
	case EventPhaseClosed:
		s.fire(ev)
		return
	}

	tr := s.fire(ev)
	if tr.To == model.StateDegradedPolling {
		log.Printf("[session] %d consecutive auth failures, polling until credentials are refreshed",
			s.cfg.AuthFailureLimit)
		return
	}

	delay := s.backoff.Next()
	log.Printf("[session] reconnect in %s (%s)", delay, ev)
	if s.OnReconnectScheduled != nil {
		s.OnReconnectScheduled(delay, ev)
	}
	s.wait(ctx, delay)
}

// wait sleeps for d. It returns false early on shutdown or on a credential
// refresh, which it applies.
func (s *Supervisor) wait(ctx context.Context, d time.Duration) bool {
	if d < time.Millisecond {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.refreshCh:
		s.applyRefresh()
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) takeRefresh() bool {
	select {
	case <-s.refreshCh:
		s.applyRefresh()
		return true
	default:
		return false
	}
}

func (s *Supervisor) applyRefresh() {
	log.Printf("[session] credential refresh requested")
	s.fire(EventCredentialRefresh)
	s.backoff.Reset()
}

// poll serves DEGRADED_POLLING until a credential refresh or shutdown.
func (s *Supervisor) poll(ctx context.Context, out chan<- model.Quote) {
	for s.machine.State() == model.StateDegradedPolling {
		phase := s.phase(s.cfg.Now())
		interval := s.cfg.PollInterval
		if !phase.Ingests() {
			interval = s.cfg.ClosedRefresh
		}
		s.pollOnce(ctx, out)
		if !s.wait(ctx, interval) {
			return
		}
	}
}

// idle waits out a CLOSED phase, refreshing the snapshot at low frequency.
func (s *Supervisor) idle(ctx context.Context, out chan<- model.Quote) {
	var lastPoll time.Time
	for {
		now := s.cfg.Now()
		if s.phase(now) != model.PhaseClosed {
			return
		}
		if s.poller != nil && (lastPoll.IsZero() || now.Sub(lastPoll) >= s.cfg.ClosedRefresh) {
			s.pollOnce(ctx, out)
			lastPoll = now
		}
		d := markethours.NextPhaseChange(now, s.cfg.Calendar).Sub(now)
		if s.poller != nil && d > s.cfg.ClosedRefresh {
			d = s.cfg.ClosedRefresh
		}
		if !s.wait(ctx, d) {
			return
		}
	}
}

func (s *Supervisor) pollOnce(ctx context.Context, out chan<- model.Quote) {
	if s.poller == nil {
		return
	}
	quotes, err := s.poller.Poll(ctx)
	if err != nil && ctx.Err() == nil {
		log.Printf("[session] poll failed: %v", err)
	}
	for _, q := range quotes {
		if q.Source == "" {
			q.Source = "poll"
		}
		s.forward(out, q)
	}
	if s.OnPoll != nil {
		s.OnPoll(len(quotes), err)
	}
}

func (s *Supervisor) forward(out chan<- model.Quote, q model.Quote) {
	select {
	case out <- q:
	default:
		if s.OnQuoteDropped != nil {
			s.OnQuoteDropped()
		} else {
			log.Println("[session] quote queue full, dropping quote")
		}
	}
}
