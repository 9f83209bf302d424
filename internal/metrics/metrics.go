package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Ingestion
	QuotesTotal     *prometheus.CounterVec // labels: source
	QuotesRejected  *prometheus.CounterVec // labels: reason
	QueueDrops      prometheus.Counter
	GateDrops       prometheus.Counter
	TicksAccepted   prometheus.Counter
	CandlesTotal    prometheus.Counter
	LateTicks       prometheus.Counter
	RingBufOverflow prometheus.Counter

	// Connectivity
	ConnectionState  *prometheus.GaugeVec   // labels: state, 1 for the current one
	Degraded         prometheus.Gauge       // 1 while polling
	StateTransitions *prometheus.CounterVec // labels: from, to
	Reconnects       *prometheus.CounterVec // labels: cause
	Polls            *prometheus.CounterVec // labels: result
	MarketPhase      *prometheus.GaugeVec   // labels: phase, 1 for the current one

	// Signal features
	ComputeDur        *prometheus.HistogramVec // labels: feature
	ComputationErrors *prometheus.CounterVec   // labels: feature
	BreakerState      *prometheus.GaugeVec     // labels: feature; 0=closed, 1=open, 2=half-open
	StaleReads        *prometheus.CounterVec   // labels: feature

	// Distribution
	Subscribers      prometheus.Gauge
	SubscriberDrops  prometheus.Counter
	BroadcastLatency prometheus.Histogram // tick timestamp to fan-out
	CacheWriteErrors prometheus.Counter
	PublishErrors    prometheus.Counter

	// Supporting
	ArchiveCommitDur  prometheus.Histogram
	ContractRefreshes *prometheus.CounterVec // labels: result
	SessionCloses     prometheus.Counter
}

var (
	connectionStates = []model.ConnectionState{
		model.StateDisconnected, model.StateConnecting, model.StateConnected, model.StateDegradedPolling,
	}
	phases = []model.SessionPhase{
		model.PhasePreOpen, model.PhaseFreeze, model.PhaseLive, model.PhaseClosed,
	}
)

// NewMetrics creates every metric and registers it with reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	computeBuckets := []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01}

	m := &Metrics{
		QuotesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_quotes_total",
			Help: "Quotes received from the upstream feed, by source",
		}, []string{"source"}),
		QuotesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_quotes_rejected_total",
			Help: "Quotes rejected by normalization, by reason",
		}, []string{"reason"}),
		QueueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_queue_drops_total",
			Help: "Quotes dropped because the ingestion queue was full",
		}),
		GateDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_gate_drops_total",
			Help: "Ticks dropped by the accept gate (no price change, interval, or phase change)",
		}),
		TicksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ticks_accepted_total",
			Help: "Ticks accepted for aggregation",
		}),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_candles_total",
			Help: "Candles closed into the ring",
		}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_late_ticks_total",
			Help: "Ticks dropped because their bucket already closed",
		}),
		RingBufOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_ringbuf_evictions_total",
			Help: "Candles evicted from full rings",
		}),

		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_connection_state",
			Help: "Upstream connection state (1 for the current state)",
		}, []string{"state"}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_degraded",
			Help: "1 while data arrives through degraded polling",
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_state_transitions_total",
			Help: "Connection state transitions",
		}, []string{"from", "to"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_reconnects_total",
			Help: "Reconnects scheduled, by cause",
		}, []string{"cause"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_polls_total",
			Help: "Request/response polls, by result",
		}, []string{"result"}),
		MarketPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_market_phase",
			Help: "Trading session phase (1 for the current phase)",
		}, []string{"phase"}),

		ComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_compute_duration_seconds",
			Help:    "Per-feature compute latency",
			Buckets: computeBuckets,
		}, []string{"feature"}),
		ComputationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_computation_errors_total",
			Help: "Computation errors isolated per feature",
		}, []string{"feature"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "engine_breaker_state",
			Help: "Feature circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"feature"}),
		StaleReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_stale_reads_total",
			Help: "Reads served from the long-TTL backup",
		}, []string{"feature"}),

		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_subscribers",
			Help: "Connected stream subscribers",
		}),
		SubscriberDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_subscriber_drops_total",
			Help: "Subscribers dropped for not keeping up",
		}),
		BroadcastLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_broadcast_latency_seconds",
			Help:    "Latency from tick timestamp to subscriber fan-out",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		CacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_cache_write_errors_total",
			Help: "Failed cache writes, including writes skipped by the cache breaker",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_publish_errors_total",
			Help: "Failed out-of-process envelope publishes",
		}),

		ArchiveCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_archive_commit_duration_seconds",
			Help:    "SQLite candle archive batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		ContractRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_contract_refreshes_total",
			Help: "Futures contract refreshes, by result",
		}, []string{"result"}),
		SessionCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_session_closes_total",
			Help: "Session closes captured by the close detector",
		}),
	}

	reg.MustRegister(
		m.QuotesTotal,
		m.QuotesRejected,
		m.QueueDrops,
		m.GateDrops,
		m.TicksAccepted,
		m.CandlesTotal,
		m.LateTicks,
		m.RingBufOverflow,
		m.ConnectionState,
		m.Degraded,
		m.StateTransitions,
		m.Reconnects,
		m.Polls,
		m.MarketPhase,
		m.ComputeDur,
		m.ComputationErrors,
		m.BreakerState,
		m.StaleReads,
		m.Subscribers,
		m.SubscriberDrops,
		m.BroadcastLatency,
		m.CacheWriteErrors,
		m.PublishErrors,
		m.ArchiveCommitDur,
		m.ContractRefreshes,
		m.SessionCloses,
	)
	return m
}

// SetConnection marks state as the current connection state.
func (m *Metrics) SetConnection(state model.ConnectionState) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(string(s)).Set(v)
	}
	if state.Degraded() {
		m.Degraded.Set(1)
	} else {
		m.Degraded.Set(0)
	}
}

// SetPhase marks phase as the current session phase.
func (m *Metrics) SetPhase(phase model.SessionPhase) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.MarketPhase.WithLabelValues(string(p)).Set(v)
	}
}

// Pinger is a dependency the liveness checker can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	Connection   model.ConnectionState
	Degraded     bool
	Phase        model.SessionPhase
	LastTickTime time.Time
	CacheOK      bool
	ArchiveOK    bool
	Subscribers  int

	// Liveness probe results
	CacheLatencyMs   float64
	ArchiveLatencyMs float64
	LastCheckAt      time.Time
	StartedAt        time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status. The cache and archive
// count as healthy until a probe says otherwise.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		Connection: model.StateDisconnected,
		Phase:      model.PhaseClosed,
		CacheOK:    true,
		ArchiveOK:  true,
		StartedAt:  time.Now(),
		now:        time.Now,
	}
}

func (h *HealthStatus) SetConnection(state model.ConnectionState) {
	h.mu.Lock()
	h.Connection = state
	h.Degraded = state.Degraded()
	h.mu.Unlock()
}

func (h *HealthStatus) SetPhase(p model.SessionPhase) {
	h.mu.Lock()
	h.Phase = p
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSubscribers(n int) {
	h.mu.Lock()
	h.Subscribers = n
	h.mu.Unlock()
}

// Check probes the cache and archive and records latency and health. Nil
// dependencies are skipped.
func (h *HealthStatus) Check(ctx context.Context, cache, archive Pinger) {
	if cache != nil {
		ok, ms := probe(ctx, cache)
		h.mu.Lock()
		h.CacheOK, h.CacheLatencyMs = ok, ms
		h.mu.Unlock()
	}
	if archive != nil {
		ok, ms := probe(ctx, archive)
		h.mu.Lock()
		h.ArchiveOK, h.ArchiveLatencyMs = ok, ms
		h.mu.Unlock()
	}
	h.mu.Lock()
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

func probe(ctx context.Context, p Pinger) (bool, float64) {
	start := time.Now()
	err := p.Ping(ctx)
	return err == nil, float64(time.Since(start).Microseconds()) / 1000.0
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, cache, archive Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				h.Check(probeCtx, cache, archive)
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The engine is degraded while it
// polls, while the cache or archive fails a probe, or while it is not
// connected during a watched phase.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	disconnected := h.Phase.Watched() && h.Connection != model.StateConnected
	if h.Degraded || !h.CacheOK || !h.ArchiveOK || disconnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.CacheOK && !h.ArchiveOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = h.now().Sub(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		Connection       string  `json:"connection"`
		Degraded         bool    `json:"degraded"`
		Phase            string  `json:"phase"`
		LastTickTime     string  `json:"last_tick_time"`
		TickAge          string  `json:"tick_age"`
		CacheOK          bool    `json:"cache_ok"`
		CacheLatencyMs   float64 `json:"cache_latency_ms"`
		ArchiveOK        bool    `json:"archive_ok"`
		ArchiveLatencyMs float64 `json:"archive_latency_ms"`
		Subscribers      int     `json:"subscribers"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           h.now().Sub(h.StartedAt).Round(time.Second).String(),
		Connection:       string(h.Connection),
		Degraded:         h.Degraded,
		Phase:            string(h.Phase),
		LastTickTime:     h.LastTickTime.Format(time.RFC3339),
		TickAge:          tickAge,
		CacheOK:          h.CacheOK,
		CacheLatencyMs:   h.CacheLatencyMs,
		ArchiveOK:        h.ArchiveOK,
		ArchiveLatencyMs: h.ArchiveLatencyMs,
		Subscribers:      h.Subscribers,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server over gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
