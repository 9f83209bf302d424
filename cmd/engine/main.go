// Command engine is the market-data streaming engine. It holds the single
// upstream subscription, enriches every tick with indicators and signal
// scores, caches the results and fans them out to subscribers.
//
// STAGING_MODE=true consumes the tickserver over a plain JSON websocket
// instead of SmartAPI. See config.Load for every variable.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hchalla2021/mytradingSignal-sub000/config"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/api"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/breaker"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/contracts"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/feed/angel"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/feed/sim"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/gateway"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/logger"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/markethours"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/metrics"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/pipeline"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/query"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	sqlitestore "github.com/hchalla2021/mytradingSignal-sub000/internal/store/sqlite"
	"github.com/hchalla2021/mytradingSignal-sub000/pkg/smartconnect"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[engine] starting...")

	// ---- Config ----
	cfg := config.Load()
	logger.Init("engine", logger.ParseLevel(cfg.LogLevel))
	if cfg.Staging {
		log.Println("[engine] *** STAGING MODE: using tickserver instead of Angel One ***")
	}

	uni, err := config.LoadUniverse(cfg.UniverseFile)
	if err != nil {
		log.Fatalf("[engine] universe: %v", err)
	}
	cal, err := uni.Calendar()
	if err != nil {
		log.Fatalf("[engine] holiday calendar: %v", err)
	}
	log.Printf("[engine] universe %v, %d holidays", uni.Symbols(), cal.Len())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prometheus.DefaultGatherer, health)
	metricsSrv.Start()

	// ---- Cache ----
	var (
		store       cache.Store = cache.NewMemoryStore()
		pub         cache.Publisher
		cachePinger metrics.Pinger
	)
	if cfg.RedisAddr != "" {
		rs, err := cache.NewRedisStore(cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Printf("[engine] WARNING: redis init failed: %v (continuing with in-memory cache)", err)
		} else {
			defer rs.Close()
			store, pub, cachePinger = rs, rs, rs
			log.Printf("[engine] redis cache ready at %s", cfg.RedisAddr)
		}
	}

	breakers := breaker.NewSet(cfg.BreakerFailures, cfg.BreakerCooldown)
	breakers.OnStateChange = func(name string, from, to breaker.State) {
		prom.BreakerState.WithLabelValues(name).Set(float64(to))
		log.Printf("[engine] breaker %s %s -> %s", name, from, to)
	}
	cacheBreaker := breaker.New("cache", cfg.BreakerFailures, cfg.BreakerCooldown)
	dist := cache.NewDistributor(store, cfg.ResultTTL, cfg.BackupTTL).WithBreaker(cacheBreaker)
	dist.OnStale = func(feature, _ string) { prom.StaleReads.WithLabelValues(feature).Inc() }

	// ---- Subscriber hub ----
	hub := gateway.NewHub(pub)
	hub.OnDrop = func(string) { prom.SubscriberDrops.Inc() }
	hub.OnLatency = func(d time.Duration) { prom.BroadcastLatency.Observe(d.Seconds()) }
	hub.OnPublishError = func(channel string, err error) {
		prom.PublishErrors.Inc()
		log.Printf("[engine] publish %s: %v", channel, err)
	}

	// ---- Candle archive ----
	var archive *sqlitestore.Archive
	var archivePinger metrics.Pinger
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Fatalf("[engine] sqlite dir: %v", err)
		}
		archive, err = sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[engine] sqlite init failed: %v", err)
		}
		defer archive.Close()
		archive.OnCommit = func(_ int, took time.Duration) { prom.ArchiveCommitDur.Observe(took.Seconds()) }
		archivePinger = archive
		log.Printf("[engine] candle archive ready at %s", cfg.SQLitePath)
	}
	health.StartLivenessChecker(ctx, cachePinger, archivePinger, 10*time.Second)

	// ---- Upstream adapters ----
	quotes := make(chan model.Quote, 1024)
	var (
		auth     session.Authenticator
		feed     session.Feed
		poller   session.Poller
		chains   pipeline.ChainSource
		futures  contracts.Source
		startAux func(*contracts.Resolver)
	)
	if cfg.Staging {
		client, err := sim.NewClient(cfg.SimURL)
		if err != nil {
			log.Fatalf("[engine] sim client: %v", err)
		}
		auth, feed, poller, chains, futures = client, client, client, client, client
		startAux = func(*contracts.Resolver) {}
		log.Printf("[engine] staging tick source: %s", cfg.SimURL)
	} else {
		sc := smartconnect.New(smartconnect.Config{APIKey: cfg.AngelAPIKey})
		limiter := angel.NewLimiter(angel.DefaultRESTRate)
		auth = angel.NewAuthenticator(sc, angel.Credentials{
			ClientCode: cfg.AngelClientCode,
			Password:   cfg.AngelPassword,
			TOTPSecret: cfg.AngelTOTPSecret,
		})
		feed = angel.NewFeed(sc, cfg.AngelClientCode, uni.Instruments)
		poller = angel.NewPoller(sc, uni.Instruments, limiter)
		chains = angel.NewChainSource(sc, limiter)
		futures = angel.NewFuturesSource(sc, limiter)
		startAux = func(r *contracts.Resolver) {
			fp := angel.NewFuturesPoller(sc, limiter, r.All)
			go pollFutures(ctx, fp, quotes, cfg.PollInterval, cal, prom)
		}
	}

	// ---- Supervisor ----
	sup := session.NewSupervisor(session.Config{
		AuthFailureLimit: cfg.AuthFailureLimit,
		MaxBackoff:       cfg.MaxBackoff,
		WatchdogTimeout:  cfg.WatchdogTimeout,
		PollInterval:     cfg.PollInterval,
		ClosedRefresh:    cfg.ClosedRefresh,
		Calendar:         cal,
	}, auth, feed, poller)

	// ---- Pipeline ----
	eng := pipeline.NewEngine(pipeline.Config{
		Universe:          uni.Instruments,
		Calendar:          cal,
		CandleInterval:    cfg.CandleInterval,
		MinUpdateInterval: cfg.MinUpdateInterval,
		RiskFreeRate:      cfg.RiskFreeRate,
		OptionsRefresh:    cfg.OptionsRefresh,
		CompassBroadcast:  cfg.CompassBroadcast,
		SummaryInterval:   cfg.SummaryInterval,
		ClosedRefresh:     cfg.ClosedRefresh,
	}, dist, hub, sup, breakers).WithChains(chains)
	if archive != nil {
		eng.WithArchive(archive)
	}
	wireEngine(eng, prom, health)

	sup.OnTransition = func(tr session.Transition) {
		if !tr.Changed() {
			return
		}
		prom.StateTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
		prom.SetConnection(tr.To)
		health.SetConnection(tr.To)
		eng.PublishStatus(ctx, sup.Status())
	}
	sup.OnReconnectScheduled = func(_ time.Duration, cause session.Event) {
		prom.Reconnects.WithLabelValues(cause.String()).Inc()
	}
	sup.OnPoll = func(_ int, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		prom.Polls.WithLabelValues(result).Inc()
	}
	sup.OnQuoteDropped = func() { prom.QueueDrops.Inc() }

	// ---- Contracts ----
	resolver := contracts.NewResolver(futures, uni.Instruments)
	resolved := make(chan model.ContractSet, 8)
	contractCh := make(chan model.ContractSet, 8)
	go resolver.Run(ctx, cfg.ContractRefresh, resolved)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case set := <-resolved:
				prom.ContractRefreshes.WithLabelValues("changed").Inc()
				select {
				case contractCh <- set:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	startAux(resolver)

	// ---- HTTP surface ----
	router := api.NewRouter(api.Deps{
		Query:   query.New(dist, sup),
		Stream:  hub.ServeWS,
		Missed:  hub.ServeMissed,
		Health:  health,
		Refresh: sup.RefreshCredentials,
		Symbols: eng.Symbols(),
	})
	httpSrv := &http.Server{Addr: cfg.StreamAddr, Handler: router}
	go func() {
		log.Printf("[engine] stream and query API on %s", cfg.StreamAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[engine] http server error: %v", err)
			cancel()
		}
	}()

	go phaseLoop(ctx, cal, prom, health, hub)
	go func() {
		if err := sup.Run(ctx, quotes); err != nil {
			log.Printf("[engine] supervisor: %v", err)
		}
	}()

	log.Println("[engine] pipeline ready")
	if err := eng.Run(ctx, quotes, contractCh); err != nil {
		log.Printf("[engine] pipeline: %v", err)
	}

	// ---- Shutdown ----
	log.Println("[engine] shutting down...")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx)
	hub.Close()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[engine] stopped")
}

// wireEngine connects the pipeline's hooks to metrics and health.
func wireEngine(eng *pipeline.Engine, prom *metrics.Metrics, health *metrics.HealthStatus) {
	eng.OnQuote = func(source string) { prom.QuotesTotal.WithLabelValues(source).Inc() }
	eng.OnReject = func(reason string, _ error) { prom.QuotesRejected.WithLabelValues(reason).Inc() }
	eng.OnAccepted = func() {
		prom.TicksAccepted.Inc()
		health.SetLastTickTime(time.Now())
	}
	eng.OnCandle = func(_ model.Candle, evicted bool) {
		prom.CandlesTotal.Inc()
		if evicted {
			prom.RingBufOverflow.Inc()
		}
	}
	eng.OnComputeError = func(feature, _ string, _ error) { prom.ComputationErrors.WithLabelValues(feature).Inc() }
	eng.OnComputeDuration = func(feature string, d time.Duration) {
		prom.ComputeDur.WithLabelValues(feature).Observe(d.Seconds())
	}
	eng.OnCacheError = func(op string, err error) {
		prom.CacheWriteErrors.Inc()
		log.Printf("[engine] cache %s: %v", op, err)
	}
	eng.OnSessionClose = func(symbol string, ref model.PrevDay) {
		prom.SessionCloses.Inc()
		log.Printf("[engine] %s session close captured: %+v", symbol, ref)
	}
	eng.Gate().OnDrop = func(string) { prom.GateDrops.Inc() }
	eng.Builder().OnLateTick = func(string) { prom.LateTicks.Inc() }
}

// phaseLoop keeps the phase and subscriber gauges current.
func phaseLoop(ctx context.Context, cal *markethours.Calendar, prom *metrics.Metrics, health *metrics.HealthStatus, hub *gateway.Hub) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		phase := markethours.Phase(time.Now(), cal)
		prom.SetPhase(phase)
		health.SetPhase(phase)
		n := hub.ClientCount()
		prom.Subscribers.Set(float64(n))
		health.SetSubscribers(n)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollFutures feeds near-month futures quotes into the quote queue. SmartAPI
// streams only the spot indices, so futures prices arrive by polling.
func pollFutures(ctx context.Context, fp *angel.FuturesPoller, out chan<- model.Quote, every time.Duration, cal *markethours.Calendar, prom *metrics.Metrics) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if markethours.Phase(time.Now(), cal) == model.PhaseClosed {
			continue
		}
		qs, err := fp.Poll(ctx)
		if err != nil {
			log.Printf("[engine] futures poll: %v", err)
			continue
		}
		for _, q := range qs {
			select {
			case out <- q:
			default:
				prom.QueueDrops.Inc()
			}
		}
	}
}
