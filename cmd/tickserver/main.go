// Command tickserver is the staging market server.
// Streams simulated index and futures quotes so the engine can run without
// broker credentials, and serves the option chain and contract routes the
// engine polls.
//
// Quote JSON shape is model.Quote, prices in rupees:
//
//	{"token":"99926000","exchange":"NSE","ltp":25660.35,"open":25640,...,"ts":"...","source":"sim"}
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address  (default: ":9001")
//	UNIVERSE_FILE     instrument universe YAML (default: built-in indices)
//	TICK_INTERVAL_MS  broadcast interval milliseconds (default: "250")
//	TICK_SEED         random-walk seed (default: current time)
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/config"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/feed/sim"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting staging tick server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 250)
	seed := int64(envIntOrDefault("TICK_SEED", int(time.Now().UnixNano()&0x7fffffff)))

	uni, err := config.LoadUniverse(os.Getenv("UNIVERSE_FILE"))
	if err != nil {
		log.Fatalf("[tickserver] universe: %v", err)
	}
	log.Printf("[tickserver] instruments: %d, broadcast interval: %dms", len(uni.Instruments), intervalMs)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := sim.NewServer(sim.NewMarket(uni.Instruments, seed, nil))
	go srv.Run(ctx, time.Duration(intervalMs)*time.Millisecond)

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("[tickserver] listening on %s (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[tickserver] server error: %v", err)
	}
	log.Println("[tickserver] stopped")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
