// Package api mounts the engine's HTTP surface: read-side queries over the
// cache, the subscriber stream and the credential-refresh trigger.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/query"
)

// Deps are the handlers' collaborators. Nil members disable their routes.
type Deps struct {
	Query   *query.Service
	Stream  http.HandlerFunc // websocket upgrade for subscribers
	Missed  http.HandlerFunc // replay of missed envelopes
	Health  http.Handler
	Refresh func() // lifts DEGRADED_POLLING with a fresh login
	Symbols []string
}

// NewRouter sets up the routes.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	known := make(map[string]bool, len(d.Symbols))
	for _, s := range d.Symbols {
		known[s] = true
	}

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Health != nil {
			d.Health.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if d.Query != nil {
		mux.HandleFunc("/api/v1/option-chain", symbolQuery(known, func(ctx context.Context, sym string) (any, error) {
			return d.Query.OptionChain(ctx, sym)
		}))
		mux.HandleFunc("/api/v1/analysis", symbolQuery(known, func(ctx context.Context, sym string) (any, error) {
			return d.Query.InstantAnalysis(ctx, sym)
		}))
		mux.HandleFunc("/api/v1/summary", symbolQuery(known, func(ctx context.Context, sym string) (any, error) {
			return d.Query.Summary(ctx, sym)
		}))
	}
	if d.Stream != nil {
		mux.HandleFunc("/api/v1/stream", d.Stream)
	}
	if d.Missed != nil {
		mux.HandleFunc("/api/v1/missed", d.Missed)
	}
	if d.Refresh != nil {
		mux.HandleFunc("/api/v1/session/refresh", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			d.Refresh()
			log.Printf("[api] credential refresh requested from %s", r.RemoteAddr)
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
		})
	}
	return mux
}

func symbolQuery(known map[string]bool, fn func(ctx context.Context, symbol string) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "GET only", http.StatusMethodNotAllowed)
			return
		}
		sym := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
		if sym == "" {
			http.Error(w, "symbol required", http.StatusBadRequest)
			return
		}
		if len(known) > 0 && !known[sym] {
			http.Error(w, "unknown symbol "+sym, http.StatusNotFound)
			return
		}
		v, err := fn(r.Context(), sym)
		if err != nil {
			log.Printf("[api] %s %s: %v", r.URL.Path, sym, err)
			http.Error(w, "cache error", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, v)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}
