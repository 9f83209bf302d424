package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/query"
)

func newTestServer(t *testing.T, refresh func()) *httptest.Server {
	t.Helper()
	dist := cache.NewDistributor(cache.NewMemoryStore(), 5*time.Second, time.Hour)
	srv := httptest.NewServer(NewRouter(Deps{
		Query:   query.New(dist, nil),
		Refresh: refresh,
		Symbols: []string{"NIFTY", "BANKNIFTY"},
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQueryRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	tests := []struct {
		path string
		code int
	}{
		{"/api/v1/option-chain?symbol=NIFTY", http.StatusOK},
		{"/api/v1/option-chain?symbol=nifty", http.StatusOK},
		{"/api/v1/analysis?symbol=BANKNIFTY", http.StatusOK},
		{"/api/v1/summary?symbol=NIFTY", http.StatusOK},
		{"/api/v1/analysis", http.StatusBadRequest},
		{"/api/v1/option-chain?symbol=SENSEX", http.StatusNotFound},
		{"/api/v1/health", http.StatusOK},
		{"/api/v1/session/refresh", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.code)
			}
		})
	}
}

func TestOptionChainUnavailableBody(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/api/v1/option-chain?symbol=NIFTY")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got query.OptionChain
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != cache.StatusUnavailable || got.Signal.Label != string(model.Neutral) {
		t.Errorf("body = %+v", got)
	}
}

func TestRefreshTrigger(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func() { calls.Add(1) })

	resp, err := http.Get(srv.URL + "/api/v1/session/refresh")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/api/v1/session/refresh", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || calls.Load() != 1 {
		t.Errorf("POST status = %d, calls = %d", resp.StatusCode, calls.Load())
	}
}
