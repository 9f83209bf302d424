package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestMetricsExposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SetConnection(model.StateDegradedPolling)
	m.SetPhase(model.PhaseLive)
	m.QuotesTotal.WithLabelValues("stream").Add(3)

	srv := NewServer(":0", reg, NewHealthStatus())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`engine_connection_state{state="DEGRADED_POLLING"} 1`,
		`engine_connection_state{state="CONNECTED"} 0`,
		`engine_degraded 1`,
		`engine_market_phase{phase="LIVE"} 1`,
		`engine_quotes_total{source="stream"} 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func healthz(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	now := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	h := NewHealthStatus()
	h.now = func() time.Time { return now }

	tests := []struct {
		name   string
		setup  func()
		code   int
		status string
	}{
		{"closed and idle", func() {}, http.StatusOK, "healthy"},
		{"live but connecting", func() {
			h.SetPhase(model.PhaseLive)
			h.SetConnection(model.StateConnecting)
		}, http.StatusServiceUnavailable, "degraded"},
		{"live and connected", func() {
			h.SetConnection(model.StateConnected)
			h.SetLastTickTime(now.Add(-1500 * time.Millisecond))
		}, http.StatusOK, "healthy"},
		{"polling", func() {
			h.SetConnection(model.StateDegradedPolling)
		}, http.StatusServiceUnavailable, "degraded"},
		{"cache and archive down", func() {
			h.SetConnection(model.StateConnected)
			h.Check(context.Background(), pinger{errors.New("down")}, pinger{errors.New("down")})
		}, http.StatusServiceUnavailable, "unhealthy"},
		{"recovered", func() {
			h.Check(context.Background(), pinger{}, pinger{})
		}, http.StatusOK, "healthy"},
	}
	for _, tc := range tests {
		tc.setup()
		code, body := healthz(t, h)
		if code != tc.code || body["status"] != tc.status {
			t.Errorf("%s: got %d %v, want %d %s", tc.name, code, body["status"], tc.code, tc.status)
		}
	}

	_, body := healthz(t, h)
	if body["tick_age"] != "1.5s" {
		t.Errorf("tick_age = %v, want 1.5s", body["tick_age"])
	}
}
