package smartconnect

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "key", RootURL: srv.URL, ClientLocalIP: "10.0.0.1", ClientMAC: "aa:bb"})
}

func TestLoginStoresSession(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case routes["api.login"]:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["totp"] != "123456" || r.Header.Get("X-PrivateKey") != "key" {
				t.Errorf("login body=%v key=%q", body, r.Header.Get("X-PrivateKey"))
			}
			w.Write([]byte(`{"status":true,"message":"SUCCESS","data":{"jwtToken":"Bearer jwt1","refreshToken":"r1","feedToken":"f1"}}`))
		case routes["api.market.data"]:
			auth = r.Header.Get("Authorization")
			w.Write([]byte(`{"status":true,"data":{"fetched":[{"exchange":"NSE","symbolToken":"26000","ltp":24012.5,"close":23900,"tradeVolume":10,"opnInterest":0}],"unfetched":[]}}`))
		}
	})

	sess, err := c.Login(context.Background(), "C1", "pw", "123456")
	if err != nil {
		t.Fatal(err)
	}
	if sess.JWT != "jwt1" || sess.FeedToken != "f1" || !c.HasSession() {
		t.Fatalf("session = %+v", sess)
	}

	quotes, err := c.Quote(context.Background(), QuoteFull, map[string][]string{"NSE": {"26000"}})
	if err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer jwt1" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(quotes) != 1 || quotes[0].LTP != 24012.5 || quotes[0].Close != 23900 {
		t.Errorf("quotes = %+v", quotes)
	}
}

func TestSessionErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		session bool
	}{
		{"token exception", http.StatusForbidden, `{"status":false,"error_type":"TokenException","message":"expired"}`, true},
		{"invalid totp", http.StatusOK, `{"status":false,"errorcode":"AB1050","message":"Invalid totp"}`, false},
		{"bad token code", http.StatusOK, `{"status":false,"errorcode":"AG8001","message":"Invalid Token"}`, true},
		{"plain 401", http.StatusUnauthorized, `unauthorized`, true},
		{"server error", http.StatusBadGateway, `bad gateway`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.SearchScrip(context.Background(), "NFO", "NIFTY")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if got := errors.Is(err, ErrSession); got != tt.session {
				t.Errorf("errors.Is(ErrSession) = %v, want %v (%v)", got, tt.session, err)
			}
		})
	}
}

func TestOptionGreekParsesStrings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"data":[{"name":"NIFTY","expiry":"26MAR2026","strikePrice":"24000.000000","optionType":"CE","delta":"0.52","impliedVolatility":"14.2"}]}`))
	})
	rows, err := c.OptionGreek(context.Background(), "NIFTY", "26MAR2026")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || Float(rows[0].StrikePrice) != 24000 || Float(rows[0].ImpliedVolatility) != 14.2 {
		t.Errorf("rows = %+v", rows)
	}
	if Float("") != 0 || Float("n/a") != 0 {
		t.Error("blank and malformed should parse as 0")
	}
}
