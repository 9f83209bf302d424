package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/model"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/session"
	"github.com/hchalla2021/mytradingSignal-sub000/internal/signal/options"
)

// Client consumes a tickserver. It satisfies session.Authenticator,
// session.Feed, session.Poller, contracts.Source and the pipeline's chain
// source, so staging runs the same engine as production.
type Client struct {
	wsURL string
	base  string
	http  *http.Client
	now   func() time.Time
}

// NewClient creates a client for the stream at wsURL, e.g.
// "ws://localhost:9001/ws". REST routes are served from the same host.
func NewClient(wsURL string) (*Client, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("sim: parse url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, fmt.Errorf("sim: unsupported scheme %q", u.Scheme)
	}
	u.Path, u.RawQuery = "", ""
	return &Client{
		wsURL: wsURL,
		base:  u.String(),
		http:  &http.Client{Timeout: 5 * time.Second},
		now:   time.Now,
	}, nil
}

// Login always succeeds; the tickserver has no credentials.
func (c *Client) Login(context.Context) (session.Credentials, error) {
	return session.Credentials{AuthToken: "sim", FeedToken: "sim", IssuedAt: c.now()}, nil
}

// Stream implements session.Feed.
func (c *Client) Stream(ctx context.Context, _ session.Credentials, out chan<- model.Quote) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return session.Credential("stream", fmt.Errorf("sim: handshake: %s", resp.Status))
		}
		return session.Network("stream", err)
	}
	defer conn.Close()
	log.Printf("[sim] connected to %s", c.wsURL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return session.Network("stream", err)
		}
		var q model.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			log.Printf("[sim] parse error: %v (raw: %s)", err, raw)
			continue
		}
		if q.Token == "" {
			continue
		}
		q.Source = "sim"
		select {
		case out <- q:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Poll implements session.Poller.
func (c *Client) Poll(ctx context.Context) ([]model.Quote, error) {
	var quotes []model.Quote
	if err := c.get(ctx, "/quotes", nil, &quotes); err != nil {
		return nil, err
	}
	for i := range quotes {
		quotes[i].Source = "poll"
	}
	return quotes, nil
}

// Fetch returns the chain around the spot for inst.
func (c *Client) Fetch(ctx context.Context, inst model.Instrument, _ float64, _ time.Time) (options.Chain, error) {
	var chain options.Chain
	err := c.get(ctx, "/chain", url.Values{"symbol": {inst.Symbol}}, &chain)
	return chain, err
}

// Futures implements contracts.Source.
func (c *Client) Futures(ctx context.Context, inst model.Instrument) ([]model.Contract, error) {
	var list []model.Contract
	err := c.get(ctx, "/contracts", url.Values{"symbol": {inst.Symbol}}, &list)
	return list, err
}

func (c *Client) get(ctx context.Context, path string, q url.Values, dst any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("sim: %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return session.Network(path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return session.Network(path, errors.New(resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("sim: %s: decode: %w", path, err)
	}
	return nil
}
