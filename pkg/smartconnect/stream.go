package smartconnect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// StreamURL is the smart-stream endpoint.
const StreamURL = "wss://smartapisocket.angelone.in/smart-stream"

// HeartbeatInterval is how often the text heartbeat is sent.
const HeartbeatInterval = 10 * time.Second

// TokenList is one exchange segment's tokens in a subscription.
type TokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// StreamConfig configures a Stream.
type StreamConfig struct {
	URL        string // default StreamURL
	APIKey     string
	ClientCode string
	AuthToken  string // JWT without the Bearer prefix
	FeedToken  string
	Dialer     *websocket.Dialer
}

// Stream is one smart-stream connection. It does not reconnect; the caller
// owns retry policy.
type Stream struct {
	cfg StreamConfig

	// OnControl is called for text frames other than the heartbeat reply (optional).
	OnControl func(msg []byte)
}

// NewStream validates cfg and returns a stream.
func NewStream(cfg StreamConfig) (*Stream, error) {
	if cfg.AuthToken == "" || cfg.APIKey == "" || cfg.ClientCode == "" || cfg.FeedToken == "" {
		return nil, fmt.Errorf("smartconnect: stream: %w: missing tokens", ErrSession)
	}
	if cfg.URL == "" {
		cfg.URL = StreamURL
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Stream{cfg: cfg}, nil
}

type subscribeRequest struct {
	CorrelationID string `json:"correlationID"`
	Action        int    `json:"action"`
	Params        struct {
		Mode      int         `json:"mode"`
		TokenList []TokenList `json:"tokenList"`
	} `json:"params"`
}

// Run dials, subscribes tokens in mode and calls onPacket for every decoded
// frame until ctx is cancelled (returns ctx.Err()) or the connection fails.
// A rejected handshake is reported as ErrSession.
func (s *Stream) Run(ctx context.Context, mode int, tokens []TokenList, onPacket func(Packet)) error {
	header := http.Header{}
	header.Set("Authorization", s.cfg.AuthToken)
	header.Set("x-api-key", s.cfg.APIKey)
	header.Set("x-client-code", s.cfg.ClientCode)
	header.Set("x-feed-token", s.cfg.FeedToken)

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return &APIError{Route: "stream", Status: resp.StatusCode, Message: "handshake rejected"}
		}
		return fmt.Errorf("smartconnect: stream: dial: %w", err)
	}
	defer conn.Close()
	log.Printf("[smartconnect] stream connected, subscribing mode=%d", mode)

	var req subscribeRequest
	req.CorrelationID = "mds"
	req.Action = 1
	req.Params.Mode = mode
	req.Params.TokenList = tokens
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("smartconnect: stream: subscribe: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()
	go s.heartbeat(conn, done)

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.ClosePolicyViolation {
				return &APIError{Route: "stream", Status: http.StatusUnauthorized, Message: ce.Text}
			}
			return fmt.Errorf("smartconnect: stream: read: %w", err)
		}
		switch mt {
		case websocket.BinaryMessage:
			p, err := ParsePacket(msg)
			if err != nil {
				log.Printf("[smartconnect] %v", err)
				continue
			}
			onPacket(p)
		case websocket.TextMessage:
			if string(msg) == "pong" {
				continue
			}
			if s.OnControl != nil {
				s.OnControl(msg)
			}
		}
	}
}

// heartbeat writes the text "ping" the server expects. Gorilla allows one
// concurrent writer besides control frames, and only this goroutine writes
// data frames after the subscription.
func (s *Stream) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
				log.Printf("[smartconnect] heartbeat: %v", err)
				conn.Close()
				return
			}
		}
	}
}
