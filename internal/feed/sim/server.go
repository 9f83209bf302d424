package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWindow is the number of strikes served either side of ATM.
const DefaultWindow = 10

// streams is the set of connected /ws peers. Each peer has a bounded queue;
// a quote that does not fit is skipped for that peer only.
type streams struct {
	mu    sync.Mutex
	peers map[chan []byte]struct{}
}

func (st *streams) join() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)
	st.mu.Lock()
	if st.peers == nil {
		st.peers = make(map[chan []byte]struct{})
	}
	st.peers[ch] = struct{}{}
	st.mu.Unlock()
	return ch, func() {
		st.mu.Lock()
		delete(st.peers, ch)
		st.mu.Unlock()
	}
}

func (st *streams) send(msg []byte) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for ch := range st.peers {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (st *streams) size() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.peers)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// Server serves a Market: quotes are pushed on /ws, one JSON quote per
// message, and the request/response routes back the engine's poller and
// option-chain and contract sources.
type Server struct {
	market  *Market
	streams streams

	// RejectStreams makes /ws answer 401, to exercise credential handling.
	RejectStreams bool
}

// NewServer creates a server for market.
func NewServer(market *Market) *Server {
	return &Server{market: market}
}

// Run steps the market every interval and broadcasts the quotes until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Publish()
		}
	}
}

// Publish steps the market once and broadcasts every quote.
func (s *Server) Publish() {
	for _, q := range s.market.Step() {
		b, err := json.Marshal(q)
		if err != nil {
			continue
		}
		s.streams.send(b)
	}
}

// Clients returns the number of connected stream clients.
func (s *Server) Clients() int { return s.streams.size() }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/quotes", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.market.Quotes())
	})
	mux.HandleFunc("/chain", func(w http.ResponseWriter, r *http.Request) {
		window := DefaultWindow
		if v, err := strconv.Atoi(r.URL.Query().Get("window")); err == nil && v > 0 {
			window = v
		}
		chain, ok := s.market.Chain(r.URL.Query().Get("symbol"), window)
		if !ok {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		writeJSON(w, chain)
	})
	mux.HandleFunc("/contracts", func(w http.ResponseWriter, r *http.Request) {
		list, ok := s.market.Contracts(r.URL.Query().Get("symbol"))
		if !ok {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		writeJSON(w, list)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","service":"tickserver","clients":%d}`+"\n", s.Clients())
	})
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.RejectStreams {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[tickserver] upgrade error: %v", err)
		return
	}
	log.Printf("[tickserver] stream opened by %s", r.RemoteAddr)

	quotes, leave := s.streams.join()
	defer func() {
		leave()
		conn.Close()
		log.Printf("[tickserver] stream closed by %s", r.RemoteAddr)
	}()

	// The peer sends nothing; reading only notices when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg := <-quotes:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[tickserver] encode: %v", err)
	}
}
