// Package gateway fans enriched market records out to subscribers. Each
// broadcast is wrapped in a sequenced envelope and offered to every
// subscriber without blocking: a subscriber whose queue is full is dropped
// so one slow reader never delays the others.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hchalla2021/mytradingSignal-sub000/internal/cache"
)

// DefaultSendBuffer is each subscriber's queue depth.
const DefaultSendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	EnableCompression: true,
	CheckOrigin:       func(*http.Request) bool { return true },
}

type lastValue struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// Hub owns the subscriber set.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client
	latest      map[string]lastValue
	seq         int64
	channelSeqs map[string]int64
	backlogs    map[string]*backlog
	closed      bool

	pub        cache.Publisher // optional out-of-process fan-out
	sendBuffer int

	// OnLatency receives source tick time to fan-out for each stamped
	// broadcast (optional).
	OnLatency func(time.Duration)
	// OnDrop is called when a slow subscriber is dropped (optional).
	OnDrop func(id string)
	// OnPublishError is called when the out-of-process publish fails (optional).
	OnPublishError func(channel string, err error)
}

// NewHub creates a hub. pub may be nil.
func NewHub(pub cache.Publisher) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		latest:      make(map[string]lastValue),
		channelSeqs: make(map[string]int64),
		backlogs:    make(map[string]*backlog),
		pub:         pub,
		sendBuffer:  DefaultSendBuffer,
	}
}

// SetSendBuffer changes the queue depth for subscribers attached afterwards.
func (h *Hub) SetSendBuffer(n int) {
	if n < 1 {
		n = 1
	}
	h.mu.Lock()
	h.sendBuffer = n
	h.mu.Unlock()
}

// Broadcast wraps data (valid JSON) in an envelope on channel and offers it
// to every matching subscriber. srcTS, when set, is the source tick time
// used for latency tracking. Subscribers whose queue is full are dropped.
func (h *Hub) Broadcast(ctx context.Context, channel string, data []byte, srcTS time.Time) {
	now := time.Now().UTC()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.seq++
	h.channelSeqs[channel]++
	seq, channelSeq := h.seq, h.channelSeqs[channel]
	h.latest[channel] = lastValue{Data: data, TS: now, Seq: channelSeq}
	bl, ok := h.backlogs[channel]
	if !ok {
		bl = newBacklog(DefaultBacklog)
		h.backlogs[channel] = bl
	}
	h.mu.Unlock()

	env := buildEnvelope(channel, data, now, seq, channelSeq)
	bl.add(channelSeq, env)

	symbol := channelSymbol(channel)
	var slow []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- env:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("[gateway] subscriber %s queue full, dropping", c.id)
		h.RemoveClient(c)
		if h.OnDrop != nil {
			h.OnDrop(c.id)
		}
	}

	if h.pub != nil && symbol != "" {
		if err := h.pub.Publish(ctx, cache.StreamChannel(symbol), env); err != nil {
			if h.OnPublishError != nil {
				h.OnPublishError(channel, err)
			} else {
				log.Printf("[gateway] publish %s: %v", channel, err)
			}
		}
	}

	if !srcTS.IsZero() && h.OnLatency != nil {
		if d := time.Since(srcTS); d >= 0 {
			h.OnLatency(d)
		}
	}
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(ctx context.Context, channel string, v any, srcTS time.Time) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(ctx, channel, data, srcTS)
	return nil
}

// Attach registers an in-process subscriber for symbols (all when empty).
func (h *Hub) Attach(symbols ...string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := newClient(h, nil, h.sendBuffer, symbols)
	if h.closed {
		close(c.send)
		return c
	}
	h.clients[c.id] = c
	log.Printf("[gateway] subscriber %s attached (%d total)", c.id, len(h.clients))
	return c
}

// RemoveClient unregisters c and closes its queue. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
}

// ClientCount returns the number of subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ChannelSeq returns the latest sequence number on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// Missed returns buffered envelopes on channel after seq, oldest first.
func (h *Hub) Missed(channel string, after int64) [][]byte {
	h.mu.RLock()
	bl, ok := h.backlogs[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return bl.after(after)
}

// Close drops every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// ServeWS upgrades the request and registers a websocket subscriber.
// Query: symbols=NIFTY,BANKNIFTY (default all), since=<RFC3339Nano> to
// receive only latest values newer than a previous session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade: %v", err)
		return
	}
	conn.EnableWriteCompression(true)

	var symbols []string
	if s := r.URL.Query().Get("symbols"); s != "" {
		for _, sym := range strings.Split(s, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	c := newClient(h, conn, h.sendBuffer, symbols)
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws subscriber %s connected (%d total)", c.id, count)

	c.primeLatest(r.URL.Query().Get("since"))
	go c.writePump()
	go c.readPump()
}

// ServeMissed serves GET ?channel=tick:NIFTY&after=<channel_seq> with the
// buffered envelopes as a JSON array.
func (h *Hub) ServeMissed(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if channel == "" || err != nil {
		http.Error(w, "channel and after are required", http.StatusBadRequest)
		return
	}
	missed := h.Missed(channel, after)
	w.Header().Set("Content-Type", "application/json")
	buf := make([]byte, 0, 2+len(missed)*256)
	buf = append(buf, '[')
	for i, env := range missed {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, env...)
	}
	buf = append(buf, ']')
	w.Write(buf)
}

func newID() string { return uuid.NewString() }
