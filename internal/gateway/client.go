package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingEvery    = 30 * time.Second
	writeTimeout = 10 * time.Second
	readTimeout  = 2 * pingEvery
	maxFrameSize = 4096
)

// Client is one subscriber: a websocket peer, or an in-process reader when
// conn is nil.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu       sync.RWMutex
	all      bool            // every symbol except excluded
	symbols  map[string]bool // explicit filter when !all
	excluded map[string]bool
}

func newClient(h *Hub, conn *websocket.Conn, buffer int, symbols []string) *Client {
	c := &Client{
		id:      newID(),
		conn:    conn,
		send:    make(chan []byte, buffer),
		hub:     h,
		all:     len(symbols) == 0,
		symbols: make(map[string]bool, len(symbols)),
	}
	for _, s := range symbols {
		c.symbols[s] = true
	}
	return c
}

// ID returns the subscriber ID.
func (c *Client) ID() string { return c.id }

// C returns the envelope queue. It is closed when the subscriber is dropped.
func (c *Client) C() <-chan []byte { return c.send }

// Close unregisters the subscriber.
func (c *Client) Close() { c.hub.RemoveClient(c) }

func (c *Client) wants(symbol string) bool {
	if symbol == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return !c.excluded[symbol]
	}
	return c.symbols[symbol]
}

// subscribe narrows the client to symbols; an empty list means every symbol.
// With add set the symbols are merged into the current filter instead.
func (c *Client) subscribe(symbols []string, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !add {
		c.all = len(symbols) == 0
		c.symbols = make(map[string]bool, len(symbols))
		c.excluded = nil
	}
	for _, s := range symbols {
		if c.all {
			delete(c.excluded, s)
			continue
		}
		c.symbols[s] = true
	}
}

// unsubscribe removes symbols from the filter. Removing the last explicit
// symbol leaves the client with nothing, not with every symbol.
func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.all {
		if c.excluded == nil {
			c.excluded = make(map[string]bool, len(symbols))
		}
		for _, s := range symbols {
			c.excluded[s] = true
		}
		return
	}
	for _, s := range symbols {
		delete(c.symbols, s)
	}
}

// primeLatest queues the last value of every channel the client wants, so a
// new subscriber does not wait for the next tick. since, when it parses as
// RFC3339Nano, skips values the subscriber already saw.
func (c *Client) primeLatest(since string) {
	cutoff, _ := time.Parse(time.RFC3339Nano, since)

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, last := range c.hub.latest {
		if !c.wants(channelSymbol(channel)) || !last.TS.After(cutoff) {
			continue
		}
		select {
		case c.send <- buildSnapshotEnvelope(channel, last):
		default:
		}
	}
}

func (c *Client) writePump() {
	ping := time.NewTicker(pingEvery)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "dropped"))
				return
			}
			if err := c.writeBatch(env); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeBatch writes first plus whatever is already queued as one text frame,
// one envelope per line.
func (c *Client) writeBatch(first []byte) error {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	w.Write(first)
	for pending := len(c.send); pending > 0; pending-- {
		env, ok := <-c.send
		if !ok {
			break
		}
		w.Write([]byte{'\n'})
		w.Write(env)
	}
	return w.Close()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Printf("[gateway] ws subscriber %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd control
		if json.Unmarshal(frame, &cmd) != nil {
			continue
		}
		c.handle(cmd)
	}
}

// control is a message a subscriber sends to the hub.
type control struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

type pong struct {
	Type     string `json:"type"`
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

func (c *Client) handle(cmd control) {
	switch strings.ToLower(cmd.Action) {
	case "subscribe":
		c.subscribe(cmd.Symbols, false)
	case "add":
		c.subscribe(cmd.Symbols, true)
	case "unsubscribe":
		c.unsubscribe(cmd.Symbols)
	case "ping":
		msg, _ := json.Marshal(pong{Type: "pong", Ping: cmd.Ping, ServerTS: time.Now().UnixMilli()})
		c.trySend(msg)
		return
	default:
		return
	}
	log.Printf("[gateway] subscriber %s %s %v", c.id, cmd.Action, cmd.Symbols)
}

// trySend queues msg unless the subscriber was already dropped.
func (c *Client) trySend(msg []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
