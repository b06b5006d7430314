package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   1024,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// Hub fans published signals out to connected WebSocket clients and
// keeps the last signal per symbol for initial state on connect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	latest  map[string]latestEntry
	seq     int64
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]bool),
		latest:  make(map[string]latestEntry),
	}
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast wraps one signal payload in a channel envelope and sends
// it to every client subscribed to the symbol. Slow clients drop the
// frame rather than stall the fan-out.
func (h *Hub) Broadcast(symbol string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	env := buildEnvelope("signals:"+symbol, data, now, h.seq)
	h.latest[symbol] = latestEntry{Data: append([]byte(nil), data...), TS: now}
	for c := range h.clients {
		if !c.wants(symbol) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
	h.mu.Unlock()
}

// buildEnvelope hand-crafts the WS envelope JSON so the hot broadcast
// path does not pay for reflection:
// {"channel":"...","data":...,"ts":"...","seq":N}
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+128)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// AddClient registers an upgraded connection and starts its pumps.
// An empty symbols list subscribes the client to every symbol.
func (h *Hub) AddClient(conn *websocket.Conn, symbols []string) {
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	c.setSymbols(symbols)
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	slog.Debug("ws client connected", "total", count)

	go c.sendInitialState()
	go c.writePump()
	go c.readPump()
}

func (h *Hub) removeClient(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// wsClient is a single WebSocket peer with an optional symbol filter.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.RWMutex
	symbols map[string]bool // empty means all symbols
}

func (c *wsClient) setSymbols(symbols []string) {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = true
		}
	}
	c.mu.Lock()
	c.symbols = set
	c.mu.Unlock()
}

func (c *wsClient) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// sendInitialState replays the last known signal per subscribed symbol
// so a fresh client renders without waiting for the next evaluation.
func (c *wsClient) sendInitialState() {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for symbol, entry := range c.hub.latest {
		if !c.wants(symbol) {
			continue
		}
		envelope, _ := json.Marshal(map[string]interface{}{
			"channel": "signals:" + symbol,
			"data":    entry.Data,
			"ts":      entry.TS.Format(time.RFC3339Nano),
			"initial": true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Write coalescing: batch queued messages into a single
			// frame with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
		slog.Debug("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var req struct {
			Symbols []string `json:"symbols"`
			Ping    int64    `json:"ping"`
		}
		if json.Unmarshal(msg, &req) != nil {
			continue
		}
		if req.Ping > 0 {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      req.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			select {
			case c.send <- pong:
			default:
			}
			continue
		}
		if req.Symbols != nil {
			c.setSymbols(req.Symbols)
		}
	}
}

// handleWS upgrades to WebSocket. The optional symbols query parameter
// restricts the stream, e.g. /ws/signals?symbols=BTC,ETH.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}
	var symbols []string
	if raw := r.URL.Query().Get("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}
	s.hub.AddClient(conn, symbols)
}
