// Package ws pushes playback snapshots and station statuses to dashboard
// clients over WebSocket.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/couchcryptid/tsunami-playback-service/internal/playback"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	TypePlayback = "playback"
	TypeStations = "stations"

	sendBuffer = 64
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Message is the envelope for everything the hub sends.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PlaybackSource reports the current playback state.
type PlaybackSource interface {
	State() playback.State
}

// StatusSource lists the current station statuses.
type StatusSource interface {
	All() []domain.StationStatus
}

// Hub fans messages out to connected clients. Each client has a buffered
// send queue drained by its own writer goroutine; a client whose queue is
// full is disconnected rather than allowed to stall the broadcaster.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	playback PlaybackSource
	statuses StatusSource
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. Snapshots taken while playing are limited to
// perSecond; other snapshots are always delivered.
func NewHub(pb PlaybackSource, statuses StatusSource, perSecond float64, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		playback: pb,
		statuses: statuses,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
	}
}

// OnState forwards a playback snapshot. Register it with Clock.Subscribe.
func (h *Hub) OnState(s playback.State) {
	if s.IsPlaying && !h.limiter.Allow() {
		return
	}
	h.broadcast(Message{Type: TypePlayback, Data: s})
}

// BroadcastStations forwards station status changes.
func (h *Hub) BroadcastStations(changes []domain.StationStatus) {
	h.broadcast(Message{Type: TypeStations, Data: changes})
}

// ServeHTTP upgrades the request and registers the client. The client first
// receives the current playback state and the full station list, followed by
// every broadcast made after that snapshot.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	// The initial sync is queued under h.mu so no broadcast can land between
	// the snapshot and the registration.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	for _, msg := range []Message{
		{Type: TypePlayback, Data: h.playback.State()},
		{Type: TypeStations, Data: h.statuses.All()},
	} {
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("encode initial websocket message", "error", err, "type", msg.Type)
			continue
		}
		c.send <- data
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.WebsocketClients.Set(float64(n))
	h.logger.Info("dashboard client connected", "remote_addr", conn.RemoteAddr().String(), "clients", n)

	go h.writePump(c)
	h.readPump(c)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.metrics.WebsocketClients.Set(0)
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode websocket message", "error", err, "type", msg.Type)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.removeLocked(c)
			h.metrics.WebsocketDrops.Inc()
			h.logger.Warn("dropping slow dashboard client")
		}
	}
	h.metrics.WebsocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.removeLocked(c)
	h.metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// removeLocked closes the client's queue; its writer then closes the socket.
func (h *Hub) removeLocked(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
