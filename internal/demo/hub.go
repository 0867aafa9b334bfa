package demo

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/pkg/event"
	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/clock"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pingPeriod   = 30 * time.Second
)

// Authenticator resolves a bearer token to its user.
type Authenticator func(token string) (backend.User, error)

// Hub pushes realtime envelopes to websocket clients and, when a publisher
// is set, mirrors them to the message bus.
type Hub struct {
	auth      Authenticator
	publisher events.Publisher
	clock     clock.Clock
	logger    aqm.Logger
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

type wsClient struct {
	id     string
	userID string
	role   string
	conn   *websocket.Conn
	send   chan []byte
}

func NewHub(auth Authenticator, publisher events.Publisher, clk clock.Clock, logger aqm.Logger) *Hub {
	if logger == nil {
		logger = aqm.NewNoopLogger()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Hub{
		auth:      auth,
		publisher: publisher,
		clock:     clk,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*wsClient),
	}
}

// ServeHTTP upgrades an authenticated request to a websocket.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if h.auth != nil {
		if _, err := h.auth(token); err != nil {
			aqm.RespondError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		id:     uuid.NewString(),
		userID: r.URL.Query().Get("user_id"),
		role:   r.URL.Query().Get("role"),
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast wraps payload in an envelope and fans it out. Slow clients miss
// the event instead of blocking the others.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	env, err := event.NewEnvelope(topic, payload, h.clock.Now().UTC())
	if err != nil {
		h.logger.Error("cannot build realtime envelope", "topic", topic, "error", err)
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("cannot marshal realtime envelope", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	for id, c := range h.clients {
		select {
		case c.send <- raw:
		default:
			h.logger.Info("client channel full, dropping event", "client_id", id, "topic", topic)
		}
	}
	h.mu.RUnlock()

	if h.publisher != nil {
		if err := h.publisher.Publish(context.Background(), event.Subject(topic), raw); err != nil {
			h.logger.Error("cannot publish realtime event", "topic", topic, "error", err)
		}
	}
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Start(ctx context.Context) error {
	h.logger.Info("realtime hub started")
	return nil
}

// Stop disconnects every client.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.logger.Info("realtime hub stopped")
	return nil
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "client_id", c.id, "user_id", c.userID, "role", c.role, "total_clients", total)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		close(c.send)
		delete(h.clients, c.id)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client disconnected", "client_id", c.id, "total_clients", total)
}

func (h *Hub) readPump(c *wsClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(4096)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
