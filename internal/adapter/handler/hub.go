package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hive-corporation/threatpulse/internal/core/domain"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/internal/core/service"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Hub message types. Alert and status_change reuse the feed envelope
// vocabulary; toast and audio only flow outwards.
const (
	hubAlert        = "alert"
	hubStatusChange = "status_change"
	hubToast        = "toast"
	hubAudio        = "audio"
)

type hubMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub fans toasts, audio cues and store events out to dashboard clients
// connected over WebSocket. It implements ports.Toaster and ports.AudioPlayer.
type Hub struct {
	upgrader websocket.Upgrader
	logger   log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub creates a hub. With no allowed origins only same-origin upgrades
// are accepted.
func NewHub(allowedOrigins []string, logger log.Logger) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed["*"] || allowed[r.Header.Get("Origin")]
		}
	}
	return h
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf(r.Context(), "handler.Hub.ServeHTTP: upgrade failed: %v", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debugf(r.Context(), "handler.Hub.ServeHTTP: client %s connected", conn.RemoteAddr())
	go c.writePump()
	go c.readPump()
}

// Toast broadcasts an in-app toast.
func (h *Hub) Toast(ctx context.Context, t ports.Toast) error {
	return h.broadcast(hubToast, t)
}

// Play asks dashboards to play a cue.
func (h *Hub) Play(ctx context.Context, cue ports.Cue) error {
	return h.broadcast(hubAudio, map[string]ports.Cue{"cue": cue})
}

// Attach forwards store events to connected clients.
func (h *Hub) Attach(store *service.Store) service.Disposer {
	return store.Subscribe(func(ev service.Event) {
		msgType := hubStatusChange
		if ev.Type == service.EventAppended {
			msgType = hubAlert
		}
		if err := h.broadcast(msgType, statusChange{Event: ev.Type, Alerts: ev.Alerts}); err != nil {
			h.logger.Warnf(context.Background(), "handler.Hub.Attach: %v", err)
		}
	})
}

type statusChange struct {
	Event  service.EventType `json:"event"`
	Alerts []domain.Alert    `json:"alerts"`
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// broadcast never blocks: a client whose buffer is full is dropped.
func (h *Hub) broadcast(msgType string, data interface{}) error {
	payload, err := json.Marshal(hubMessage{Type: msgType, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("%w: failed to encode %s message: %v", domain.ErrNotificationFailed, msgType, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			delete(h.clients, c)
			c.close()
			h.logger.Warnf(context.Background(), "handler.Hub.broadcast: dropping slow client %s", c.conn.RemoteAddr())
		}
	}
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// readPump only exists to process control frames and notice disconnects.
// Dashboards never send data.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugf(context.Background(), "handler.Hub.readPump: %v", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
