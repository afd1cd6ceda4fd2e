package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dossierlabs/dossier/internal/engine"
	"github.com/dossierlabs/dossier/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, no cross-origin policy
	},
}

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	clientBufferSz = 16
)

// wsClient is one subscriber. Writes go through its buffered channel so
// a slow reader never blocks the broadcast path.
type wsClient struct {
	conn   *websocket.Conn
	send   chan engine.Progress
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub fans investigation progress out to WebSocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		log:     log,
	}
}

// Broadcast delivers a progress event to every subscriber. Never
// blocks; clients that cannot keep up lose events.
func (h *Hub) Broadcast(p engine.Progress) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- p:
		default:
		}
	}
}

// HandleWS upgrades the request and streams progress events until the
// client disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	client := &wsClient{
		conn:   conn,
		send:   make(chan engine.Progress, clientBufferSz),
		ctx:    ctx,
		cancel: cancel,
	}

	h.add(client)
	metrics.WebSocketConnections.Inc()
	h.log.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.readLoop(client)
	h.writeLoop(client)

	h.remove(client)
	metrics.WebSocketConnections.Dec()
	conn.Close()
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.cancel()
}

// readLoop drains inbound frames so pongs and close frames are
// processed; the stream is one-way otherwise.
func (h *Hub) readLoop(c *wsClient) {
	defer c.cancel()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case p := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(p); err != nil {
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
