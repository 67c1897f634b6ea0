package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat"
	"github.com/mhpenta/mathchat/config"
)

// WSMessage is the envelope of every frame sent to the page.
type WSMessage struct {
	Type    string             `json:"type"`
	Payload *mathchat.Snapshot `json:"payload,omitempty"`
}

const (
	wsTypeSnapshot = "snapshot"
	writeWait      = 10 * time.Second
)

// Client is one connected page.
type Client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.conn.Close()
	}
}

// Hub pushes store snapshots to every connected page: one on connect and
// one after each change.
type Hub struct {
	store    *mathchat.Store
	cfg      config.WebSocketConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(store *mathchat.Store, cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

// checkOrigin admits requests without an Origin header, same-host pages
// and the configured AllowedOrigins.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	h.logger.Warn("websocket origin rejected", zap.String("origin", origin))
	return false
}

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every page.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

// HandleWS upgrades the request and streams snapshots until the page leaves.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{conn: conn}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("page connected", zap.String("remote", c.Request.RemoteAddr))

	updates, unsubscribe := h.store.Subscribe()
	done := make(chan struct{})

	defer func() {
		unsubscribe()
		h.mu.Lock()
		delete(h.clients, client)
		h.mu.Unlock()
		client.Close()
		h.logger.Debug("page disconnected", zap.String("remote", c.Request.RemoteAddr))
	}()

	go h.writePump(client, updates, done)
	h.readPump(client)
	close(done)
}

// readPump discards incoming frames; it exists to process control frames
// and to notice when the page goes away.
func (h *Hub) readPump(client *Client) {
	deadline := h.cfg.PingPeriod() + h.cfg.PongWait()
	client.conn.SetReadDeadline(time.Now().Add(deadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		client.conn.SetReadDeadline(time.Now().Add(deadline))
	}
}

// writePump sends the current snapshot, then every update, and pings at
// the configured interval.
func (h *Hub) writePump(client *Client, updates <-chan mathchat.Snapshot, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingPeriod())
	defer ticker.Stop()

	snap := h.store.Snapshot()
	if err := h.send(client, snap); err != nil {
		client.Close()
		return
	}

	for {
		select {
		case <-done:
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if err := h.send(client, snap); err != nil {
				client.Close()
				return
			}
		case <-ticker.C:
			if err := client.ping(); err != nil {
				h.logger.Debug("websocket ping failed", zap.Error(err))
				client.Close()
				return
			}
		}
	}
}

func (h *Hub) send(client *Client, snap mathchat.Snapshot) error {
	data, err := json.Marshal(WSMessage{Type: wsTypeSnapshot, Payload: &snap})
	if err != nil {
		return err
	}
	if err := client.write(data); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}
