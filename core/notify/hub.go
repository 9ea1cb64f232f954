package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

// Client is one websocket connection of a user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	UserID string
}

type delivery struct {
	n    Notification
	data []byte
}

// Hub fans notifications out to every connection of the target user. When
// the user has no open connection the notification goes to the fallback.
type Hub struct {
	users map[string]map[*Client]bool
	mu    sync.RWMutex

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}
	stopOnce   sync.Once

	fallback Notifier
	log      *zap.Logger
}

// NewHub creates a Hub. fallback may be nil.
func NewHub(fallback Notifier, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		users:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		fallback:   fallback,
		log:        log.With(zap.String("component", "notify-hub")),
	}
}

// Run is the hub's main loop; it returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case d := <-h.deliver:
			h.send(d)
		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop terminates Run and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Attach registers a new connection for userID and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, userID string) *Client {
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), UserID: userID}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return c
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Notify implements Notifier.
func (h *Hub) Notify(n Notification) {
	n = stamp(n)
	if !h.Connected(n.UserID) {
		if h.fallback != nil {
			h.fallback.Notify(n)
		}
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		h.log.Warn("failed to encode notification", zap.Error(err))
		return
	}
	select {
	case h.deliver <- delivery{n: n, data: data}:
	case <-h.done:
	}
}

// Connected reports whether userID has at least one open connection.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[*Client]bool)
	}
	h.users[c.UserID][c] = true
	h.log.Debug("client registered", zap.String("user", c.UserID))
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked requires h.mu.
func (h *Hub) removeLocked(c *Client) {
	clients, ok := h.users[c.UserID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.users, c.UserID)
	}
	h.log.Debug("client unregistered", zap.String("user", c.UserID))
}

// send writes d to every connection of its user. A user who disconnected
// after Notify queued d gets it through the fallback instead.
func (h *Hub) send(d delivery) {
	h.mu.Lock()
	clients := h.users[d.n.UserID]
	if len(clients) == 0 {
		h.mu.Unlock()
		if h.fallback != nil {
			h.fallback.Notify(d.n)
		}
		return
	}
	for c := range clients {
		select {
		case c.send <- d.data:
		default:
			// slow consumer
			h.removeLocked(c)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.users {
		for c := range clients {
			close(c.send)
		}
	}
	h.users = make(map[string]map[*Client]bool)
}

// readPump discards inbound frames; it exists to process pongs and notice
// the peer going away.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.String("user", c.UserID), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
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
