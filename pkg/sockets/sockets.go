package sockets

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans text messages out to every connected websocket client.
type Hub struct {
	upgrader     websocket.Upgrader
	mu           sync.Mutex
	clients      map[*client]struct{}
	closed       bool
	pingInterval time.Duration
	writeTimeout time.Duration
	sendBuffer   int
	onError      func(err error)
	onConnected  func(remote string)
}

type client struct {
	ws   *websocket.Conn
	send chan []byte
	once sync.Once
}

func New(opts ...func(*Hub)) *Hub {
	h := &Hub{
		clients:      make(map[*client]struct{}),
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
		sendBuffer:   16,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Hub) reportErr(err error) {
	if err != nil && h.onError != nil {
		h.onError(err)
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.reportErr(err)
		return
	}
	c := &client{ws: ws, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	if h.onConnected != nil {
		h.onConnected(ws.RemoteAddr().String())
	}

	go h.writeLoop(c)
	// client messages are ignored, reading only notices the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	var ping <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(h.writeTimeout))
				_ = c.ws.Close()
				return
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.reportErr(err)
				h.remove(c)
				_ = c.ws.Close()
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				h.remove(c)
				_ = c.ws.Close()
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.once.Do(func() { close(c.send) })
	}
}

// Broadcast queues msg for every client. A client whose queue is full is dropped.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			c.once.Do(func() { close(c.send) })
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.once.Do(func() { close(c.send) })
	}
	return nil
}
