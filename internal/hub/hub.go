package hub

import (
	"log"
	"sync"
)

// JSONWriter is the slice of *websocket.Conn the hub needs to deliver a
// payload. Tests substitute a capturing fake.
type JSONWriter interface {
	WriteJSON(v interface{}) error
}

// sendBuffer bounds the per-connection outbound queue. A client that falls
// further behind than this starts losing pushes; it can re-request sidebar
// and history, so dropping is safe.
const sendBuffer = 64

// Client is one live websocket connection bound to one user. All writes go
// through the send channel and a single write pump, since the underlying
// websocket connection does not allow concurrent writers.
type Client struct {
	ID     string
	UserID string

	conn JSONWriter
	send chan interface{}
	done chan struct{}
	once sync.Once
}

func (c *Client) writeLoop() {
	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteJSON(payload); err != nil {
				log.Printf("hub: write to user %s failed: %v", c.UserID, err)
			}
		case <-c.done:
			return
		}
	}
}

// close stops the write pump. The websocket itself is closed by the read
// loop that owns it.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) enqueue(payload interface{}) {
	select {
	case c.send <- payload:
	default:
		log.Printf("hub: send buffer full, dropping payload for user %s", c.UserID)
	}
}

// Hub routes payloads to every live connection of a target user. Delivery is
// fire and forget: no queueing for offline users, no replay on reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // userID -> live clients
}

func New() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

// Register binds a connection to userID and starts its write pump.
func (h *Hub) Register(connID, userID string, conn JSONWriter) *Client {
	c := &Client{
		ID:     connID,
		UserID: userID,
		conn:   conn,
		send:   make(chan interface{}, sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	return c
}

// Unregister removes the client and stops its write pump. In-flight store
// results addressed to it are silently dropped from here on.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	h.mu.Unlock()

	c.close()
}

// SendTo enqueues payload for a single connection.
func (h *Hub) SendTo(c *Client, payload interface{}) {
	c.enqueue(payload)
}

// SendToUser enqueues payload for every live connection of userID. A user
// with no connections receives nothing.
func (h *Hub) SendToUser(userID string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		c.enqueue(payload)
	}
}

// BroadcastAll enqueues payload for every live connection of every user.
func (h *Hub) BroadcastAll(payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, set := range h.clients {
		for c := range set {
			c.enqueue(payload)
		}
	}
}

// ConnectionCount returns the number of live connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
