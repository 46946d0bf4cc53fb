package feed

import (
	"context"
	"sync"
)

// Hub manages client connections and broadcasts frames
type Hub interface {
	Register(conn *ClientConn)
	Unregister(conn *ClientConn)
	Broadcast(frame Frame)
	Run(ctx context.Context)
}

// ClientConn represents a connected client
type ClientConn struct {
	ID       string
	Topics   map[string]bool // subscribed topics (empty = all)
	SendChan chan Frame
}

// NewClientConn creates a new client connection with the specified buffer size
func NewClientConn(id string, bufferSize int) *ClientConn {
	return &ClientConn{
		ID:       id,
		Topics:   make(map[string]bool),
		SendChan: make(chan Frame, bufferSize),
	}
}

// SetSubscription sets the topics this client is subscribed to
func (c *ClientConn) SetSubscription(topics []string) {
	c.Topics = make(map[string]bool)
	for _, topic := range topics {
		c.Topics[topic] = true
	}
}

// ShouldReceive returns true if client should receive frames for the given topic
func (c *ClientConn) ShouldReceive(topic MessageType) bool {
	if len(c.Topics) == 0 {
		return true
	}

	return c.Topics[string(topic)]
}

// hub implements the Hub interface
type hub struct {
	bufferSize int
	clients    map[*ClientConn]bool
	register   chan *ClientConn
	unregister chan *ClientConn
	broadcast  chan Frame
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance with the specified buffer size
func NewHub(bufferSize int) Hub {
	return &hub{
		bufferSize: bufferSize,
		clients:    make(map[*ClientConn]bool),
		register:   make(chan *ClientConn),
		unregister: make(chan *ClientConn),
		broadcast:  make(chan Frame, bufferSize),
		done:       make(chan struct{}),
	}
}

// Register adds a client to the hub
func (h *hub) Register(conn *ClientConn) {
	select {
	case h.register <- conn:
	case <-h.done:
	}
}

// Unregister removes a client from the hub
func (h *hub) Unregister(conn *ClientConn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast queues a frame for all subscribed clients. Frames restate full
// state, so dropping one under pressure is safe: the next frame of the same
// topic supersedes it.
func (h *hub) Broadcast(frame Frame) {
	select {
	case h.broadcast <- frame:
	default:
	}
}

// Run starts the hub's main loop
func (h *hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()

			for client := range h.clients {
				close(client.SendChan)
				delete(h.clients, client)
			}

			h.mu.Unlock()

			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()

			if _, ok := h.clients[client]; ok {
				close(client.SendChan)
				delete(h.clients, client)
			}

			h.mu.Unlock()
		case frame := <-h.broadcast:
			h.mu.RLock()

			for client := range h.clients {
				if client.ShouldReceive(frame.Type) {
					select {
					case client.SendChan <- frame:
					default:
					}
				}
			}

			h.mu.RUnlock()
		}
	}
}
