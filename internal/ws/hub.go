package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub tracks active WebSocket connections by user ID. One connection per
// user: a new connection replaces (and closes) the previous one.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates the hub and starts its management loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("WSHub"),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.userID]; ok {
				h.logger.Debug("Replacing existing connection", zap.String("userID", client.userID))
				close(old.send)
				_ = old.conn.Close()
			}
			h.clients[client.userID] = client
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("userID", client.userID))

		case client := <-h.unregister:
			h.mu.Lock()
			// A replaced connection unregisters after its successor has
			// taken the slot; tear down only if this client still owns it.
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", zap.String("userID", client.userID))
		}
	}
}

// SendToUser queues a message for the user's connection. Returns false
// when the user is offline or their send queue is full.
func (h *Hub) SendToUser(userID string, message []byte) bool {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		h.logger.Warn("Send queue full, dropping message", zap.String("userID", userID))
		return false
	}
}
