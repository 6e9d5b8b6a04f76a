package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/EcoShareCore/internal/devices"
	"github.com/KevinKickass/EcoShareCore/internal/onboarding"
	"github.com/KevinKickass/EcoShareCore/internal/types"
	"go.uber.org/zap"
)

// StatusProvider supplies the snapshot sent to status stream clients.
type StatusProvider interface {
	GetStatus() any
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Replies addressed to a single client
	direct chan envelope

	// Closed when Run returns
	done chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger

	statusProvider StatusProvider
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan envelope, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
	}
}

func (h *Hub) SetStatusProvider(provider StatusProvider) {
	h.statusProvider = provider
}

// Run starts the hub's main event loop. It closes every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.String("stream", string(client.stream)),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case env := <-h.direct:
			h.mu.Lock()
			if _, ok := h.clients[env.client]; ok {
				select {
				case env.client.send <- env.data:
				default:
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(message) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.remoteAddr()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

type envelope struct {
	client *Client
	data   []byte
}

func (h *Hub) sendTo(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal reply", zap.Error(err))
		return
	}
	select {
	case h.direct <- envelope{client: c, data: data}:
	default:
		h.logger.Warn("Hub reply channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// OnboardingChanged publishes an onboarding session state change.
func (h *Hub) OnboardingChanged(status onboarding.Status, previous onboarding.State) {
	h.Broadcast(NewOnboardingStateMessage(status, previous))
}

// DeviceChanged publishes a device record event.
func (h *Hub) DeviceChanged(event string, device types.Device) {
	var msgType MessageType
	switch event {
	case devices.EventCreated:
		msgType = MessageTypeDeviceCreated
	case devices.EventUpdated:
		msgType = MessageTypeDeviceUpdated
	case devices.EventDeleted:
		msgType = MessageTypeDeviceDeleted
	default:
		h.logger.Warn("Unknown device event", zap.String("event", event))
		return
	}
	h.Broadcast(NewDeviceMessage(msgType, device))
}

// PublishStatus pushes the current system status to status stream clients.
func (h *Hub) PublishStatus() {
	if h.statusProvider == nil {
		return
	}
	h.Broadcast(NewSystemStatusMessage(h.statusProvider.GetStatus()))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var (
	_ onboarding.Notifier = (*Hub)(nil)
	_ devices.Notifier    = (*Hub)(nil)
)
