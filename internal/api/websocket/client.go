package websocket

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

// Stream selects which messages a client receives.
type Stream string

const (
	// StreamLive carries every event.
	StreamLive Stream = "live"
	// StreamStatus carries system status snapshots only.
	StreamStatus Stream = "status"
)

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
	stream Stream

	mu       sync.RWMutex
	sessions map[string]bool
}

type clientCommand struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
}

// wants reports whether msg should be delivered to the client.
func (c *Client) wants(msg Message) bool {
	if c.stream == StreamStatus {
		return msg.Type == MessageTypeSystemStatus
	}
	if msg.session == "" {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions) == 0 || c.sessions[msg.session]
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			break
		}

		c.handleCommand(cmd)
	}
}

// handleCommand applies subscribe, unsubscribe and ping commands. A client
// with no subscriptions receives events of every session.
func (c *Client) handleCommand(cmd clientCommand) {
	c.logger.Debug("Received client message",
		zap.String("remote_addr", c.remoteAddr()),
		zap.String("type", cmd.Type))

	switch cmd.Type {
	case "subscribe":
		if cmd.SessionID == "" {
			c.hub.sendTo(c, NewMessage(MessageTypeError, ErrorData{Message: "session_id is required"}))
			return
		}
		c.mu.Lock()
		c.sessions[cmd.SessionID] = true
		c.mu.Unlock()
		c.hub.sendTo(c, NewMessage(MessageTypeSubscribed, SubscribedData{Sessions: c.subscriptions()}))

	case "unsubscribe":
		c.mu.Lock()
		if cmd.SessionID == "" {
			c.sessions = make(map[string]bool)
		} else {
			delete(c.sessions, cmd.SessionID)
		}
		c.mu.Unlock()
		c.hub.sendTo(c, NewMessage(MessageTypeSubscribed, SubscribedData{Sessions: c.subscriptions()}))

	case "ping":
		c.hub.sendTo(c, NewMessage(MessageTypePong, nil))

	default:
		c.hub.sendTo(c, NewMessage(MessageTypeError, ErrorData{Message: "unknown command " + cmd.Type}))
	}
}

func (c *Client) subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// writePump handles writing messages to the WebSocket connection
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
				// Hub closed the channel
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

// ServeWs upgrades the request and attaches the connection to the hub.
func ServeWs(hub *Hub, stream Stream, allowedOrigins []string, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		logger:   hub.logger,
		stream:   stream,
		sessions: make(map[string]bool),
	}

	// Status clients get a snapshot right away.
	if stream == StreamStatus && hub.statusProvider != nil {
		if data, err := json.Marshal(NewSystemStatusMessage(hub.statusProvider.GetStatus())); err == nil {
			client.send <- data
		}
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()
}

// originChecker allows same-host requests, requests without an Origin
// header, and any origin listed in allowed ("*" allows all).
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
