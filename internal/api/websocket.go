package api

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsMessage is the envelope every server-pushed WebSocket frame carries.
type wsMessage struct {
	Channel   string `json:"channel"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// Client is one connected WebSocket subscriber.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// NewClient wraps conn as a hub-managed Client.
func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[string]bool),
	}
}

// Hub fans out channel-addressed messages to subscribed clients: a
// register/unregister channel pair plus a periodic heartbeat, mirroring
// event-bus topics to subscribed WebSocket clients.
type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	clients  map[*Client]bool
	channels map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
}

// NewHub constructs a Hub and starts its registration loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		logger:     logger.Named("ws-hub"),
		clients:    make(map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				for channel := range client.subs {
					delete(h.channels[channel], client)
				}
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- []byte(`{"channel":"heartbeat"}`):
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Subscribe adds client to channel's fan-out set.
func (h *Hub) Subscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Client]bool)
	}
	h.channels[channel][client] = true

	client.mu.Lock()
	client.subs[channel] = true
	client.mu.Unlock()
}

// Unsubscribe removes client from channel's fan-out set.
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels[channel], client)

	client.mu.Lock()
	delete(client.subs, channel)
	client.mu.Unlock()
}

// PublishToChannel sends data to every client subscribed to channel.
func (h *Hub) PublishToChannel(channel string, data any) {
	msg, err := json.Marshal(wsMessage{Channel: channel, Data: data, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		h.logger.Error("failed to marshal ws message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.channels[channel] {
		select {
		case client.send <- msg:
		default:
		}
	}
}

// ClientCount reports how many clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every connected client, used during server shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.conn.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var req struct {
			Action  string `json:"action"` // "subscribe" | "unsubscribe"
			Channel string `json:"channel"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		switch req.Action {
		case "subscribe":
			c.hub.Subscribe(c, req.Channel)
		case "unsubscribe":
			c.hub.Unsubscribe(c, req.Channel)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
