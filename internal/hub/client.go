package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is the in-memory state of one authenticated connection. It lives
// exactly as long as the socket: registered after a verified handshake,
// destroyed on disconnect or idle eviction, never persisted.
type Client struct {
	ID       string
	UserID   int64
	Username string
	Role     string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	channels map[string]bool
	room     string
	closed   bool

	lastSeen atomic.Int64
}

// enqueue queues a payload unless the client is shut down or its buffer is
// full. The mutex serializes enqueues against shutdown, so nothing ever
// writes to a closed channel.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *Client) lastActive() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// wants reports whether a broadcast on the given channel and room should
// reach this client.
func (c *Client) wants(channel, room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.channels[channel] && !c.channels["all"] {
		return false
	}
	if room != "" && c.room != room {
		return false
	}
	return true
}

func (c *Client) addChannels(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		c.channels[ch] = true
	}
}

func (c *Client) removeChannels(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, ch)
	}
}

func (c *Client) currentChannels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

// sendMessage queues a server message, dropping it when the buffer is full.
func (c *Client) sendMessage(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		c.hub.logger.Error("marshal %s for client %s: %v", evt.Type, c.ID, err)
		return
	}
	c.enqueue(payload)
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// readPump consumes client requests until the socket dies or goes silent
// past the idle timeout.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Info("client %s read error: %v", c.ID, err)
			}
			return
		}
		c.touch()
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.IdleTimeout))
		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("malformed message")
		return
	}

	switch msg.Type {
	case "subscribe":
		var data struct {
			Channels []string `json:"channels"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil || len(data.Channels) == 0 {
			c.sendError("subscribe requires data.channels")
			return
		}
		accepted, rejected := c.hub.subscribe(c, data.Channels)
		c.sendMessage(Event{
			Type: "subscription_confirmed",
			Data: map[string]any{
				"accepted": emptyIfNil(accepted),
				"rejected": emptyIfNil(rejected),
				"channels": c.currentChannels(),
			},
			Timestamp: time.Now(),
		})

	case "unsubscribe":
		var data struct {
			Channels []string `json:"channels"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil || len(data.Channels) == 0 {
			c.sendError("unsubscribe requires data.channels")
			return
		}
		c.removeChannels(data.Channels)
		c.sendMessage(Event{
			Type: "subscription_confirmed",
			Data: map[string]any{
				"accepted": []string{},
				"rejected": []string{},
				"channels": c.currentChannels(),
			},
			Timestamp: time.Now(),
		})

	case "join_room":
		var data struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil || data.Room == "" {
			c.sendError("join_room requires data.room")
			return
		}
		c.setRoom(data.Room)
		c.sendMessage(Event{
			Type:      "room_joined",
			Data:      map[string]any{"room": data.Room},
			Timestamp: time.Now(),
		})

	case "leave_room":
		c.setRoom("")
		c.sendMessage(Event{Type: "room_left", Timestamp: time.Now()})

	case "ping":
		c.sendMessage(Event{Type: "pong", Timestamp: time.Now()})

	case "heartbeat":
		c.sendMessage(Event{
			Type:      "heartbeat_ack",
			Data:      map[string]any{"server_time": time.Now().UTC()},
			Timestamp: time.Now(),
		})

	default:
		c.sendError("unknown message type " + msg.Type)
	}
}

func (c *Client) sendError(message string) {
	c.sendMessage(Event{
		Type:      "error",
		Data:      map[string]any{"message": message},
		Timestamp: time.Now(),
	})
}

// writePump drains the send queue and probes the peer on a ticker. A failed
// write or a closed send channel ends the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.hub.logger.Info("client %s write failed: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
