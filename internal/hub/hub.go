package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"factory-floor-backend/internal/auth"
)

// Logger is the logging contract the hub needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenVerifier checks the bearer credential presented at handshake.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Event is the envelope delivered to subscribed clients and the shape of
// every server-to-client message.
type Event struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Room      string    `json:"room,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Config tunes connection liveness and buffering.
type Config struct {
	PingInterval    time.Duration
	IdleTimeout     time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.IdleTimeout <= c.PingInterval {
		c.IdleTimeout = 2 * c.PingInterval
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4096
	}
	return c
}

// Hub is the connection-oriented pub/sub broadcaster. The registry is the
// only shared in-process state of the core; it is mutated exclusively through
// register, unregister and Broadcast under the hub mutex, so connects,
// disconnects and fan-outs are safe from any goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	verifier TokenVerifier
	acl      auth.ChannelACL
	cfg      Config
	logger   Logger
	upgrader websocket.Upgrader
}

// New creates a hub verifying handshakes with the given verifier. The acl is
// treated as an override of the compiled-in role allow-lists and can only
// narrow them; nil keeps the defaults.
func New(verifier TokenVerifier, acl auth.ChannelACL, cfg Config, logger Logger) *Hub {
	acl = auth.NarrowedChannelACL(acl)
	return &Hub{
		clients:  make(map[string]*Client),
		verifier: verifier,
		acl:      acl,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards and floor tablets are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades an HTTP request and runs the handshake. The
// bearer token comes from the token query parameter or from the
// "bearer, <token>" sub-protocol list; a missing or invalid token closes the
// socket with 1008 and nothing is registered.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var responseHeader http.Header
	token, viaProtocol := bearerToken(r)
	if viaProtocol {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{"bearer"}}
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		h.logger.Error("websocket upgrade failed: %v", err)
		return
	}

	claims, err := h.verifier.Verify(token)
	if err != nil {
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
		return
	}

	client := &Client{
		ID:       uuid.NewString(),
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.cfg.SendBuffer),
		channels: make(map[string]bool),
	}
	client.touch()

	h.register(client)
	go client.writePump()
	go client.readPump()

	client.sendMessage(Event{
		Type: "welcome",
		Data: map[string]any{
			"connection_id":    client.ID,
			"username":         client.Username,
			"role":             client.Role,
			"allowed_channels": h.acl.Channels(client.Role),
		},
		Timestamp: time.Now(),
	})
}

// bearerToken extracts the credential and reports whether the client offered
// the bearer sub-protocol. Only an offered sub-protocol may be echoed back in
// the upgrade response; selecting one the client never asked for breaks
// strict clients.
func bearerToken(r *http.Request) (string, bool) {
	protocols := websocket.Subprotocols(r)
	offered := false
	for i, p := range protocols {
		if p == "bearer" {
			offered = true
			if i+1 < len(protocols) {
				return protocols[i+1], true
			}
		}
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, offered
	}
	return "", offered
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client %s connected (user=%s role=%s), %d online", c.ID, c.Username, c.Role, total)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.ID]
	if present {
		delete(h.clients, c.ID)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if present {
		c.shutdown()
		h.logger.Info("client %s disconnected, %d online", c.ID, total)
	}
}

// ACL returns the channel allow-lists the hub enforces, after narrowing.
// Callers validating channels must consult this rather than the compiled-in
// defaults so REST and subscriptions agree on what exists.
func (h *Hub) ACL() auth.ChannelACL {
	return h.acl
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast fans an event out to every connected client subscribed to its
// channel (or to "all"), narrowed by room when the event carries one. It is
// fire-and-forget: clients whose send buffer is full are dropped and the
// failure never reaches the caller; the authoritative state has already
// committed.
func (h *Hub) Broadcast(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshal broadcast %s: %v", evt.Type, err)
		return
	}

	var stale []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.wants(evt.Channel, evt.Room) {
			continue
		}
		if !c.enqueue(payload) {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Info("client %s send buffer full, dropping connection", c.ID)
		h.unregister(c)
		_ = c.conn.Close()
	}
}

// Run sweeps the registry until the context is cancelled, evicting clients
// whose last activity exceeds the idle timeout. The read deadline already
// kills silent sockets; the sweeper is the registry-level backstop that keeps
// it from growing without bound.
func (h *Hub) Run(ctx context.Context) {
	interval := h.cfg.PingInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-timer.C:
			h.evictIdle()
			timer.Reset(interval)
		}
	}
}

func (h *Hub) evictIdle() {
	cutoff := time.Now().Add(-h.cfg.IdleTimeout)
	var idle []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if c.lastActive().Before(cutoff) {
			idle = append(idle, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range idle {
		h.logger.Info("client %s idle past %s, evicting", c.ID, h.cfg.IdleTimeout)
		h.unregister(c)
		_ = c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
		_ = c.conn.Close()
	}
}

// subscribe applies the role ACL to the requested channels and returns the
// accepted and rejected lists. Channels outside the allow-list are rejected
// per-subscription, not fatal to the connection. The wildcard "all" is
// reserved for admins.
func (h *Hub) subscribe(c *Client, requested []string) (accepted, rejected []string) {
	for _, ch := range requested {
		allowed := false
		if ch == "all" {
			allowed = c.Role == auth.RoleAdmin
		} else {
			allowed = h.acl.Allowed(c.Role, ch)
		}
		if allowed {
			accepted = append(accepted, ch)
		} else {
			rejected = append(rejected, ch)
		}
	}
	c.addChannels(accepted)
	return accepted, rejected
}
