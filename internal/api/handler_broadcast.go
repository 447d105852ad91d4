package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/hub"
)

type broadcastRequest struct {
	Type    string `json:"type" binding:"required"`
	Channel string `json:"channel" binding:"required"`
	Room    string `json:"room"`
	Data    any    `json:"data"`
}

// Broadcast publishes an operator-authored event to connected clients.
// Delivery is fan-out to whoever is subscribed right now; there is no queue
// behind it.
func (h *Handler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if !bindJSON(c, &req) {
		return
	}
	if !h.hub.ACL().Allowed(auth.RoleAdmin, req.Channel) {
		respondValidation(c, "unknown channel "+req.Channel)
		return
	}
	h.hub.Broadcast(hub.Event{
		Type:    req.Type,
		Channel: req.Channel,
		Room:    req.Room,
		Data:    req.Data,
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "connected_clients": h.hub.Count()})
}

// WebSocket hands the request to the hub for upgrade and lifetime handling.
func (h *Handler) WebSocket(c *gin.Context) {
	h.hub.HandleConnection(c.Writer, c.Request)
}
