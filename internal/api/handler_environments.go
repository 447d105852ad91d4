package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListEnvironments returns per-zone machine counts broken down by status.
func (h *Handler) ListEnvironments(c *gin.Context) {
	envs, err := h.store.ListEnvironments(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"environments": envs, "count": len(envs)})
}
