package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"factory-floor-backend/internal/model"
	"factory-floor-backend/internal/store"
)

type putAlertSubscriptionRequest struct {
	Endpoint    string `json:"endpoint" binding:"required"`
	P256DH      string `json:"p256dh" binding:"required"`
	Auth        string `json:"auth" binding:"required"`
	MinSeverity string `json:"min_severity"`
}

// PutAlertSubscription creates or replaces a push subscription. Re-sending
// an endpoint updates its keys and severity threshold.
func (h *Handler) PutAlertSubscription(c *gin.Context) {
	var req putAlertSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	sub := model.AlertSubscription{
		Endpoint:    req.Endpoint,
		P256DH:      req.P256DH,
		Auth:        req.Auth,
		MinSeverity: req.MinSeverity,
		UserID:      actor(c),
	}
	if err := h.store.UpsertAlertSubscription(c.Request.Context(), &sub); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type deleteAlertSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteAlertSubscription removes a push subscription.
func (h *Handler) DeleteAlertSubscription(c *gin.Context) {
	var req deleteAlertSubscriptionRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.store.DeleteAlertSubscription(c.Request.Context(), req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// rawQueryParam extracts a query value without URL decoding. Push endpoints
// carry percent-encoded octets; decoding would break the exact byte match
// against the stored key.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetAlertSubscription returns the stored threshold for an endpoint so the
// client can restore its settings view.
func (h *Handler) GetAlertSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		respondValidation(c, "endpoint is required")
		return
	}
	var sub model.AlertSubscription
	err := h.store.DB().WithContext(c.Request.Context()).
		First(&sub, "endpoint = ?", raw).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": store.CodeNotFound, "message": "subscription not found"},
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"min_severity": sub.MinSeverity, "user_id": sub.UserID})
}

// GetVAPIDPublicKey returns the VAPID public key browsers need to subscribe.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": "UNAVAILABLE", "message": "vapid keys are not configured"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
