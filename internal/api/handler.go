package api

import (
	webpush "github.com/SherClockHolmes/webpush-go"

	"factory-floor-backend/internal/analytics"
	"factory-floor-backend/internal/hub"
	"factory-floor-backend/internal/lifecycle"
	"factory-floor-backend/internal/store"
)

// Handler holds the dependencies shared by all API handlers.
type Handler struct {
	store     store.Store
	lifecycle *lifecycle.Controller
	reports   *analytics.Service
	hub       *hub.Hub
	webpush   *webpush.Options
}

// NewHandler creates a new API handler. The webpush options may be nil when
// push alerts are not configured; the subscription endpoints stay usable so
// browsers can register before a key rollout completes.
func NewHandler(s store.Store, ctrl *lifecycle.Controller, reports *analytics.Service, h *hub.Hub, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:     s,
		lifecycle: ctrl,
		reports:   reports,
		hub:       h,
		webpush:   webpushOptions,
	}
}
