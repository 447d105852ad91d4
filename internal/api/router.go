package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/mw"
)

// RouterConfig carries the HTTP tunables.
type RouterConfig struct {
	// RateLimit is the sustained per-caller request rate; RateBurst the bucket size.
	RateLimit rate.Limit
	RateBurst int
	// CacheTTL bounds how stale the cached list and report endpoints may serve.
	CacheTTL time.Duration
}

func (cfg RouterConfig) withDefaults() RouterConfig {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(10)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return cfg
}

// NewRouter creates and configures a new Gin router: the REST surface under
// /api, the websocket upgrade at /ws and an unauthenticated health probe.
func NewRouter(h *Handler, verifier *auth.Verifier, cfg RouterConfig) *gin.Engine {
	cfg = cfg.withDefaults()

	r := gin.Default()

	rateLimiter := mw.RateLimiter(cfg.RateLimit, cfg.RateBurst)
	cacheStore := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": h.hub.Count()})
	})

	// The hub does its own token check during the upgrade handshake.
	r.GET("/ws", h.WebSocket)

	api := r.Group("/api")
	api.Use(mw.Authenticate(verifier), rateLimiter)
	{
		api.POST("/orders", h.CreateOrder)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders/:id/start", h.StartOrder)
		api.POST("/orders/:id/pause", h.PauseOrder)
		api.POST("/orders/:id/resume", h.ResumeOrder)
		api.POST("/orders/:id/stop", h.StopOrder)
		api.POST("/orders/:id/complete", h.CompleteOrder)
		api.POST("/orders/:id/cancel", mw.RequireRole(auth.RoleSupervisor), h.CancelOrder)
		api.POST("/orders/:id/quantity", h.ReportQuantity)

		api.GET("/machines", caching, h.ListMachines)
		api.POST("/machines", mw.RequireRole(auth.RoleAdmin), h.CreateMachine)
		api.GET("/machines/:id", h.GetMachine)
		api.PATCH("/machines/:id/status", mw.RequireRole(auth.RoleSupervisor), h.SetMachineStatus)
		api.POST("/machines/sync-statuses", mw.RequireRole(auth.RoleSupervisor), h.SyncMachineStatuses)

		api.GET("/environments", caching, h.ListEnvironments)

		api.POST("/downtime", h.LogDowntime)
		api.GET("/downtime", h.ListDowntime)
		api.POST("/downtime/:id/resolve", h.ResolveDowntime)

		api.POST("/waste", h.LogWaste)
		api.GET("/waste", h.ListWaste)

		reports := api.Group("/analytics")
		reports.Use(mw.RequireRole(auth.RoleSupervisor))
		{
			reports.GET("/oee", caching, h.GetOEE)
			reports.GET("/downtime", caching, h.GetDowntimeSummary)
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("/subscriptions", h.GetAlertSubscription)
			alerts.PUT("/subscriptions", h.PutAlertSubscription)
			alerts.DELETE("/subscriptions", h.DeleteAlertSubscription)
			alerts.GET("/vapid-key", h.GetVAPIDPublicKey)
		}

		api.POST("/broadcast", mw.RequireRole(auth.RoleAdmin), h.Broadcast)
	}

	return r
}
