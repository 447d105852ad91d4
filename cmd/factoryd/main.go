package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/alecthomas/kong"
	"github.com/goliatone/go-logger/glog"
	"golang.org/x/time/rate"

	"factory-floor-backend/config"
	"factory-floor-backend/internal/analytics"
	"factory-floor-backend/internal/api"
	"factory-floor-backend/internal/auth"
	"factory-floor-backend/internal/db"
	"factory-floor-backend/internal/hub"
	"factory-floor-backend/internal/lifecycle"
	"factory-floor-backend/internal/notification"
	"factory-floor-backend/internal/store"
)

var cli struct {
	Config   string `help:"Path to the YAML configuration file." default:"./config/config.yaml" env:"CONFIG_PATH" type:"path"`
	Addr     string `help:"Listen address, overriding the configured host and port." env:"ADDR"`
	LogLevel string `help:"Minimum log level." default:"info" env:"LOG_LEVEL" enum:"trace,debug,info,warn,error"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("factoryd"),
		kong.Description("Order lifecycle and machine allocation coordinator."),
	)

	logger := glog.NewLogger(
		glog.WithLoggerTypeJSON(),
		glog.WithLevel(cli.LogLevel),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		logger.Fatal("failed to load configuration from %s: %v", cli.Config, err)
	}
	logger.Info("configuration loaded from %s", cli.Config)

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret must be configured")
	}

	var webpushOptions *webpush.Options
	if cfg.Alerts.VAPIDPublicKey != "" && cfg.Alerts.VAPIDPrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Alerts.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.Alerts.VAPIDPrivateKey,
			Subscriber:      cfg.Alerts.Subject,
			TTL:             cfg.Alerts.TTL,
		}
	} else {
		logger.Info("vapid keys not configured, push alerts disabled")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize database: %v", err)
	}
	logger.Info("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, store.TransitionTablesFromStrings(
		cfg.Lifecycle.OrderTransitions, cfg.Lifecycle.MachineTransitions))

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	eventHub := hub.New(verifier, auth.ChannelACL(cfg.Hub.ChannelACL), hub.Config{
		PingInterval: time.Duration(cfg.Hub.PingIntervalSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Hub.IdleTimeoutSeconds) * time.Second,
		SendBuffer:   cfg.Hub.SendBuffer,
	}, logger)
	go eventHub.Run(ctx)

	var dispatcher lifecycle.AlertDispatcher
	if webpushOptions != nil {
		workers := notification.NewWorkerPool(cfg.Alerts.WorkerPoolSize, gormDB, webpushOptions, logger)
		workers.Start(ctx)
		dispatcher = workers
	}

	controller := lifecycle.NewController(appStore, eventHub, dispatcher, cfg.Alerts.MinSeverity, logger)

	reconciler := lifecycle.NewReconciler(controller, cfg.Lifecycle.SyncSchedule, logger)
	if err := reconciler.Start(ctx); err != nil {
		logger.Fatal("failed to start machine reconciler: %v", err)
	}

	handler := api.NewHandler(appStore, controller, analytics.NewService(gormDB), eventHub, webpushOptions)
	router := api.NewRouter(handler, verifier, api.RouterConfig{
		RateLimit: rate.Limit(cfg.Server.RateLimitPerSec),
		RateBurst: cfg.Server.RateLimitBurst,
		CacheTTL:  time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})

	addr := cli.Addr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("HTTP server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown: %v", err)
	}

	reconciler.Stop()
	cancel()

	logger.Info("server stopped")
}
