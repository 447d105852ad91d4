package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Hub       HubConfig       `yaml:"hub"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Alerts    AlertsConfig    `yaml:"alerts"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Host            string  `yaml:"host"`
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// AuthConfig holds the token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// HubConfig tunes the websocket hub. Zero values fall back to the hub's
// compiled-in defaults.
type HubConfig struct {
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds"`
	SendBuffer          int `yaml:"send_buffer"`
	// ChannelACL overrides the role allow-lists. It can only narrow what a
	// role may subscribe to; unknown channels never gain subscribers.
	ChannelACL map[string][]string `yaml:"channel_acl"`
}

// LifecycleConfig tunes order and machine state handling.
type LifecycleConfig struct {
	// SyncSchedule is a cron expression for the reconciliation pass.
	SyncSchedule string `yaml:"sync_schedule"`
	// Transition overrides narrow the compiled-in lifecycle graphs.
	OrderTransitions   map[string][]string `yaml:"order_transitions"`
	MachineTransitions map[string][]string `yaml:"machine_transitions"`
}

// AlertsConfig holds the web push alert settings. Push is disabled when the
// VAPID keys are absent; subscriptions are still accepted.
type AlertsConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subject         string `yaml:"subject"`
	TTL             int    `yaml:"ttl"`
	WorkerPoolSize  int    `yaml:"worker_pool_size"`
	// MinSeverity is the paging floor; incidents below it are broadcast but
	// never pushed.
	MinSeverity string `yaml:"min_severity"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	if cfg.Alerts.TTL <= 0 {
		cfg.Alerts.TTL = 3600
	}
	if cfg.Alerts.WorkerPoolSize <= 0 {
		cfg.Alerts.WorkerPoolSize = 4
	}

	return &cfg, nil
}
