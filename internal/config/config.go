package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all agent configuration.
type Config struct {
	Agent     AgentConfig
	Rewrite   RewriteConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
	Vault     VaultConfig
	Logging   LogConfig
}

// AgentConfig holds identity and storage settings for the agent process.
type AgentConfig struct {
	Page      string `envconfig:"AGENT_PAGE" default:"/"`
	UserAgent string `envconfig:"AGENT_USER_AGENT" default:"PageAgent/1.0"`
	StorePath string `envconfig:"AGENT_STORE_PATH" default:""`
	LoginPath string `envconfig:"AGENT_LOGIN_PATH" default:"/login"`
}

// RewriteConfig holds the endpoints driving the URL rewrite rules.
type RewriteConfig struct {
	Origin        string   `envconfig:"PAGE_ORIGIN" default:"https://app.relay.local"`
	AuthSuffix    string   `envconfig:"AUTH_SUFFIX" default:"/Login"`
	RelayAuthPath string   `envconfig:"RELAY_AUTH_PATH" default:"/RPC/Login"`
	DataMarker    string   `envconfig:"DATA_MARKER" default:"public_IndexData"`
	RelayDataPath string   `envconfig:"RELAY_DATA_PATH" default:"/RPC/public_IndexData"`
	APIPrefix     string   `envconfig:"API_PREFIX" default:"/RPC/"`
	UpstreamBase  string   `envconfig:"UPSTREAM_BASE" default:"https://203.0.113.10"`
	LegacyHosts   []string `envconfig:"LEGACY_HOSTS" default:"www.legacy-api1.example,www.legacy-api2.example"`
}

// SessionConfig holds operator channel configuration.
type SessionConfig struct {
	URL               string        `envconfig:"CHANNEL_URL" default:"wss://app.relay.local/chat/ws"`
	HeartbeatInterval time.Duration `envconfig:"CHANNEL_HEARTBEAT" default:"30s"`
	ReconnectDelay    time.Duration `envconfig:"CHANNEL_RECONNECT_DELAY" default:"5s"`
}

// TelemetryConfig holds the report ingest endpoint.
type TelemetryConfig struct {
	ReportURL string `envconfig:"REPORT_URL" default:"https://app.relay.local/api/report"`
}

// VaultConfig holds credential persistence settings.
type VaultConfig struct {
	TTL time.Duration `envconfig:"VAULT_TTL" default:"720h"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Page:      "/",
			UserAgent: "PageAgent/1.0",
			LoginPath: "/login",
		},
		Rewrite: RewriteConfig{
			Origin:        "https://app.relay.local",
			AuthSuffix:    "/Login",
			RelayAuthPath: "/RPC/Login",
			DataMarker:    "public_IndexData",
			RelayDataPath: "/RPC/public_IndexData",
			APIPrefix:     "/RPC/",
			UpstreamBase:  "https://203.0.113.10",
			LegacyHosts:   []string{"www.legacy-api1.example", "www.legacy-api2.example"},
		},
		Session: SessionConfig{
			URL:               "wss://app.relay.local/chat/ws",
			HeartbeatInterval: 30 * time.Second,
			ReconnectDelay:    5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ReportURL: "https://app.relay.local/api/report",
		},
		Vault: VaultConfig{
			TTL: 720 * time.Hour,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
