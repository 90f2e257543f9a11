// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Service config
	Environment string `json:"environment"`
	MetricsPort int    `json:"metrics_port"`
	LogLevel    string `json:"log_level"`

	// Upstream API
	APIBaseURL string `json:"api_base_url"`
	HubURL     string `json:"hub_url"` // derived from APIBaseURL when empty

	// Feed behavior
	Depth         int           `json:"depth"`
	FrameInterval time.Duration `json:"frame_interval"`
	TradeTapeSize int           `json:"trade_tape_size"`
	SeedTimeout   time.Duration `json:"seed_timeout"`

	// Redis mirror (optional; disabled when Host is empty)
	Redis RedisConfig `json:"redis"`

	// Symbols followed at startup
	Symbols []SymbolSubscription `json:"symbols"`

	// Connection settings
	Reconnect ReconnectConfig `json:"reconnect"`
}

type RedisConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	PoolSize     int    `json:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns"`
}

type ReconnectConfig struct {
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
	MaxRetries      int           `json:"max_retries"` // 0 = infinite
	Multiplier      float64       `json:"multiplier"`
	Jitter          bool          `json:"jitter"`
}

type SymbolSubscription struct {
	Symbol string `json:"symbol"`
	Depth  int    `json:"depth,omitempty"` // falls back to Config.Depth
}

// Load reads configuration from environment variables and an optional
// symbols file. A local .env is honored in development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		MetricsPort: getEnvInt("METRICS_PORT", 9090),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		APIBaseURL: getEnv("API_BASE_URL", "https://api.npascu.com"),
		HubURL:     getEnv("HUB_URL", ""),

		Depth:         getEnvInt("BOOK_DEPTH", 10),
		FrameInterval: getEnvDuration("FRAME_INTERVAL", 16*time.Millisecond),
		TradeTapeSize: getEnvInt("TRADE_TAPE_SIZE", 100),
		SeedTimeout:   getEnvDuration("SEED_TIMEOUT", 5*time.Second),

		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", ""),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 5),
		},

		Reconnect: ReconnectConfig{
			InitialInterval: getEnvDuration("RECONNECT_INITIAL_INTERVAL", 2*time.Second),
			MaxInterval:     getEnvDuration("RECONNECT_MAX_INTERVAL", time.Minute),
			MaxRetries:      getEnvInt("RECONNECT_MAX_RETRIES", 0),
			Multiplier:      2.0,
			Jitter:          true,
		},
	}

	if cfg.HubURL == "" {
		hub, err := deriveHubURL(cfg.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to derive hub URL: %w", err)
		}
		cfg.HubURL = hub
	}

	symbolsPath := getEnv("SYMBOLS_PATH", "./config/symbols.json")
	if err := loadSymbols(symbolsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// deriveHubURL maps the REST base URL onto the streaming hub endpoint,
// switching to the matching websocket scheme.
func deriveHubURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/hubs/market"
	return u.String(), nil
}

func loadSymbols(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		// Symbols file is optional in development
		if os.IsNotExist(err) && cfg.Environment == "development" {
			cfg.Symbols = []SymbolSubscription{}
			return nil
		}
		return err
	}

	var symbolsConfig struct {
		Symbols []SymbolSubscription `json:"symbols"`
	}
	if err := json.Unmarshal(data, &symbolsConfig); err != nil {
		return err
	}

	cfg.Symbols = symbolsConfig.Symbols
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}
	if c.Depth < 1 {
		return fmt.Errorf("book depth must be >= 1, got %d", c.Depth)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive, got %v", c.FrameInterval)
	}
	if c.TradeTapeSize < 1 {
		return fmt.Errorf("trade tape size must be >= 1, got %d", c.TradeTapeSize)
	}
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("symbol entries must not be empty")
		}
		if s.Depth < 0 {
			return fmt.Errorf("symbol %s: depth must be >= 0", s.Symbol)
		}
	}
	return nil
}

// RedisEnabled reports whether the optional Redis mirror is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
