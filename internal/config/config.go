package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pacelens/pacelens/internal/core/engine"
)

// Config represents the complete application configuration, assembled from
// built-in defaults, an optional YAML file, and PACELENS_* environment
// overrides.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Limits maps remote endpoints to their admission limits. Endpoints not
	// listed here fall back to the engine defaults.
	Limits map[string]LimitConfig `mapstructure:"limits"`

	// FlushInterval controls how often adaptive limiter state is persisted
	// while serving.
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// LimitConfig describes the admission limits for one endpoint. WindowSeconds
// is fractional to allow sub-second windows in tests and tight integrations.
type LimitConfig struct {
	MaxRequests   int     `mapstructure:"max_requests"`
	MinRequests   int     `mapstructure:"min_requests"`
	WindowSeconds float64 `mapstructure:"window_seconds"`
}

// Window converts the fractional seconds into a duration.
func (l LimitConfig) Window() time.Duration {
	return time.Duration(l.WindowSeconds * float64(time.Second))
}

// Validate rejects configurations the limiter would refuse at runtime, so
// mistakes surface at startup instead of on the first throttled call.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	for endpoint, limit := range c.Limits {
		if strings.TrimSpace(endpoint) == "" {
			return fmt.Errorf("limits contains an empty endpoint key")
		}
		if limit.WindowSeconds < 0 {
			return fmt.Errorf("limits for %s: window must not be negative", endpoint)
		}
		// Check the limits exactly as the limiter will see them, with zero
		// fields filled by the engine defaults. A max below the default min
		// is only caught this way.
		ec := engine.Config{
			MaxRequests: limit.MaxRequests,
			MinRequests: limit.MinRequests,
			Window:      limit.Window(),
		}
		if err := ec.Validate(); err != nil {
			return fmt.Errorf("limits for %s: %w", endpoint, err)
		}
	}

	return nil
}
