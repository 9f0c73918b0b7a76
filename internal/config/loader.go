// Package config provides centralized configuration management for pacelens.
// Configuration is layered: built-in defaults, then an optional YAML file,
// then PACELENS_* environment variables.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// PACELENS_SERVER_PORT=8490.
const EnvPrefix = "PACELENS"

// Load reads configuration from the optional file path and the environment,
// validates it, and caches it for Get.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$XDG_CONFIG_HOME/pacelens")
		v.AddConfigPath("$HOME/.config/pacelens")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing config file is fine; defaults and env cover it.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Store.Path == "" && cfg.Store.URL == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()

	return cfg, nil
}

// Get returns the last loaded configuration, or defaults when Load has not
// run yet.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()

	if appConfig == nil {
		return Defaults()
	}
	return appConfig
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	cfg := &Config{}
	_ = v.Unmarshal(cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()))
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	return cfg
}

// DefaultStorePath returns the platform data directory location for the
// limiter state database.
func DefaultStorePath() string {
	return filepath.Join(gfconfig.GetAppDataDir("pacelens"), "pacelens.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8490)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")

	v.SetDefault("logging.level", "info")

	v.SetDefault("flush_interval", "30s")
}
