// Package config assembles client settings from defaults, an optional .env
// file and CHATXP_* environment variables. Command-line flags are applied on
// top by the caller.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Store backends.
const (
	StorePebble = "pebble"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds client settings.
type Config struct {
	APIURL         string        // remote API base URL
	Store          string        // pebble, redis or memory
	DataDir        string        // pebble directory
	RedisAddr      string        // redis store address
	Profile        string        // redis key namespace
	NATSURL        string        // snapshot mirror; empty disables it
	DebugAddr      string        // debug HTTP listener; empty disables it
	LogLevel       string        // zerolog level name
	RequestTimeout time.Duration // per API attempt
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIURL:         "https://chatapi.miniproject.in",
		Store:          StorePebble,
		DataDir:        defaultDataDir(),
		RedisAddr:      "localhost:6379",
		Profile:        "default",
		LogLevel:       "info",
		RequestTimeout: 10 * time.Second,
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".chatxp", "data")
	}
	return filepath.Join(dir, "chatxp", "data")
}

// Load reads envFile (when it exists) into the process environment without
// overriding variables already set, then applies the environment to Default.
func Load(envFile string, logger zerolog.Logger) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	cfg := Default()
	cfg.ApplyEnv(os.LookupEnv, logger)
	return cfg, nil
}

// ApplyEnv overrides fields from CHATXP_* variables found by lookup. Invalid
// values are logged and ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool), logger zerolog.Logger) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CHATXP_API_URL", &c.APIURL)
	str("CHATXP_DATA_DIR", &c.DataDir)
	str("CHATXP_REDIS_ADDR", &c.RedisAddr)
	str("CHATXP_PROFILE", &c.Profile)
	str("CHATXP_NATS_URL", &c.NATSURL)
	str("CHATXP_DEBUG_ADDR", &c.DebugAddr)

	if v, ok := lookup("CHATXP_STORE"); ok && v != "" {
		switch v = strings.ToLower(strings.TrimSpace(v)); v {
		case StorePebble, StoreRedis, StoreMemory:
			c.Store = v
		default:
			logger.Warn().Str("value", v).Msg("[config] ignoring invalid CHATXP_STORE")
		}
	}
	if v, ok := lookup("CHATXP_LOG_LEVEL"); ok && v != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(v)); err != nil {
			logger.Warn().Str("value", v).Msg("[config] ignoring invalid CHATXP_LOG_LEVEL")
		} else {
			c.LogLevel = strings.ToLower(v)
		}
	}
	if v, ok := lookup("CHATXP_REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logger.Warn().Str("value", v).Msg("[config] ignoring invalid CHATXP_REQUEST_TIMEOUT")
		} else {
			c.RequestTimeout = d
		}
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("config: api url is required")
	}
	switch c.Store {
	case StorePebble:
		if c.DataDir == "" {
			return errors.New("config: data dir is required for the pebble store")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: redis addr is required for the redis store")
		}
	case StoreMemory:
	default:
		return errors.New("config: unknown store " + c.Store)
	}
	return nil
}
