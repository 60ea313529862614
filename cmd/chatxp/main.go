// Command chatxp is a terminal client for the ChatXP anonymous stranger chat
// service.
//
// Usage:
//
//	chatxp [--api-url URL] [--store pebble|redis|memory] [--debug-addr :9090]
//	chatxp smoke [--timeout 60s]
//	chatxp forget
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/whisper/chatxp/internal/api"
	"github.com/whisper/chatxp/internal/config"
	"github.com/whisper/chatxp/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "chatxp",
	Short:         "Anonymous stranger chat in the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runChat,
}

var (
	flagEnvFile        string
	flagAPIURL         string
	flagStore          string
	flagDataDir        string
	flagRedisAddr      string
	flagProfile        string
	flagNATSURL        string
	flagDebugAddr      string
	flagLogLevel       string
	flagRequestTimeout time.Duration
	flagEphemeral      bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagEnvFile, "env-file", ".env", "optional dotenv file with CHATXP_* settings")
	flags.StringVar(&flagAPIURL, "api-url", "", "remote API base URL (env CHATXP_API_URL)")
	flags.StringVar(&flagStore, "store", "", "where the user id is kept: pebble, redis or memory (env CHATXP_STORE)")
	flags.StringVar(&flagDataDir, "data-dir", "", "pebble directory (env CHATXP_DATA_DIR)")
	flags.StringVar(&flagRedisAddr, "redis-addr", "", "redis address for --store redis (env CHATXP_REDIS_ADDR)")
	flags.StringVar(&flagProfile, "profile", "", "redis key namespace (env CHATXP_PROFILE)")
	flags.StringVar(&flagNATSURL, "nats-url", "", "mirror session snapshots to this NATS server (env CHATXP_NATS_URL)")
	flags.StringVar(&flagDebugAddr, "debug-addr", "", "serve /metrics, /healthz and /state here (env CHATXP_DEBUG_ADDR)")
	flags.StringVar(&flagLogLevel, "log-level", "", "trace, debug, info, warn or error (env CHATXP_LOG_LEVEL)")
	flags.DurationVar(&flagRequestTimeout, "request-timeout", 0, "per-attempt API timeout (env CHATXP_REQUEST_TIMEOUT)")
	flags.BoolVar(&flagEphemeral, "ephemeral", false, "keep the user id in memory only")

	rootCmd.AddCommand(smokeCmd, forgetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "chatxp:", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the env file, the environment and set flags,
// and builds the logger.
func loadConfig(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	bootLog := newLogger("info")
	cfg, err := config.Load(flagEnvFile, bootLog)
	if err != nil {
		return cfg, bootLog, fmt.Errorf("load %s: %w", flagEnvFile, err)
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("api-url", &cfg.APIURL, flagAPIURL)
	set("store", &cfg.Store, strings.ToLower(flagStore))
	set("data-dir", &cfg.DataDir, flagDataDir)
	set("redis-addr", &cfg.RedisAddr, flagRedisAddr)
	set("profile", &cfg.Profile, flagProfile)
	set("nats-url", &cfg.NATSURL, flagNATSURL)
	set("debug-addr", &cfg.DebugAddr, flagDebugAddr)
	set("log-level", &cfg.LogLevel, strings.ToLower(flagLogLevel))
	if flags.Changed("request-timeout") {
		cfg.RequestTimeout = flagRequestTimeout
	}
	if flagEphemeral {
		cfg.Store = config.StoreMemory
	}

	if err := cfg.Validate(); err != nil {
		return cfg, bootLog, err
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

// newLogger writes human-readable logs to stderr so they do not interleave
// with the chat transcript on stdout.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func openStore(cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(""), nil
	case config.StoreRedis:
		st, err := store.NewRedisStore(cfg.RedisAddr, cfg.Profile)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("addr", cfg.RedisAddr).Str("profile", cfg.Profile).Msg("[store] using redis")
		return st, nil
	default:
		st, err := store.OpenPebble(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("dir", cfg.DataDir).Msg("[store] using pebble")
		return st, nil
	}
}

func newAPIClient(cfg config.Config, logger zerolog.Logger) *api.Client {
	apiCfg := api.DefaultConfig()
	apiCfg.BaseURL = cfg.APIURL
	apiCfg.Timeout = cfg.RequestTimeout
	return api.New(apiCfg, api.WithLogger(logger))
}
