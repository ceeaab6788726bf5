// Package config loads the module's runtime configuration the way the
// teacher's core/config.Config does: one struct, built once from
// environment variables with typed fallbacks. It extends that pattern
// with an optional godotenv .env file loaded before the environment is
// read, and an optional viper file overlay for operators who prefer a
// config file over loose env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/AzielCF/az-sessiontracker/policy"
)

// Config holds everything needed to construct a backend.Client, a
// keyns.Namer, and a policy.Settings table.
type Config struct {
	Backend BackendConfig
	Keys    KeysConfig
	Log     LogConfig
	Default policy.TypeSettings
	// PerType holds the §6 "perType" configuration overrides, keyed by
	// session type name. Only populated from a viper-managed config
	// file (there is no ergonomic env-var shape for a nested map), so
	// it is empty unless Load was called with a non-empty configPath.
	PerType map[string]policy.TypeSettings
}

// BackendConfig mirrors the teacher's DatabaseConfig.Valkey* fields,
// scoped down to the one backend this module talks to.
type BackendConfig struct {
	Address        string
	Password       string
	DB             int
	ConnectTimeout time.Duration

	UseProxyOptimisation bool
	ProxyRetryLimit      int
}

// KeysConfig configures the namespace prefixes from keyns.Namer.
type KeysConfig struct {
	Prefix     string
	LockPrefix string
}

// LogConfig configures logrus the way the teacher's AppConfig.Debug
// flag gates verbosity.
type LogConfig struct {
	Level string
	JSON  bool
}

// Global mirrors the teacher's migration-helper package var: most
// callers should prefer an explicit *Config threaded through
// constructors, but code reached from places that predate dependency
// injection can read config.Global.
var Global *Config

// Load builds a Config from built-in defaults, a .env file if present,
// the process environment, and a viper-managed config file if
// configPath is non-empty. The .env file only fills variables the
// process environment does not already set. The backend address and
// password are taken from the config file (backend.address,
// backend.password) when it sets them, and from the environment
// otherwise; every other scalar setting comes from the environment
// only, and the config file alone supplies PerType.
//
// Load never fails on a missing .env file, and an empty configPath
// skips the file overlay — both are optional overlays, the way the
// teacher's LoadConfig tolerates a missing storages directory. It does
// fail if configPath names a file that cannot be read or parsed.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SESSIONTRACKER")
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %q: %w", configPath, err)
		}
	}

	cfg := &Config{
		Backend: BackendConfig{
			Address:              firstNonEmpty(v.GetString("backend.address"), getEnv("BACKEND_ADDRESS", "localhost:6379")),
			Password:             firstNonEmpty(v.GetString("backend.password"), getEnv("BACKEND_PASSWORD", "")),
			DB:                   getEnvInt("BACKEND_DB", 0),
			ConnectTimeout:       getEnvDuration("BACKEND_CONNECT_TIMEOUT", 5*time.Second),
			UseProxyOptimisation: getEnvBool("BACKEND_USE_PROXY_OPTIMISATION", true),
			ProxyRetryLimit:      getEnvInt("BACKEND_PROXY_RETRY_LIMIT", 1),
		},
		Keys: KeysConfig{
			Prefix:     getEnv("KEY_PREFIX", "session-tracker"),
			LockPrefix: getEnv("LOCK_KEY_PREFIX", "lock"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnvBool("LOG_JSON", false),
		},
		Default: policy.TypeSettings{
			Absolute:        getEnvDuration("DEFAULT_ABSOLUTE_EXPIRATION", policy.DefaultAbsoluteExpiration),
			Sliding:         getEnvDuration("DEFAULT_SLIDING_EXPIRATION", policy.DefaultSlidingExpiration),
			EvictedAbsolute: getEnvDuration("DEFAULT_EVICTED_ABSOLUTE_EXPIRATION", policy.DefaultAbsoluteExpiration),
			EvictedSliding:  getEnvDuration("DEFAULT_EVICTED_SLIDING_EXPIRATION", policy.DefaultSlidingExpiration),
			LockTTL:         getEnvDuration("DEFAULT_LOCK_TTL", policy.DefaultLockTTL),
			LockWait:        getEnvDuration("DEFAULT_LOCK_WAIT", policy.DefaultLockWait),
			LockRetry:       getEnvDuration("DEFAULT_LOCK_RETRY", policy.DefaultLockRetry),
		},
	}

	cfg.PerType = loadPerType(v)

	Global = cfg
	return cfg, nil
}

// loadPerType reads the "perType" section of a viper-managed config
// file into a policy.TypeSettings table, per §6's
// `perType: {<typeName>: {...same fields...}}`. Absent from the
// environment entirely — viper's nested-map unmarshal is the only
// practical way to express this shape.
func loadPerType(v *viper.Viper) map[string]policy.TypeSettings {
	raw := v.GetStringMap("perType")
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]policy.TypeSettings, len(raw))
	for typeName := range raw {
		prefix := "perType." + typeName + "."
		out[typeName] = policy.TypeSettings{
			Absolute:        v.GetDuration(prefix + "absolute"),
			Sliding:         v.GetDuration(prefix + "sliding"),
			EvictedAbsolute: v.GetDuration(prefix + "evictedAbsolute"),
			EvictedSliding:  v.GetDuration(prefix + "evictedSliding"),
			LockTTL:         v.GetDuration(prefix + "lockTtl"),
			LockWait:        v.GetDuration(prefix + "lockWait"),
			LockRetry:       v.GetDuration(prefix + "lockRetry"),
		}
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
