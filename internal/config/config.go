// Package config loads powcore's environment-based configuration and
// offers an optional hot-reloadable Defense curve watcher.
//
// Grounded on this package's own prior getEnv/getEnvInt/getEnvDuration/
// Validate shape (JeddyMaster-pow/internal/config/config.go), extended
// with the domain fields spec.md §6 enumerates (gc_period_s,
// visitor_lifetime_ms, defense, duration_s, cache_backend) and with
// agilira-balios's argus-backed hot-reload for Defense.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcaptcha/powcore/pkg/defense"
)

// CacheBackend selects the challenge cache implementation (spec.md §6).
type CacheBackend string

const (
	CacheBackendEmbedded CacheBackend = "embedded"
	CacheBackendExternal CacheBackend = "external"
)

// Config holds the core's full runtime configuration.
type Config struct {
	// Domain configuration (spec.md §6).
	GCPeriodS         uint64
	VisitorLifetimeMs uint64
	DurationS         uint64
	Defense           defense.Defense
	CacheBackend      CacheBackend
	ExternalCacheDSN  string // only meaningful when CacheBackend == external

	// Ambient server configuration, in the teacher's style.
	ServerHost      string
	ServerPort      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxConnections  int
}

// Load reads configuration from the environment, first loading a .env
// file if one is present in the working directory (a missing .env is
// not an error — same convention as JeddyMaster-pow's cmd/server/main.go).
func Load() (Config, error) {
	_ = godotenv.Load()

	levels, err := parseDefenseLevels(getEnv("POWCORE_DEFENSE_LEVELS", "0:10,5:50,10:500"))
	if err != nil {
		return Config{}, fmt.Errorf("POWCORE_DEFENSE_LEVELS: %w", err)
	}
	d, err := defense.New(levels)
	if err != nil {
		return Config{}, fmt.Errorf("building defense curve: %w", err)
	}

	cfg := Config{
		GCPeriodS:         getEnvUint64("POWCORE_GC_PERIOD_S", 30),
		VisitorLifetimeMs: getEnvUint64("POWCORE_VISITOR_LIFETIME_MS", 30_000),
		DurationS:         getEnvUint64("POWCORE_PUZZLE_DURATION_S", 30),
		Defense:           d,
		CacheBackend:      CacheBackend(getEnv("POWCORE_CACHE_BACKEND", string(CacheBackendEmbedded))),
		ExternalCacheDSN:  getEnv("POWCORE_EXTERNAL_CACHE_DSN", ""),

		ServerHost:      getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxConnections:  getEnvInt("MAX_CONNECTIONS", 100),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants spec.md §6/§7 require at configuration
// time (InvalidDefense itself is already surfaced by defense.New).
func (c Config) Validate() error {
	if c.GCPeriodS == 0 {
		return fmt.Errorf("POWCORE_GC_PERIOD_S must be positive, got 0")
	}
	if c.VisitorLifetimeMs == 0 {
		return fmt.Errorf("POWCORE_VISITOR_LIFETIME_MS must be positive, got 0")
	}
	if c.DurationS == 0 {
		return fmt.Errorf("POWCORE_PUZZLE_DURATION_S must be positive, got 0")
	}
	switch c.CacheBackend {
	case CacheBackendEmbedded:
	case CacheBackendExternal:
		if c.ExternalCacheDSN == "" {
			return fmt.Errorf("POWCORE_EXTERNAL_CACHE_DSN is required when POWCORE_CACHE_BACKEND=external")
		}
	default:
		return fmt.Errorf("POWCORE_CACHE_BACKEND must be %q or %q, got %q", CacheBackendEmbedded, CacheBackendExternal, c.CacheBackend)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("READ_TIMEOUT must be positive, got: %v", c.ReadTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WRITE_TIMEOUT must be positive, got: %v", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got: %v", c.ShutdownTimeout)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be positive, got: %d", c.MaxConnections)
	}
	return nil
}

// parseDefenseLevels parses a "threshold:factor,threshold:factor,..."
// string, the wire format for POWCORE_DEFENSE_LEVELS.
func parseDefenseLevels(raw string) ([]defense.Level, error) {
	parts := strings.Split(raw, ",")
	levels := make([]defense.Level, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, ":", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("malformed level %q: want threshold:factor", p)
		}
		threshold, err := strconv.ParseUint(strings.TrimSpace(kv[0]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed threshold in %q: %w", p, err)
		}
		factor, err := strconv.ParseUint(strings.TrimSpace(kv[1]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed factor in %q: %w", p, err)
		}
		levels = append(levels, defense.Level{Threshold: uint32(threshold), DifficultyFactor: uint32(factor)})
	}
	return levels, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Printf("warning: invalid value for %s, using default: %d\n", key, defaultValue)
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
		fmt.Printf("warning: invalid value for %s, using default: %d\n", key, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		fmt.Printf("warning: invalid duration for %s, using default: %s\n", key, defaultValue)
	}
	return defaultValue
}
