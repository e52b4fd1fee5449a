// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds configuration knobs for the HTTP server, read path, cache,
// mirror topology, and backend selection.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	ShutdownTimeout time.Duration

	// ReadBudget bounds the replica lookup on the read path.
	ReadBudget time.Duration
	// CacheTTL bounds staleness of cached lowest-price entries. Must stay
	// finite: a region that misses an invalidation recovers at TTL expiry.
	CacheTTL time.Duration

	// Regions lists the regional mirrors; the first entry is the region the
	// HTTP read path serves.
	Regions []string

	// MasterDSN/ReplicaDSN select the mirrored MySQL engine when both are
	// set; otherwise the in-memory engine is used.
	MasterDSN  string
	ReplicaDSN string

	// RedisAddr selects the Redis cache backend when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// fileConfig is the optional YAML overlay; zero values leave the
// environment-derived value untouched.
type fileConfig struct {
	HTTPAddr          string   `yaml:"http_addr"`
	LogLevel          string   `yaml:"log_level"`
	ShutdownTimeoutS  int      `yaml:"shutdown_timeout_s"`
	ReadBudgetMs      int      `yaml:"read_budget_ms"`
	CacheTTLMs        int      `yaml:"cache_ttl_ms"`
	Regions           []string `yaml:"regions"`
	MasterDSN         string   `yaml:"master_dsn"`
	ReplicaDSN        string   `yaml:"replica_dsn"`
	RedisAddr         string   `yaml:"redis_addr"`
	RedisPassword     string   `yaml:"redis_password"`
	RedisDB           *int     `yaml:"redis_db"`
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults, then applies
// the YAML file named by CONFIG_FILE (if any) on top.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		ReadBudget:      durenvms("READ_BUDGET_MS", 20),
		CacheTTL:        durenvms("CACHE_TTL_MS", 30000),
		Regions:         splitList(getenv("REGIONS", "local")),
		MasterDSN:       getenv("MASTER_DSN", ""),
		ReplicaDSN:      getenv("REPLICA_DSN", ""),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		RedisPassword:   getenv("REDIS_PASSWORD", ""),
		RedisDB:         atoienv("REDIS_DB", 0),
	}
	if path := getenv("CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.ShutdownTimeoutS > 0 {
		c.ShutdownTimeout = time.Duration(fc.ShutdownTimeoutS) * time.Second
	}
	if fc.ReadBudgetMs > 0 {
		c.ReadBudget = time.Duration(fc.ReadBudgetMs) * time.Millisecond
	}
	if fc.CacheTTLMs > 0 {
		c.CacheTTL = time.Duration(fc.CacheTTLMs) * time.Millisecond
	}
	if len(fc.Regions) > 0 {
		c.Regions = fc.Regions
	}
	if fc.MasterDSN != "" {
		c.MasterDSN = fc.MasterDSN
	}
	if fc.ReplicaDSN != "" {
		c.ReplicaDSN = fc.ReplicaDSN
	}
	if fc.RedisAddr != "" {
		c.RedisAddr = fc.RedisAddr
	}
	if fc.RedisPassword != "" {
		c.RedisPassword = fc.RedisPassword
	}
	if fc.RedisDB != nil {
		c.RedisDB = *fc.RedisDB
	}
	return nil
}

func (c *Config) validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("config: at least one region required")
	}
	if c.ReadBudget <= 0 {
		return fmt.Errorf("config: read budget must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache TTL must be finite and positive")
	}
	if (c.MasterDSN == "") != (c.ReplicaDSN == "") {
		return fmt.Errorf("config: MASTER_DSN and REPLICA_DSN must be set together")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
