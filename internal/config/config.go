package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/timebox"
)

type (
	// Config holds configuration settings for the orchestration service
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// History & Archiving
		HistoryBackend string
		HistoryStore   timebox.StoreConfig
		CacheSize      int
		ArchiveURL     string

		// Engine
		PassWorkers      int
		PassTimeout      time.Duration
		AppendRetries    int
		RecoveryInterval time.Duration
		ShutdownTimeout  time.Duration

		// Work Units
		WorkWorkers int
		WorkTimeout time.Duration
		WorkUnits   []ScriptUnit
	}

	// ScriptUnit declares a Lua-scripted work unit
	ScriptUnit struct {
		Name   string `yaml:"name"`
		Script string `yaml:"script"`
	}
)

const (
	BackendTimebox = "timebox"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

const (
	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0

	DefaultRedisEndpoint       = "localhost:6379"
	DefaultRedisPrefix         = "braid"
	DefaultSnapshotWorkers     = 4
	DefaultSnapshotQueueSize   = 1000
	DefaultSnapshotSaveTimeout = 30 * time.Second
	DefaultCacheSize           = 4096

	DefaultPassWorkers      = 8
	DefaultPassTimeout      = 30 * time.Second
	DefaultAppendRetries    = 16
	DefaultRecoveryInterval = 30 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultWorkWorkers      = 16
	DefaultWorkTimeout      = 30 * time.Second

	MaxWorkers       = 4096
	MaxAppendRetries = 1000
	MaxCacheSize     = 1_000_000
)

var (
	ErrInvalidAPIPort       = errors.New("invalid API port")
	ErrInvalidBackend       = errors.New("invalid history backend")
	ErrInvalidWorkers       = errors.New("worker count must be positive")
	ErrInvalidTimeout       = errors.New("timeout must be positive")
	ErrInvalidAppendRetries = errors.New("append retries must be positive")
	ErrInvalidScriptUnit    = errors.New("script unit needs name and script")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// engine, dispatcher, and history store
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:        DefaultAPIPort,
		APIHost:        DefaultAPIHost,
		LogLevel:       "info",
		HistoryBackend: BackendTimebox,
		HistoryStore: timebox.StoreConfig{
			Addr:         DefaultRedisEndpoint,
			Password:     "",
			DB:           DefaultRedisDB,
			Prefix:       DefaultRedisPrefix,
			WorkerCount:  DefaultSnapshotWorkers,
			MaxQueueSize: DefaultSnapshotQueueSize,
			SaveTimeout:  DefaultSnapshotSaveTimeout,
		},
		CacheSize:        DefaultCacheSize,
		PassWorkers:      DefaultPassWorkers,
		PassTimeout:      DefaultPassTimeout,
		AppendRetries:    DefaultAppendRetries,
		RecoveryInterval: DefaultRecoveryInterval,
		ShutdownTimeout:  DefaultShutdownTimeout,
		WorkWorkers:      DefaultWorkWorkers,
		WorkTimeout:      DefaultWorkTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	LoadStoreConfigFromEnv(&c.HistoryStore, "HISTORY")

	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if backend := os.Getenv("HISTORY_BACKEND"); backend != "" {
		c.HistoryBackend = backend
	}
	if archiveURL := os.Getenv("ARCHIVE_URL"); archiveURL != "" {
		c.ArchiveURL = archiveURL
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"PASS_WORKERS", &c.PassWorkers, 0, MaxWorkers,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"WORK_WORKERS", &c.WorkWorkers, 0, MaxWorkers,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"APPEND_RETRIES", &c.AppendRetries, 0, MaxAppendRetries,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"CACHE_SIZE", &c.CacheSize, 0, MaxCacheSize,
	); err != nil {
		return err
	}

	if err := loadEnvDuration("PASS_TIMEOUT", &c.PassTimeout); err != nil {
		return err
	}
	if err := loadEnvDuration("WORK_TIMEOUT", &c.WorkTimeout); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"RECOVERY_INTERVAL", &c.RecoveryInterval,
	); err != nil {
		return err
	}
	return loadEnvDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	switch c.HistoryBackend {
	case BackendTimebox, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.HistoryBackend)
	}

	if c.PassWorkers <= 0 || c.WorkWorkers <= 0 {
		return ErrInvalidWorkers
	}

	if c.PassTimeout <= 0 || c.WorkTimeout <= 0 ||
		c.RecoveryInterval <= 0 || c.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.AppendRetries <= 0 {
		return ErrInvalidAppendRetries
	}

	for _, u := range c.WorkUnits {
		if u.Name == "" || u.Script == "" {
			return fmt.Errorf("%w: %q", ErrInvalidScriptUnit, u.Name)
		}
	}
	return nil
}

// LoadStoreConfigFromEnv loads Redis store configuration from environment
// variables with the given prefix (e.g., "HISTORY")
func LoadStoreConfigFromEnv(s *timebox.StoreConfig, prefix string) {
	if addr := os.Getenv(prefix + "_REDIS_ADDR"); addr != "" {
		s.Addr = addr
	}
	if password := os.Getenv(prefix + "_REDIS_PASSWORD"); password != "" {
		s.Password = password
	}
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil {
			s.DB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_REDIS_PREFIX"); envPrefix != "" {
		s.Prefix = envPrefix
	}
	if envCount := os.Getenv(prefix + "_SNAPSHOT_WORKERS"); envCount != "" {
		if wc, err := strconv.Atoi(envCount); err == nil && wc >= 0 {
			s.WorkerCount = wc
		}
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = d
	return nil
}
