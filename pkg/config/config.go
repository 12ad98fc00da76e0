// Package config holds the collector's startup configuration. The struct is
// read once at startup and treated as immutable afterwards; validation
// failures are fatal, there is no partial startup on a bad config.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is the sentinel wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full collector configuration.
type Config struct {
	// Upstream connection.
	BaseURL     string `mapstructure:"base_url" json:"base_url"`
	APIKey      string `mapstructure:"api_key" json:"api_key"`
	AccessToken string `mapstructure:"access_token" json:"access_token"`

	// Rate limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requests_per_minute"`
	BurstCapacity     int `mapstructure:"burst_capacity" json:"burst_capacity"`

	// Concurrency and batching.
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests" json:"max_concurrent_requests"`
	BatchSize             int           `mapstructure:"batch_size" json:"batch_size"`
	BatchTimeout          time.Duration `mapstructure:"batch_timeout" json:"batch_timeout"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout" json:"request_timeout"`

	// Caching.
	CacheTTL     time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	MaxCacheSize int           `mapstructure:"max_cache_size" json:"max_cache_size"`

	// Failure isolation.
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" json:"recovery_timeout"`
	MaxRetryAttempts int           `mapstructure:"max_retry_attempts" json:"max_retry_attempts"`

	// Sinks. Empty values disable the corresponding sink.
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`
	CSVDir        string `mapstructure:"csv_dir" json:"csv_dir"`

	// Daemon surface.
	ListenAddr string   `mapstructure:"listen_addr" json:"listen_addr"`
	LogLevel   string   `mapstructure:"log_level" json:"log_level"`
	Watchlist  []string `mapstructure:"watchlist" json:"watchlist"`
}

// Default returns the configuration the collector runs with when nothing is
// overridden. Upstream credentials have no default and must be provided.
func Default() Config {
	return Config{
		BaseURL:               "https://api.kite.trade",
		RequestsPerMinute:     180,
		BurstCapacity:         20,
		MaxConcurrentRequests: 2,
		BatchSize:             50,
		BatchTimeout:          100 * time.Millisecond,
		RequestTimeout:        30 * time.Second,
		CacheTTL:              3 * time.Second,
		MaxCacheSize:          10000,
		FailureThreshold:      5,
		RecoveryTimeout:       60 * time.Second,
		MaxRetryAttempts:      3,
		ListenAddr:            ":9180",
		LogLevel:              "info",
		Watchlist:             []string{"NIFTY", "BANKNIFTY"},
	}
}

// Validate checks the configuration for values the collector cannot run
// with. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalidConfig)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: api_key is required", ErrInvalidConfig)
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: requests_per_minute must be positive (got %d)", ErrInvalidConfig, c.RequestsPerMinute)
	}
	if c.BurstCapacity < 0 {
		return fmt.Errorf("%w: burst_capacity must not be negative (got %d)", ErrInvalidConfig, c.BurstCapacity)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("%w: max_concurrent_requests must be positive (got %d)", ErrInvalidConfig, c.MaxConcurrentRequests)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive (got %d)", ErrInvalidConfig, c.BatchSize)
	}
	if c.BatchTimeout <= 0 {
		return fmt.Errorf("%w: batch_timeout must be positive (got %v)", ErrInvalidConfig, c.BatchTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request_timeout must be positive (got %v)", ErrInvalidConfig, c.RequestTimeout)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive (got %v)", ErrInvalidConfig, c.CacheTTL)
	}
	if c.MaxCacheSize <= 0 {
		return fmt.Errorf("%w: max_cache_size must be positive (got %d)", ErrInvalidConfig, c.MaxCacheSize)
	}
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("%w: failure_threshold must be positive (got %d)", ErrInvalidConfig, c.FailureThreshold)
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("%w: recovery_timeout must be positive (got %v)", ErrInvalidConfig, c.RecoveryTimeout)
	}
	if c.MaxRetryAttempts <= 0 {
		return fmt.Errorf("%w: max_retry_attempts must be positive (got %d)", ErrInvalidConfig, c.MaxRetryAttempts)
	}
	return nil
}
