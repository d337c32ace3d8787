package localcache

import (
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the in-process cache settings.
type Config struct {
	// Capacity is the maximum number of entries. Must be greater than 0.
	Capacity int
	// NumShards splits the cache for concurrent access. Must be greater than 0.
	NumShards int
	// TTL is how long an entry is served before it is refetched.
	TTL time.Duration
	// EvictionPercentage is the share of entries dropped when the cache is
	// full. Must be between 1 and 100.
	EvictionPercentage int
	// EarlyRefresh refreshes hot entries in the background before they
	// expire. Nil disables it.
	EarlyRefresh *EarlyRefreshConfig
	// MissingRecordStorage remembers keys whose fetch reported not found.
	MissingRecordStorage bool
	// EvictionInterval is how often expired entries are swept. Zero keeps
	// the library default.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures background refreshes of hot entries.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns settings suited to catalog reads.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          64,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Options converts the config to sturdyc options. Capacity, shards, TTL and
// eviction percentage go to the constructor instead.
func (c Config) Options() []sturdyc.Option {
	var options []sturdyc.Option
	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// Validate checks the config values.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if r := c.EarlyRefresh; r != nil {
		if r.MinAsyncRefreshTime < 0 || r.MaxAsyncRefreshTime < 0 || r.SyncRefreshTime < 0 || r.RetryBaseDelay < 0 {
			return &ConfigError{Field: "EarlyRefresh", Message: "durations must be non-negative"}
		}
		if r.MinAsyncRefreshTime > r.MaxAsyncRefreshTime {
			return &ConfigError{Field: "EarlyRefresh.MinAsyncRefreshTime", Message: "must not exceed MaxAsyncRefreshTime"}
		}
	}
	return nil
}

// ConfigError reports an invalid config field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "cache config error in field " + e.Field + ": " + e.Message
}
