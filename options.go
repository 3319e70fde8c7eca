package chromecache

import (
	"log/slog"
	"time"
)

// DefaultMaxDataSize caps a single decoded stream.
const DefaultMaxDataSize = 256 << 20

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger for cache operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithHasher replaces the key hash used by Lookup (default: SuperFastHash).
func WithHasher(h Hasher) Option {
	return func(c *Cache) {
		c.hasher = h
	}
}

// WithWorkers sets how many bucket chains are walked concurrently by Scan
// and Lookup. Values <= 1 walk sequentially (default).
func WithWorkers(n int) Option {
	return func(c *Cache) {
		c.workers = n
	}
}

// WithMaxChainLength limits how many entries a single bucket chain may hold
// before it is reported with ErrChainTooLong.
// Values <= 0 keep the default.
func WithMaxChainLength(n int) Option {
	return func(c *Cache) {
		c.maxChain = n
	}
}

// WithMaxEntries limits how many entries a scan may produce.
// Values < 0 disable the limit; zero keeps the default.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithMaxDataSize limits the size of a single stream read by
// ReadEntryData and of decoded bodies. Set limit to 0 to disable the limit.
func WithMaxDataSize(limit uint64) Option {
	return func(c *Cache) {
		c.maxDataSize = limit
	}
}

// WithTickResolution sets the duration of one timestamp tick.
// The default is 100ns; Chromium on most platforms records microseconds.
func WithTickResolution(d time.Duration) Option {
	return func(c *Cache) {
		c.tickResolution = d
	}
}
