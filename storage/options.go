package storage

import (
	"time"
)

// Options carries the tunable parameters of the storage engine.
type Options struct {
	// Cache configuration. CacheCapacity bounds the total weight (serialized
	// bytes of key+value) held by the read cache.
	CacheEnabled  bool
	CacheCapacity int

	// MaxPendingWeight bounds the in-memory pending write buffer; once the
	// accumulated serialized weight of buffered writes exceeds it, they are
	// flushed to the append log in one pass.
	MaxPendingWeight int

	// CompactThreshold triggers compaction when
	// deleteCount > CompactThreshold * liveKeys.
	CompactThreshold float64

	// SyncInterval is how often the append log is fsynced in the background.
	// Zero disables the background sync; the log is still synced on flush
	// boundaries and at close.
	SyncInterval time.Duration

	// Compression stores values s2-compressed. Transparent to readers;
	// a store must be reopened with the same setting it was written with.
	Compression bool
}

// Option mutates Options, functional-options style.
type Option func(opt *Options)

// DefaultOptions returns the default engine configuration.
func DefaultOptions() *Options {
	return &Options{
		CacheEnabled:     true,
		CacheCapacity:    512 << 10, // 0.5 MB of cached entries
		MaxPendingWeight: 1 << 20,   // 1 MB of buffered writes
		CompactThreshold: 3,
		SyncInterval:     5 * time.Second,
		Compression:      false,
	}
}

func WithCacheCapacity(capacity int) Option {
	return func(opt *Options) {
		opt.CacheEnabled = capacity > 0
		opt.CacheCapacity = capacity
	}
}

func WithCacheDisabled() Option {
	return func(opt *Options) {
		opt.CacheEnabled = false
	}
}

func WithMaxPendingWeight(weight int) Option {
	return func(opt *Options) {
		opt.MaxPendingWeight = weight
	}
}

func WithCompactThreshold(threshold float64) Option {
	return func(opt *Options) {
		opt.CompactThreshold = threshold
	}
}

func WithSyncInterval(interval time.Duration) Option {
	return func(opt *Options) {
		opt.SyncInterval = interval
	}
}

func WithCompression(enabled bool) Option {
	return func(opt *Options) {
		opt.Compression = enabled
	}
}
