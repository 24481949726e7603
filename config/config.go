// Package config loads the EmberKV configuration file and keeps it fresh
// through hot reload. Programs that prefer code-level configuration can
// skip this package entirely and pass storage.Option values to the engine.
package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"EmberKV/storage"
)

type BaseConfig struct {
	DataDir string
}

type MemCacheConfig struct {
	Enable   bool
	Capacity int
}

type PendingConfig struct {
	MaxWeight int
}

type CompactionConfig struct {
	Threshold float64
}

type LogConfig struct {
	SyncInterval time.Duration
	Compression  bool
}

type Config struct {
	Base       BaseConfig
	MemCache   MemCacheConfig
	Pending    PendingConfig
	Compaction CompactionConfig
	Log        LogConfig
}

var (
	conf     *Config
	confOnce sync.Once
	mu       sync.RWMutex
)

// Get returns the current configuration snapshot.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return conf
}

func loadConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Base.DataDir = v.GetString("base.data_dir")

	cfg.MemCache.Enable = v.GetBool("mem_cache.enable")
	cfg.MemCache.Capacity = v.GetInt("mem_cache.capacity")

	cfg.Pending.MaxWeight = v.GetInt("pending.max_weight")

	cfg.Compaction.Threshold = v.GetFloat64("compaction.threshold")

	cfg.Log.SyncInterval = v.GetDuration("log.sync_interval")
	cfg.Log.Compression = v.GetBool("log.compression")

	return cfg
}

// Init reads the configuration file at configPath and watches it for
// changes. Later edits replace the snapshot returned by Get; an engine
// already opened keeps the options it was opened with.
func Init(configPath string) error {
	var initErr error
	confOnce.Do(func() {
		v := viper.New()
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			initErr = err
			return
		}

		mu.Lock()
		conf = loadConfig(v)
		mu.Unlock()

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			newV := viper.New()
			newV.SetConfigFile(configPath)

			if err := newV.ReadInConfig(); err != nil {
				log.Printf("reload config file failed: %v\n", err)
				return
			}

			mu.Lock()
			conf = loadConfig(newV)
			mu.Unlock()
			log.Printf("config file reloaded: %s\n", e.Name)
		})
	})
	return initErr
}

// StorageOptions maps the loaded configuration to engine options.
// Unset numeric values keep the engine defaults.
func StorageOptions() []storage.Option {
	cfg := Get()
	if cfg == nil {
		return nil
	}

	var opts []storage.Option
	if !cfg.MemCache.Enable {
		opts = append(opts, storage.WithCacheDisabled())
	} else if cfg.MemCache.Capacity > 0 {
		opts = append(opts, storage.WithCacheCapacity(cfg.MemCache.Capacity))
	}
	if cfg.Pending.MaxWeight > 0 {
		opts = append(opts, storage.WithMaxPendingWeight(cfg.Pending.MaxWeight))
	}
	if cfg.Compaction.Threshold > 0 {
		opts = append(opts, storage.WithCompactThreshold(cfg.Compaction.Threshold))
	}
	if cfg.Log.SyncInterval > 0 {
		opts = append(opts, storage.WithSyncInterval(cfg.Log.SyncInterval))
	}
	opts = append(opts, storage.WithCompression(cfg.Log.Compression))
	return opts
}
