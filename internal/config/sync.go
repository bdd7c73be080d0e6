package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SyncConfig controls how display surfaces converge on server state.
type SyncConfig struct {
	PollInterval      time.Duration `mapstructure:"pollInterval"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	RetryHint         time.Duration `mapstructure:"retryHint"`
	// Statuses listed here stay on the kitchen board after payment.
	BoardStatuses []string `mapstructure:"boardStatuses"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		PollInterval:      7 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		RetryHint:         2 * time.Second,
		BoardStatuses:     []string{"sent", "preparing", "ready"},
	}
}

type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewStaticSyncConfigHolder returns a holder that never reloads.
func NewStaticSyncConfigHolder(cfg SyncConfig) *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSyncConfigHolder(logger *zap.Logger) (*SyncConfigHolder, error) {
	log := logger.Named("sync-config")
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tabledesk/config")
	v.AddConfigPath("/etc/tabledesk")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TABLEDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncConfig()
	v.SetDefault("sync.pollInterval", defaults.PollInterval)
	v.SetDefault("sync.heartbeatInterval", defaults.HeartbeatInterval)
	v.SetDefault("sync.retryHint", defaults.RetryHint)
	v.SetDefault("sync.boardStatuses", defaults.BoardStatuses)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeSyncConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSyncConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSyncConfig(v)
		if err != nil {
			log.Warn("reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("reloaded", zap.String("file", e.Name), zap.Duration("poll_interval", updated.PollInterval))
	})

	return holder, nil
}

func (h *SyncConfigHolder) Get() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func decodeSyncConfig(v *viper.Viper) (SyncConfig, error) {
	var cfg SyncConfig
	if err := v.UnmarshalKey("sync", &cfg); err != nil {
		return SyncConfig{}, err
	}
	if err := validateSyncConfig(cfg); err != nil {
		return SyncConfig{}, err
	}
	return cfg, nil
}

func validateSyncConfig(cfg SyncConfig) error {
	if cfg.PollInterval < time.Second {
		return errors.New("sync.pollInterval must be at least 1s")
	}
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("sync.heartbeatInterval must be positive")
	}
	if cfg.RetryHint <= 0 {
		return errors.New("sync.retryHint must be positive")
	}
	if len(cfg.BoardStatuses) == 0 {
		return errors.New("sync.boardStatuses cannot be empty")
	}
	return nil
}
