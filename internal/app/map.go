package app

import (
	"fmt"
	"strings"
	"time"

	"matchwatch/internal/composer"
	"matchwatch/internal/config"
	"matchwatch/internal/delivery"
	"matchwatch/internal/scheduler"
	"matchwatch/internal/storage"
	logx "matchwatch/pkg/logx"
)

// The map* helpers translate the on-disk config sections into component
// configs, parsing duration strings and applying defaults. They double as
// validation: the hot-reload validator calls them and rejects the new
// config on any error, keeping the previous one active.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Mirror: logx.MirrorConfig{
			Enabled:    cfg.Logging.Mirror.Enabled,
			MinLevel:   cfg.Logging.Mirror.MinLevel,
			RatePerSec: cfg.Logging.Mirror.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	tick, err := config.ParseDurationField("scheduler.tick_interval", cfg.Scheduler.TickInterval)
	if err != nil {
		return scheduler.Config{}, err
	}
	sendTimeout, err := config.ParseDurationField("scheduler.send_timeout", cfg.Scheduler.SendTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	if cfg.Scheduler.SendRatePerSec < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.send_rate_per_sec must be >= 0")
	}
	if cfg.Scheduler.HistorySize < 0 {
		return scheduler.Config{}, fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return scheduler.Config{}, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Scheduler.Enabled {
		ch := cfg.Scheduler.Channels
		if strings.TrimSpace(ch.Events) == "" || strings.TrimSpace(ch.Scrims) == "" || strings.TrimSpace(ch.Tournaments) == "" {
			return scheduler.Config{}, fmt.Errorf("scheduler.channels: all three channel names are required when the scheduler is enabled")
		}
	}
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		TickInterval:   tick,
		Timezone:       cfg.Scheduler.Timezone,
		SendTimeout:    sendTimeout,
		SendRatePerSec: cfg.Scheduler.SendRatePerSec,
		HistorySize:    cfg.Scheduler.HistorySize,
		Channels: scheduler.Channels{
			Events:      cfg.Scheduler.Channels.Events,
			Scrims:      cfg.Scheduler.Channels.Scrims,
			Tournaments: cfg.Scheduler.Channels.Tournaments,
		},
	}, nil
}

// mapComposer returns the generator (nil when templates-only) and the
// per-generation timeout.
func mapComposer(cfg *config.Config) (composer.Generator, time.Duration, error) {
	timeout, err := config.ParseDurationOrDefault("composer.timeout", cfg.Composer.Timeout, 5*time.Second)
	if err != nil {
		return nil, 0, err
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Composer.Provider))
	switch provider {
	case "":
		return nil, timeout, nil
	case "openai":
		gen, err := composer.NewGenTextClient(composer.GenTextConfig{
			BaseURL: cfg.Composer.BaseURL,
			APIKey:  cfg.Composer.APIKey,
			Model:   cfg.Composer.Model,
			Style:   cfg.Composer.Style,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("composer: %w", err)
		}
		return gen, timeout, nil
	default:
		return nil, 0, fmt.Errorf("composer.provider: unknown %q", cfg.Composer.Provider)
	}
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	timeout, err := config.ParseDurationField("delivery.timeout", cfg.Delivery.Timeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		Driver:  cfg.Delivery.Driver,
		Timeout: timeout,
		Discord: delivery.DiscordConfig{
			Webhooks: cfg.Delivery.Discord.Webhooks,
			Roles:    cfg.Delivery.Discord.Roles,
		},
		Telegram: delivery.TelegramConfig{
			Token: cfg.Delivery.Telegram.Token,
			Chats: cfg.Delivery.Telegram.Chats,
		},
	}, nil
}

// mirrorChannel picks the delivery channel for mirrored log lines.
func mirrorChannel(cfg *config.Config) string {
	if ch := strings.TrimSpace(cfg.Logging.Mirror.Channel); ch != "" {
		return ch
	}
	return cfg.Scheduler.Channels.Events
}
