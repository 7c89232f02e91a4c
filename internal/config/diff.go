package config

import (
	"reflect"
	"sort"
	"strings"

	logx "matchwatch/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (API keys, tokens, webhook URLs)
// are reduced to set/unset booleans and counts.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.mirror_enabled", newCfg.Logging.Mirror.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.tick_interval", strings.TrimSpace(newCfg.Scheduler.TickInterval)),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Int("scheduler.send_rate_per_sec", newCfg.Scheduler.SendRatePerSec),
		)
	}

	// Composer (never log api_key)
	if oldCfg.Composer.Provider != newCfg.Composer.Provider ||
		strings.TrimSpace(oldCfg.Composer.BaseURL) != strings.TrimSpace(newCfg.Composer.BaseURL) ||
		oldCfg.Composer.Model != newCfg.Composer.Model ||
		strings.TrimSpace(oldCfg.Composer.Timeout) != strings.TrimSpace(newCfg.Composer.Timeout) ||
		oldCfg.Composer.Style != newCfg.Composer.Style ||
		(strings.TrimSpace(oldCfg.Composer.APIKey) != "") != (strings.TrimSpace(newCfg.Composer.APIKey) != "") {
		changed = append(changed, "composer")
		attrs = append(attrs,
			logx.String("composer.provider", newCfg.Composer.Provider),
			logx.String("composer.model", newCfg.Composer.Model),
			logx.Bool("composer.api_key_set", strings.TrimSpace(newCfg.Composer.APIKey) != ""),
		)
	}

	// Delivery (never log token or webhook URLs)
	if deliveryChanged(oldCfg.Delivery, newCfg.Delivery) {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.String("delivery.driver", strings.TrimSpace(newCfg.Delivery.Driver)),
			logx.Int("delivery.discord_webhooks", len(newCfg.Delivery.Discord.Webhooks)),
			logx.Int("delivery.discord_roles", len(newCfg.Delivery.Discord.Roles)),
			logx.Bool("delivery.telegram_token_set", strings.TrimSpace(newCfg.Delivery.Telegram.Token) != ""),
			logx.Int("delivery.telegram_chats", len(newCfg.Delivery.Telegram.Chats)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func deliveryChanged(o, n DeliveryConfig) bool {
	return strings.TrimSpace(o.Driver) != strings.TrimSpace(n.Driver) ||
		strings.TrimSpace(o.Timeout) != strings.TrimSpace(n.Timeout) ||
		!reflect.DeepEqual(o.Discord.Webhooks, n.Discord.Webhooks) ||
		!reflect.DeepEqual(o.Discord.Roles, n.Discord.Roles) ||
		strings.TrimSpace(o.Telegram.Token) != strings.TrimSpace(n.Telegram.Token) ||
		!reflect.DeepEqual(o.Telegram.Chats, n.Telegram.Chats)
}
