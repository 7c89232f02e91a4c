package config

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Composer  ComposerConfig  `json:"composer,omitempty"`
	Delivery  DeliveryConfig  `json:"delivery"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Mirror  LoggingMirror `json:"mirror"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingMirror forwards log lines at or above MinLevel to the delivery
// sink's log channel, rate limited so a log storm cannot flood chat.
type LoggingMirror struct {
	Enabled    bool   `json:"enabled"`
	Channel    string `json:"channel,omitempty"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./matchwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the reminder evaluation loop.
//
// All durations are Go duration strings (e.g. "30s", "1m").
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// TickInterval is how often subjects are re-evaluated. Default "1m".
	TickInterval string `json:"tick_interval,omitempty"`

	// Timezone for the tick driver. IANA name; empty means local.
	Timezone string `json:"timezone,omitempty"`

	// SendTimeout bounds each compose+deliver attempt. Default "10s".
	SendTimeout string `json:"send_timeout,omitempty"`

	// SendRatePerSec throttles outbound notifications. Default 3.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`

	HistorySize int `json:"history_size,omitempty"`

	Channels ChannelsConfig `json:"channels"`
}

// ChannelsConfig routes each subject kind to a logical delivery channel.
// The delivery section maps these names to concrete endpoints.
type ChannelsConfig struct {
	Events      string `json:"events"`
	Scrims      string `json:"scrims"`
	Tournaments string `json:"tournaments"`
}

// ComposerConfig controls optional text generation for reminder messages.
// If the section is omitted or the provider is empty, the deterministic
// fallback templates are used for every message.
type ComposerConfig struct {
	// Provider is "openai" or "" (templates only).
	Provider string `json:"provider,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	APIKey   string `json:"api_key,omitempty"` // do not log
	Model    string `json:"model,omitempty"`
	// Timeout bounds one generation call. Default "5s".
	Timeout string `json:"timeout,omitempty"`
	// Style is prepended to the system prompt, e.g. "hype, short sentences".
	Style string `json:"style,omitempty"`
}

type DeliveryConfig struct {
	// Driver is "discord", "telegram" or "none".
	Driver  string `json:"driver"`
	Timeout string `json:"timeout,omitempty"`

	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type DiscordConfig struct {
	// Webhooks maps channel names (see scheduler.channels) to webhook URLs.
	Webhooks map[string]string `json:"webhooks,omitempty"` // do not log values
	// Roles maps mention tokens ("@Players") to Discord role IDs.
	Roles map[string]string `json:"roles,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"` // do not log
	// Chats maps channel names to Telegram chat IDs.
	Chats map[string]int64 `json:"chats,omitempty"`
}
