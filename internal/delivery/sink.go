// Package delivery sends composed notifications to the org's chat platform.
//
// The sink is an external collaborator: its failures are logged by callers
// and never stop the scheduler loop. Channel identifiers and role-name
// resolution data are configuration, not scheduling logic.
package delivery

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "matchwatch/pkg/logx"
)

// Message is one outbound notification.
type Message struct {
	Text string
	// AttachmentPath optionally points at a local file to upload alongside
	// the text (e.g. an event poster).
	AttachmentPath string
	// Channel is a logical channel name resolved against the driver's
	// configuration ("events", "scrims", "tournaments", ...).
	Channel string
}

// Sink delivers messages. Implementations resolve @RoleName mentions
// against their own destination where the platform supports it.
type Sink interface {
	Send(ctx context.Context, m Message) error
}

// Config configures the delivery sink.
//
// Driver values: "discord" (webhooks), "telegram" (bot API), "none".
type Config struct {
	Driver  string
	Timeout time.Duration

	Discord  DiscordConfig
	Telegram TelegramConfig
}

type DiscordConfig struct {
	// Webhooks maps logical channel names to webhook URLs.
	Webhooks map[string]string
	// Roles maps role names to role IDs for @mention rewriting. Lookup is
	// case-insensitive.
	Roles map[string]string
}

type TelegramConfig struct {
	Token string
	// Chats maps logical channel names to chat IDs.
	Chats map[string]int64
}

// Open initializes the configured sink.
// It returns (nil, nil) if delivery is disabled.
func Open(cfg Config, log logx.Logger) (Sink, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "discord":
		return newDiscordSink(cfg, log)
	case "telegram":
		return newTelegramSink(cfg, log)
	default:
		return nil, errors.New("unknown delivery driver: " + driver)
	}
}
