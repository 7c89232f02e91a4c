package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "matchwatch/pkg/logx"
)

// telegramSink sends through the Bot API. Telegram has no server-side role
// registry, so @mentions pass through as plain text.
type telegramSink struct {
	cfg TelegramConfig
	bot *tele.Bot
	log logx.Logger
}

func newTelegramSink(cfg Config, log logx.Logger) (Sink, error) {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.Telegram.Chats) == 0 {
		return nil, errors.New("telegram delivery requires at least one chat")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &telegramSink{cfg: cfg.Telegram, bot: b, log: log}, nil
}

func (t *telegramSink) Send(ctx context.Context, m Message) error {
	chatID, ok := t.cfg.Chats[m.Channel]
	if !ok {
		return fmt.Errorf("no chat configured for channel %q", m.Channel)
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	chat := &tele.Chat{ID: chatID}
	if m.AttachmentPath != "" {
		doc := &tele.Document{File: tele.FromDisk(m.AttachmentPath), Caption: m.Text}
		_, err := t.bot.Send(chat, doc)
		if err == nil {
			t.log.Debug("telegram document sent", logx.String("channel", m.Channel))
		}
		return err
	}

	_, err := t.bot.Send(chat, m.Text)
	if err == nil {
		t.log.Debug("telegram message sent", logx.String("channel", m.Channel))
	}
	return err
}
