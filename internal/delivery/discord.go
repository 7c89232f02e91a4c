package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	logx "matchwatch/pkg/logx"
)

// discordSink posts to per-channel webhooks. Role mentions are rewritten
// from free text before sending; Discord otherwise renders @Name literally.
type discordSink struct {
	cfg  DiscordConfig
	http *http.Client
	log  logx.Logger
}

func newDiscordSink(cfg Config, log logx.Logger) (Sink, error) {
	if len(cfg.Discord.Webhooks) == 0 {
		return nil, errors.New("discord delivery requires at least one webhook")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &discordSink{
		cfg:  cfg.Discord,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}, nil
}

func (d *discordSink) Send(ctx context.Context, m Message) error {
	url, ok := d.cfg.Webhooks[m.Channel]
	if !ok || strings.TrimSpace(url) == "" {
		return fmt.Errorf("no webhook configured for channel %q", m.Channel)
	}

	text := ResolveMentions(m.Text, d.cfg.Roles)

	var req *http.Request
	var err error
	if m.AttachmentPath != "" {
		req, err = d.multipartRequest(ctx, url, text, m.AttachmentPath)
	} else {
		req, err = d.jsonRequest(ctx, url, text)
	}
	if err != nil {
		return err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord webhook: http=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	d.log.Debug("discord message sent", logx.String("channel", m.Channel), logx.Int("len", len(text)))
	return nil
}

func (d *discordSink) jsonRequest(ctx context.Context, url, text string) (*http.Request, error) {
	b, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (d *discordSink) multipartRequest(ctx context.Context, url, text, attachment string) (*http.Request, error) {
	f, err := os.Open(attachment)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return nil, err
	}
	if err := mw.WriteField("payload_json", string(payload)); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("files[0]", filepath.Base(attachment))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// ResolveMentions rewrites @RoleName tokens into Discord role mentions
// using a case-insensitive lookup. Unmatched tokens (including the builtin
// @everyone/@here) pass through unchanged.
func ResolveMentions(text string, roles map[string]string) string {
	if len(roles) == 0 {
		return text
	}
	lower := make(map[string]string, len(roles))
	for name, id := range roles {
		lower[strings.ToLower(name)] = id
	}
	return mentionRe.ReplaceAllStringFunc(text, func(tok string) string {
		name := strings.ToLower(strings.TrimPrefix(tok, "@"))
		if id, ok := lower[name]; ok && id != "" {
			return "<@&" + id + ">"
		}
		return tok
	})
}
