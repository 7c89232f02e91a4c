// Package composer builds outbound notification text.
//
// It asks a generative-text provider for a short announcement and falls
// back to a deterministic template on any failure. The fallback is a hard
// requirement: a misconfigured or flaky provider must never cause a
// notification to be skipped.
package composer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"matchwatch/internal/subject"
	"matchwatch/internal/window"
	logx "matchwatch/pkg/logx"
)

// Prompt carries the subject fields the provider may use. Scheduling logic
// never reads these; they exist for message texture only.
type Prompt struct {
	Kind      subject.Kind
	Title     string
	Detail    string
	Location  string
	Countdown string
}

// Generator produces free text for a prompt. Implementations must respect
// the context deadline; the composer never waits on them indefinitely.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

type Composer struct {
	gen     Generator
	timeout time.Duration
	log     logx.Logger
}

// New builds a composer. gen may be nil, in which case every message uses
// the fallback template.
func New(gen Generator, timeout time.Duration, log logx.Logger) *Composer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Composer{gen: gen, timeout: timeout, log: log}
}

// Compose returns the message text for one decided send. It never fails.
func (c *Composer) Compose(ctx context.Context, p Prompt, tag window.Tag) string {
	if c.gen != nil {
		gctx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := c.gen.Generate(gctx, p)
		cancel()
		if err == nil {
			text = strings.TrimSpace(text)
			if text != "" {
				return text
			}
			err = fmt.Errorf("empty response")
		}
		c.log.Warn("text generation failed, using fallback",
			logx.String("subject", p.Title), logx.String("window", string(tag)), logx.Err(err))
	}
	return Fallback(p)
}

// Fallback renders the deterministic template from the same subject fields
// the provider would have seen.
func Fallback(p Prompt) string {
	var b strings.Builder
	switch p.Kind {
	case subject.KindScrim:
		fmt.Fprintf(&b, "@everyone Scrim vs %s starts in %s!", p.Title, p.Countdown)
	case subject.KindTournament:
		fmt.Fprintf(&b, "@everyone Tournament %s starts in %s!", p.Title, p.Countdown)
	default:
		fmt.Fprintf(&b, "@everyone Reminder: %s starts in %s!", p.Title, p.Countdown)
	}
	if p.Detail != "" {
		b.WriteString("\n")
		b.WriteString(p.Detail)
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "\nWhere: %s", p.Location)
	}
	return b.String()
}
