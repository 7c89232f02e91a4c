package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"matchwatch/internal/subject"
)

// GenTextConfig configures the hosted chat-completion provider.
type GenTextConfig struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Style   string // optional house-style instructions appended to the system prompt
}

// GenTextClient talks to an OpenAI-compatible chat completions endpoint.
// The provider is treated as unreliable: auth, quota and network failures
// are expected and surface as plain errors for the composer to swallow.
type GenTextClient struct {
	cfg  GenTextConfig
	http *http.Client
}

func NewGenTextClient(cfg GenTextConfig) (*GenTextClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gentext api key is empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &GenTextClient{cfg: cfg, http: &http.Client{Timeout: 15 * time.Second}}, nil
}

const systemPrompt = "You write short, energetic esports team announcements. " +
	"One or two sentences, no markdown headings, keep every fact from the user message intact."

func (c *GenTextClient) Generate(ctx context.Context, p Prompt) (string, error) {
	sys := systemPrompt
	if s := strings.TrimSpace(c.cfg.Style); s != "" {
		sys += " " + s
	}

	payload := struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}{Model: c.cfg.Model, MaxTokens: 160}
	payload.Messages = append(payload.Messages,
		struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: "system", Content: sys},
		struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: "user", Content: userPrompt(p)},
	)

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gentext decode: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		if out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("gentext: %s (http=%d)", out.Error.Message, resp.StatusCode)
		}
		return "", fmt.Errorf("gentext: http=%d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("gentext: no choices")
	}
	return out.Choices[0].Message.Content, nil
}

func userPrompt(p Prompt) string {
	var b strings.Builder
	switch p.Kind {
	case subject.KindScrim:
		fmt.Fprintf(&b, "Practice match against %s", p.Title)
	case subject.KindTournament:
		fmt.Fprintf(&b, "Tournament: %s", p.Title)
	default:
		fmt.Fprintf(&b, "Team event: %s", p.Title)
	}
	fmt.Fprintf(&b, "\nStarts in: %s", p.Countdown)
	if p.Detail != "" {
		fmt.Fprintf(&b, "\nDetails: %s", p.Detail)
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "\nLocation: %s", p.Location)
	}
	b.WriteString("\nMention @everyone and include the exact countdown.")
	return b.String()
}
