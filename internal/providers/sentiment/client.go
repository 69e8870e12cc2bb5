package sentiment

import (
	"context"
	"fmt"
	"strings"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
	"github.com/gustavo/advisor-cli/internal/httpx"
)

const (
	defaultAPIBase = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Client asks a chat-completion endpoint to classify market sentiment for
// one symbol. Single attempt per call; retries belong to the feed policy.
type Client struct {
	http    *httpx.Client
	apiBase string
	apiKey  string
	model   string
}

func New(httpClient *httpx.Client, apiBase, apiKey string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultAPIBase
	}
	return &Client{
		http:    httpClient,
		apiBase: strings.TrimRight(apiBase, "/"),
		apiKey:  apiKey,
		model:   defaultModel,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze classifies sentiment for symbol as Bullish, Bearish, or Neutral.
func (c *Client) Analyze(ctx context.Context, symbol string, price, change24h float64) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", clierr.New(clierr.CodeUsage, "symbol is required")
	}

	prompt := fmt.Sprintf(
		"The meme token %s trades at $%.10g with a 24h change of %.2f%%. "+
			"Answer with exactly one word: Bullish, Bearish, or Neutral.",
		sym, price, change24h)
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a terse crypto market sentiment classifier."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: 4,
	}
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp chatResponse
	if _, err := c.http.PostJSON(ctx, c.apiBase+"/chat/completions", body, headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", clierr.New(clierr.CodeUnavailable, "sentiment feed returned no choices")
	}
	return normalize(resp.Choices[0].Message.Content)
}

func normalize(raw string) (string, error) {
	clean := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".!"))
	switch {
	case strings.Contains(clean, "bullish"):
		return "Bullish", nil
	case strings.Contains(clean, "bearish"):
		return "Bearish", nil
	case strings.Contains(clean, "neutral"):
		return "Neutral", nil
	}
	return "", clierr.New(clierr.CodeUnavailable, fmt.Sprintf("sentiment feed returned unrecognized label %q", raw))
}
