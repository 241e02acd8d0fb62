package gateway

import (
	"context"
	"errors"
)

type chatRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Text string `json:"text"`
}

// Chat calls the language-model chat endpoint. Callers (planner, summarizer,
// critic) must tolerate a non-JSON Text payload themselves (spec §6).
func (g *Gateway) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if g.endpoints.ChatURL == "" {
		return "", &ToolError{Tool: "chat", Message: "no chat endpoint configured"}
	}

	var resp chatResponse
	err := g.instrumented(ctx, "chat", g.chatLimiter, func(ctx context.Context) error {
		return g.postJSON(ctx, "chat", g.endpoints.ChatURL, chatRequest{
			Messages:    messages,
			MaxTokens:   opts.MaxTokens,
			Temperature: opts.Temperature,
		}, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", errors.New("chat endpoint returned empty text")
	}
	return resp.Text, nil
}
