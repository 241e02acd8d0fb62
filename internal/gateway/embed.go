package gateway

import (
	"context"
	"errors"

	"github.com/oremus-labs/research-orchestrator/internal/contextpack"
)

// MaxEmbedAttempts bounds the embed adapter's shrink-and-retry loop (spec §4.4).
const MaxEmbedAttempts = 4

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

// Embed calls the embedding endpoint, shrinking the payload on
// token-exceeded failures (HTTP 413 or a "token" complaint) and retrying up
// to MaxEmbedAttempts times (spec §4.4).
func (g *Gateway) Embed(ctx context.Context, text string) ([]float64, error) {
	if g.endpoints.EmbedURL == "" {
		return nil, &ToolError{Tool: "embed", Message: "no embed endpoint configured"}
	}

	payload := text
	var lastErr error
	for attempt := 0; attempt < MaxEmbedAttempts; attempt++ {
		var resp embedResponse
		err := g.instrumented(ctx, "embed", g.embedLimiter, func(ctx context.Context) error {
			return g.postJSON(ctx, "embed", g.endpoints.EmbedURL, embedRequest{Text: payload}, &resp)
		})
		if err == nil {
			return resp.Vector, nil
		}
		lastErr = err

		var toolErr *ToolError
		if !errors.As(err, &toolErr) || !toolErr.IsTokenExceeded() {
			return nil, err
		}
		payload = contextpack.ClampForEmbedding(payload, contextpack.EmbeddingTokenCeiling)
	}
	return nil, lastErr
}
