package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// postJSON POSTs body as JSON to url and decodes a JSON response into out.
// Non-2xx responses become a *ToolError carrying the response body as the
// message (spec §4.4: "translates HTTP non-2xx into a typed failure").
func (g *Gateway) postJSON(ctx context.Context, tool, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", tool, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", tool, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return g.do(tool, req, out)
}

// getJSON issues a GET and decodes a JSON response into out.
func (g *Gateway) getJSON(ctx context.Context, tool, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", tool, err)
	}
	return g.do(tool, req, out)
}

func (g *Gateway) do(tool string, req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return &ToolError{Tool: tool, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ToolError{Tool: tool, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ToolError{Tool: tool, StatusCode: resp.StatusCode, Message: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return &ToolError{Tool: tool, StatusCode: resp.StatusCode, Message: "non-JSON response: " + err.Error()}
	}
	return nil
}
