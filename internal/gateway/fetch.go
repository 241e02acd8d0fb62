package gateway

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
)

type fetchRequest struct {
	URL string `json:"url"`
}

var (
	scriptStyleRE = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagRE         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRE  = regexp.MustCompile(`\s+`)
)

// Fetch retrieves a document via the workflow fetch endpoint, falling back
// to a direct HTTP GET that strips <script>/<style> blocks and remaining
// HTML tags, then collapses whitespace (spec §4.4, §4.1 Execute phase).
func (g *Gateway) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if g.endpoints.FetchURL != "" {
		var resp FetchResult
		err := g.instrumented(ctx, "fetch:workflow", g.fetchLimiter, func(ctx context.Context) error {
			return g.postJSON(ctx, "fetch:workflow", g.endpoints.FetchURL, fetchRequest{URL: url}, &resp)
		})
		if err == nil {
			return resp, nil
		}
	}

	var result FetchResult
	err := g.instrumented(ctx, "fetch:direct", g.fetchLimiter, func(ctx context.Context) error {
		r, fetchErr := g.directFetch(ctx, url)
		if fetchErr != nil {
			return fetchErr
		}
		result = r
		return nil
	})
	if err != nil {
		return FetchResult{}, err
	}
	return result, nil
}

func (g *Gateway) directFetch(ctx context.Context, url string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, &ToolError{Tool: "fetch:direct", Message: err.Error()}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return FetchResult{}, &ToolError{Tool: "fetch:direct", Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchResult{}, &ToolError{Tool: "fetch:direct", StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{}, &ToolError{Tool: "fetch:direct", StatusCode: resp.StatusCode, Message: string(raw)}
	}

	return FetchResult{URL: url, Title: url, Content: stripHTML(string(raw))}, nil
}

// stripHTML removes script/style blocks, remaining tags, and collapses
// whitespace, matching the direct-fetch fallback behavior spec'd in §4.4.
func stripHTML(html string) string {
	cleaned := scriptStyleRE.ReplaceAllString(html, " ")
	cleaned = tagRE.ReplaceAllString(cleaned, " ")
	cleaned = whitespaceRE.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
