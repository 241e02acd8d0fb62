package gateway

import "context"

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// searchEndpoint names one entry in the adapter's priority list.
type searchEndpoint struct {
	name string
	url  string
}

// Search tries search endpoints in priority order and returns the first
// non-empty result set (spec §4.4). The priority list is derived from the
// step's tool_hint, then falls back to the default order: primary search,
// then the workflow search endpoint.
func (g *Gateway) Search(ctx context.Context, query, hint string) ([]SearchResult, error) {
	order := g.searchPriority(hint)

	var lastErr error
	for _, ep := range order {
		if ep.url == "" {
			continue
		}
		var resp searchResponse
		err := g.instrumented(ctx, "search:"+ep.name, g.searchLimiter, func(ctx context.Context) error {
			return g.postJSON(ctx, "search:"+ep.name, ep.url, searchRequest{Query: query, Limit: 10}, &resp)
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Results) > 0 {
			return resp.Results, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

func (g *Gateway) searchPriority(hint string) []searchEndpoint {
	primary := searchEndpoint{name: "primary", url: g.endpoints.PrimarySearchURL}
	workflow := searchEndpoint{name: "workflow", url: g.endpoints.WorkflowSearchURL}

	if hint == "workflow" {
		return []searchEndpoint{workflow, primary}
	}
	return []searchEndpoint{primary, workflow}
}
