// Package gateway provides thin HTTP adapters fronting the external search,
// fetch, language-model, and embedding endpoints the Pipeline Executor
// depends on. The endpoints themselves are out of scope (spec §1, §6); this
// package only owns the adapter shape, retry/rate-limit behavior, and typed
// error translation described in spec §4.4.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions bounds a single chat call (spec §6 language-model service).
type ChatOptions struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// SearchResult is one hit from the search workflow (spec §6).
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// FetchResult is a retrieved document (spec §6).
type FetchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// EndpointConfig names the HTTP endpoints each adapter fronts. A blank URL
// disables that adapter's primary path; Fetch and Search still fall back to
// their spec'd secondary paths.
type EndpointConfig struct {
	PrimarySearchURL  string
	WorkflowSearchURL string
	FetchURL          string
	ChatURL           string
	EmbedURL          string
}

// RateLimits bounds outbound calls per tool, in requests per second.
type RateLimits struct {
	Search float64
	Fetch  float64
	Chat   float64
	Embed  float64
}

// DefaultRateLimits is a conservative starting point grounded on the same
// per-resource limiting the wider retrieval pack applies to shared external
// services (golang.org/x/time/rate).
var DefaultRateLimits = RateLimits{Search: 2, Fetch: 4, Chat: 1, Embed: 4}

// Gateway is the Tool Gateway: a set of adapters, each rate-limited and
// instrumented with in-process latency/error counters (spec §4.4). Real
// metrics backends are explicitly out of scope (spec §1); Counters exposes
// the same data as plain in-memory structs for the doctor command to surface.
type Gateway struct {
	endpoints EndpointConfig
	client    *http.Client

	searchLimiter *rate.Limiter
	fetchLimiter  *rate.Limiter
	chatLimiter   *rate.Limiter
	embedLimiter  *rate.Limiter

	counters *Counters
}

// New constructs a Gateway. A nil httpClient gets a sane default timeout.
func New(endpoints EndpointConfig, limits RateLimits, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		endpoints:     endpoints,
		client:        httpClient,
		searchLimiter: rate.NewLimiter(rate.Limit(limits.Search), 1),
		fetchLimiter:  rate.NewLimiter(rate.Limit(limits.Fetch), 1),
		chatLimiter:   rate.NewLimiter(rate.Limit(limits.Chat), 1),
		embedLimiter:  rate.NewLimiter(rate.Limit(limits.Embed), 1),
		counters:      newCounters(),
	}
}

// Counters returns the gateway's in-process latency/error counters.
func (g *Gateway) Counters() *Counters { return g.counters }

// ToolStat is a point-in-time snapshot of one tool's counters.
type ToolStat struct {
	Calls        int64
	Errors       int64
	TotalLatency time.Duration
}

// AverageLatency returns TotalLatency / Calls, or zero if there have been no calls.
func (s ToolStat) AverageLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

// Counters tracks per-tool latency and error counts in process memory. This
// satisfies spec §4.4's "record latency and error counters" without wiring a
// metrics backend, which spec §1 explicitly excludes.
type Counters struct {
	mu   sync.Mutex
	byTool map[string]*ToolStat
}

func newCounters() *Counters {
	return &Counters{byTool: map[string]*ToolStat{}}
}

func (c *Counters) record(tool string, elapsed time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byTool[tool]
	if !ok {
		s = &ToolStat{}
		c.byTool[tool] = s
	}
	s.Calls++
	s.TotalLatency += elapsed
	if err != nil {
		s.Errors++
	}
}

// Snapshot returns a copy of the current per-tool counters.
func (c *Counters) Snapshot() map[string]ToolStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]ToolStat, len(c.byTool))
	for k, v := range c.byTool {
		out[k] = *v
	}
	return out
}

func (g *Gateway) instrumented(ctx context.Context, tool string, limiter *rate.Limiter, fn func(ctx context.Context) error) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := fn(ctx)
	g.counters.record(tool, time.Since(start), err)
	return err
}
