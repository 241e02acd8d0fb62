package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// ToolError is the typed failure every adapter returns for a non-2xx
// response or transport failure (spec §4.4: "translates HTTP non-2xx into a
// typed failure"). It mirrors the store package's RecoverableError shape so
// callers can surface the same structured context uniformly.
type ToolError struct {
	Tool       string
	StatusCode int
	Message    string
}

func (e *ToolError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s tool failed: HTTP %d: %s", e.Tool, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s tool failed: %s", e.Tool, e.Message)
}

// ErrorCode classifies the failure for structured error responses.
func (e *ToolError) ErrorCode() string { return "TOOL_FAILURE" }

// Context carries the tool name and status code for diagnostics.
func (e *ToolError) Context() map[string]string {
	return map[string]string{
		"tool":        e.Tool,
		"status_code": strconv.Itoa(e.StatusCode),
	}
}

// SuggestedAction tells the Pipeline Executor this is never fatal on its own
// (spec §7: "Never fatal to the job").
func (e *ToolError) SuggestedAction() string {
	return "try the next tool in priority order, or degrade to a heuristic fallback"
}

// IsTokenExceeded reports whether the failure looks like an embedding
// payload-too-large error (spec §4.4 embed adapter: HTTP 413 or a message
// mentioning the token ceiling).
func (e *ToolError) IsTokenExceeded() bool {
	if e.StatusCode == 413 {
		return true
	}
	return containsTokenComplaint(e.Message)
}

func containsTokenComplaint(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "token")
}
