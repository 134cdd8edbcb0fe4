// Package llm provides the provider-neutral representation of streaming chat
// completions used by the conversation tree.
package llm

import "fmt"

// ErrorResponse is the JSON error body returned by the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ProviderError is returned (or yielded in a Failed result) when an upstream
// model provider rejects or breaks a request.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}

	return fmt.Sprintf("%s: upstream returned %d: %s", e.Provider, e.StatusCode, e.Message)
}
