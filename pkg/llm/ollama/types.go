package ollama

import (
	"time"

	"github.com/papercomputeco/branches/pkg/llm"
)

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   *bool         `json:"stream,omitempty"` // Ollama streams unless told otherwise
	Options  *llm.Options  `json:"options,omitempty"`

	// How long to keep the model loaded after the request
	KeepAlive string `json:"keep_alive,omitempty"`
}

// streamChunk is a single NDJSON line of a streaming /api/chat response.
type streamChunk struct {
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	Message   llm.Message `json:"message"`
	Done      bool        `json:"done"`
	Error     string      `json:"error,omitempty"`

	// Final chunk includes metrics
	TotalDuration int64 `json:"total_duration,omitempty"`
	EvalCount     int   `json:"eval_count,omitempty"`
}
