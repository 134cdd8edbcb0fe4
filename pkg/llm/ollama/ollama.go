// Package ollama streams chat completions from an Ollama-compatible /api/chat endpoint.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/llm"
)

const (
	// DefaultBaseURL is the local Ollama daemon.
	DefaultBaseURL = "http://localhost:11434"

	providerName = "ollama"
)

// Provider implements llm.Provider over Ollama's NDJSON streaming protocol.
type Provider struct {
	baseURL    string
	model      string
	keepAlive  string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an Ollama provider.
func New(cfg llm.Config, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      cfg.Model,
		keepAlive:  cfg.KeepAlive,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (p *Provider) Name() string { return providerName }

// Stream implements llm.Provider.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) llm.Stream {
	model := req.Model
	if model == "" {
		model = p.model
	}

	streaming := true
	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  req.Messages,
		Stream:    &streaming,
		Options:   req.Options,
		KeepAlive: p.keepAlive,
	})
	if err != nil {
		return llm.FailedStream(fmt.Errorf("marshal request: %w", err))
	}

	upstreamURL := p.baseURL + "/api/chat"

	return func(yield func(llm.StreamResult) bool) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, bytes.NewReader(body))
		if err != nil {
			yield(llm.Failed(fmt.Errorf("create request: %w", err)))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		p.logger.Debug("forwarding streaming request to ollama",
			zap.String("url", upstreamURL),
			zap.String("model", model),
		)

		httpResp, err := p.httpClient.Do(httpReq)
		if err != nil {
			yield(llm.Failed(&llm.ProviderError{Provider: providerName, Message: err.Error()}))
			return
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
			yield(llm.Failed(&llm.ProviderError{
				Provider:   providerName,
				StatusCode: httpResp.StatusCode,
				Message:    strings.TrimSpace(string(respBody)),
			}))
			return
		}

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal(line, &chunk); err != nil {
				p.logger.Warn("failed to parse chunk", zap.Error(err), zap.String("line", string(line)))
				continue
			}

			if chunk.Error != "" {
				yield(llm.Failed(&llm.ProviderError{Provider: providerName, Message: chunk.Error}))
				return
			}

			if chunk.Message.Content != "" {
				if !yield(llm.Fragment(chunk.Message.Content)) {
					return
				}
			}

			if chunk.Done {
				p.logger.Debug("ollama stream done",
					zap.Int("eval_count", chunk.EvalCount),
					zap.Int64("total_duration_ns", chunk.TotalDuration),
				)
				yield(llm.Completed())
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(llm.Failed(&llm.ProviderError{Provider: providerName, Message: err.Error()}))
			return
		}

		// Body ended without a done chunk.
		yield(llm.Completed())
	}
}
