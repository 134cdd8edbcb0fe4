// Package gemini streams chat completions from the Google Generative Language API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/llm"
)

const (
	// DefaultBaseURL is the public Generative Language API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultModel is used when the config leaves the model empty.
	DefaultModel = "gemini-1.5-flash-latest"

	providerName = "gemini"
)

// Provider implements llm.Provider for Gemini models.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Gemini provider. No client timeout is applied: a completion
// runs until the stream ends or ctx is cancelled.
func New(cfg llm.Config, logger *zap.Logger) *Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// WithHTTPClient replaces the HTTP client used for upstream requests.
func (p *Provider) WithHTTPClient(c *http.Client) *Provider {
	p.httpClient = c
	return p
}

func (p *Provider) Name() string { return providerName }

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"` // "user" or "model"
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	TopK        *int     `json:"topK,omitempty"`
	MaxTokens   *int     `json:"maxOutputTokens,omitempty"`
	Stop        []string `json:"stopSequences,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

type request struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type response struct {
	Candidates []candidate `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// toRequest converts the neutral request to the Gemini wire format. Gemini
// names the assistant role "model" and takes system text separately.
func toRequest(req *llm.ChatRequest) request {
	out := request{}

	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			out.SystemInstruction = &content{Parts: []part{{Text: m.Content}}}
			continue
		}

		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	if o := req.Options; o != nil {
		out.GenerationConfig = &generationConfig{
			Temperature: o.Temperature,
			TopP:        o.TopP,
			TopK:        o.TopK,
			MaxTokens:   o.NumPredict,
			Stop:        o.Stop,
			Seed:        o.Seed,
		}
	}

	return out
}

// Stream implements llm.Provider using streamGenerateContent with alt=sse.
// Every SSE event carries the next slice of text for the first candidate.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) llm.Stream {
	if p.apiKey == "" {
		return llm.FailedStream(&llm.ProviderError{Provider: providerName, Message: "api key is not set"})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	body, err := json.Marshal(toRequest(req))
	if err != nil {
		return llm.FailedStream(fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)

	return func(yield func(llm.StreamResult) bool) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			yield(llm.Failed(fmt.Errorf("create request: %w", err)))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("x-goog-api-key", p.apiKey)

		p.logger.Debug("starting gemini stream",
			zap.String("model", model),
			zap.Int("message_count", len(req.Messages)),
		)

		httpResp, err := p.httpClient.Do(httpReq)
		if err != nil {
			yield(llm.Failed(&llm.ProviderError{Provider: providerName, Message: err.Error()}))
			return
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			yield(llm.Failed(readError(httpResp)))
			return
		}

		scanner := newSSEScanner(httpResp.Body)
		for {
			payload, err := scanner.next()
			if errors.Is(err, io.EOF) {
				yield(llm.Completed())
				return
			}
			if err != nil {
				yield(llm.Failed(&llm.ProviderError{Provider: providerName, Message: err.Error()}))
				return
			}

			var chunk response
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				p.logger.Warn("failed to parse gemini chunk", zap.Error(err), zap.String("payload", payload))
				continue
			}

			if text := chunkText(chunk); text != "" {
				if !yield(llm.Fragment(text)) {
					return
				}
			}
		}
	}
}

func chunkText(r response) string {
	if len(r.Candidates) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	msg := strings.TrimSpace(string(body))
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}

	return &llm.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: msg}
}
