// Package echo is an offline provider that streams the last user message
// back word by word. It needs no network and is deterministic.
package echo

import (
	"context"
	"strings"
	"time"

	"github.com/papercomputeco/branches/pkg/llm"
)

// Provider implements llm.Provider without a model.
type Provider struct {
	// Delay is slept between fragments.
	Delay time.Duration
}

// New creates an echo provider.
func New(delay time.Duration) *Provider {
	return &Provider{Delay: delay}
}

func (p *Provider) Name() string { return "echo" }

// Stream yields "You asked: <question>" split on word boundaries, keeping the
// separating spaces so the fragments concatenate back to the full answer.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) llm.Stream {
	question := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			question = req.Messages[i].Content
			break
		}
	}

	answer := "You asked: " + question

	return func(yield func(llm.StreamResult) bool) {
		for _, word := range strings.SplitAfter(answer, " ") {
			if err := ctx.Err(); err != nil {
				yield(llm.Failed(err))
				return
			}
			if word == "" {
				continue
			}
			if !yield(llm.Fragment(word)) {
				return
			}
			if p.Delay > 0 {
				time.Sleep(p.Delay)
			}
		}
		yield(llm.Completed())
	}
}
