package session

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/llm"
)

// launch starts the completion for node in its own goroutine. A node is only
// ever streamed once: nodes without a question, with content, or already
// started are ignored.
func (s *Session) launch(node convo.Node) {
	if !s.graph.BeginStream(node.ID) {
		return
	}

	s.mu.RLock()
	config := s.config
	provider := s.provider
	closed := s.closed
	if !closed {
		s.wg.Add(1)
	}
	s.mu.RUnlock()

	// Close raced with Ask after the node was created.
	if closed {
		if err := s.graph.Complete(node.ID, ErrClosed); err != nil {
			s.logger.Warn("failed to complete node", zap.String("node", node.ID), zap.Error(err))
		}
		return
	}

	go func() {
		defer s.wg.Done()
		s.complete(node, config, provider)
	}()
}

func (s *Session) complete(node convo.Node, config Config, provider llm.Provider) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("node", node.ID),
		zap.String("provider", provider.Name()),
	)

	messages, err := s.messages(node, config)
	if err != nil {
		s.finish(logger, node.ID, provider.Name(), start, 0, err)
		return
	}

	logger.Debug("starting completion",
		zap.String("model", config.LLM.Model),
		zap.Int("message_count", len(messages)),
	)

	var (
		answer    strings.Builder
		fragments int
		streamErr error
	)

	for res := range provider.Stream(s.ctx, config.LLM.Request(messages)) {
		switch res.Status {
		case llm.StreamFragment:
			if res.Text == "" {
				continue
			}
			answer.WriteString(res.Text)
			fragments++
			s.metrics.Fragment()
			if err := s.graph.SetContent(node.ID, answer.String()); err != nil {
				logger.Warn("failed to update content", zap.Error(err))
			}
		case llm.StreamFailed:
			streamErr = res.Err
		}
		if res.Status != llm.StreamFragment {
			break
		}
	}

	s.finish(logger, node.ID, provider.Name(), start, fragments, streamErr)
}

// finish marks the node terminal whatever the stream produced.
func (s *Session) finish(logger *zap.Logger, id, provider string, start time.Time, fragments int, err error) {
	elapsed := time.Since(start)

	outcome := string(convo.StatusCompleted)
	if err != nil {
		outcome = string(convo.StatusFailed)
		logger.Error("completion failed",
			zap.Error(err),
			zap.Int("fragments", fragments),
			zap.Duration("duration", elapsed),
		)
	} else {
		logger.Info("completion finished",
			zap.Int("fragments", fragments),
			zap.Duration("duration", elapsed),
		)
	}

	s.metrics.Completion(provider, outcome, elapsed)
	if cerr := s.graph.Complete(id, err); cerr != nil {
		logger.Warn("failed to complete node", zap.Error(cerr))
	}
}
