// Package session drives a conversation tree: it branches new questions off
// completed answers and streams each answer into its node.
package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/metrics"
	"github.com/papercomputeco/branches/pkg/prompt"
)

var (
	// ErrEmptyQuestion is returned when asking an empty question.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrParentPending is returned when branching off a node whose answer
	// has not finished.
	ErrParentPending = errors.New("parent answer is not complete")

	// ErrClosed is returned when asking on a closed session.
	ErrClosed = errors.New("session is closed")
)

// Session owns a conversation graph and the completions running against it.
type Session struct {
	graph    *convo.Graph
	measurer layout.Measurer
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu       sync.RWMutex
	config   Config
	provider llm.Provider
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records node and completion metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithMeasurer sets how parent sizes are read for manual placement.
func WithMeasurer(m layout.Measurer) Option {
	return func(s *Session) { s.measurer = m }
}

// New creates a session over graph. Completions run until Close is called.
func New(config Config, graph *convo.Graph, provider llm.Provider, logger *zap.Logger, opts ...Option) *Session {
	if config.HistoryOrder == "" {
		config.HistoryOrder = convo.NearestFirst
	}
	if config.LayoutMode == "" {
		config.LayoutMode = LayoutAuto
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		graph:    graph,
		measurer: layout.CardMeasurer{},
		logger:   logger,
		config:   config,
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Graph returns the session's conversation graph.
func (s *Session) Graph() *convo.Graph {
	return s.graph
}

// Config returns the current configuration.
func (s *Session) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// ProviderName returns the name of the current provider.
func (s *Session) ProviderName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider.Name()
}

// SetProvider swaps the provider and its configuration. Completions already
// running keep the provider they started with.
func (s *Session) SetProvider(cfg llm.Config, provider llm.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.LLM = cfg
	s.provider = provider

	s.logger.Info("provider updated",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.Model),
	)
}

// Ask branches question off parentID and starts streaming its answer. It
// returns the new node and edge as created; the answer arrives later.
func (s *Session) Ask(ctx context.Context, parentID, question string) (convo.Node, convo.Edge, error) {
	if question == "" {
		return convo.Node{}, convo.Edge{}, ErrEmptyQuestion
	}
	if err := ctx.Err(); err != nil {
		return convo.Node{}, convo.Edge{}, err
	}
	if s.ctx.Err() != nil {
		return convo.Node{}, convo.Edge{}, ErrClosed
	}

	parent, err := s.graph.Get(parentID)
	if err != nil {
		return convo.Node{}, convo.Edge{}, err
	}
	if !parent.Completed() {
		return convo.Node{}, convo.Edge{}, ErrParentPending
	}

	var pos convo.Position
	if s.Config().LayoutMode == LayoutManual {
		pos = s.placeRightOf(parent)
	}

	node, edge, err := s.graph.Branch(parentID, question, pos)
	if err != nil {
		return convo.Node{}, convo.Edge{}, err
	}
	s.metrics.NodeCreated()

	s.logger.Info("question asked",
		zap.String("node", node.ID),
		zap.String("parent", parentID),
		zap.String("question", truncate(question, 80)),
	)

	s.launch(node)
	return node, edge, nil
}

// AskFrom waits for req to be resolved and asks the submitted question. A
// canceled request returns prompt.ErrCanceled and creates nothing.
func (s *Session) AskFrom(ctx context.Context, req *prompt.Request) (convo.Node, convo.Edge, error) {
	question, err := req.Response(ctx)
	if err != nil {
		return convo.Node{}, convo.Edge{}, err
	}
	return s.Ask(ctx, req.ParentID, question)
}

// Wait blocks until the node's answer has finished and returns the node.
func (s *Session) Wait(ctx context.Context, id string) (convo.Node, error) {
	done, err := s.graph.Done(id)
	if err != nil {
		return convo.Node{}, err
	}

	select {
	case <-done:
		return s.graph.Get(id)
	case <-ctx.Done():
		return convo.Node{}, ctx.Err()
	}
}

// History returns the messages a completion for id would be sent, ending
// with the node's own question.
func (s *Session) History(id string) ([]llm.Message, error) {
	node, err := s.graph.Get(id)
	if err != nil {
		return nil, err
	}
	return s.messages(node, s.Config())
}

func (s *Session) messages(node convo.Node, config Config) ([]llm.Message, error) {
	if !config.IncludeHistory {
		return []llm.Message{llm.UserMessage(node.Data.Question)}, nil
	}

	messages, err := s.graph.History(node.ID, config.HistoryOrder)
	if err != nil {
		return nil, err
	}
	if node.Data.Question != "" {
		messages = append(messages, llm.UserMessage(node.Data.Question))
	}
	return messages, nil
}

// placeRightOf returns the manual position for a new child of parent.
func (s *Session) placeRightOf(parent convo.Node) convo.Position {
	size := s.measurer.Measure(parent)
	return convo.Position{
		X: snap(parent.Position.X + size.Width + ManualGap),
		Y: snap(parent.Position.Y),
	}
}

func snap(v float64) float64 {
	return math.Round(v/GridSize) * GridSize
}

// Close cancels running completions and waits for them to finish.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// truncate shortens a string for logging to at most n runes.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
