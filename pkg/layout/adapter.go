package layout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/metrics"
)

// Adapter keeps node positions in a graph current. It watches graph events
// and, whenever the edge count differs from the last pass, schedules a
// deferred layout pass. Changes that leave the edge count alone (content
// updates, measurements, moves) do not trigger a pass; use Apply for that.
type Adapter struct {
	graph    *convo.Graph
	engine   *Engine
	measurer Measurer
	delay    time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithMeasurer overrides the default CardMeasurer.
func WithMeasurer(m Measurer) AdapterOption {
	return func(a *Adapter) { a.measurer = m }
}

// WithDelay sets how long a pass is deferred after the edge set changes.
func WithDelay(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.delay = d }
}

// WithMetrics records layout passes.
func WithMetrics(m *metrics.Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter creates an adapter for graph using engine.
func NewAdapter(graph *convo.Graph, engine *Engine, logger *zap.Logger, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		graph:    graph,
		engine:   engine,
		measurer: CardMeasurer{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run lays the graph out once and then follows edge-count changes until ctx
// is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	events, cancel := a.graph.Subscribe(64)
	defer cancel()

	_, lastEdges := a.graph.Counts()

	timer := time.NewTimer(a.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.EdgeCount == lastEdges {
				continue
			}
			lastEdges = ev.EdgeCount
			a.logger.Debug("edge set changed, scheduling layout",
				zap.Int("edges", ev.EdgeCount),
				zap.Int("nodes", ev.NodeCount),
			)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(a.delay)

		case <-timer.C:
			a.Apply()
		}
	}
}

// Apply runs one layout pass now, replacing every node with a positioned
// copy of its latest state.
func (a *Adapter) Apply() {
	start := time.Now()

	var nodeCount, edgeCount int
	a.graph.Reconcile(func(nodes []convo.Node, edges []convo.Edge) ([]convo.Node, []convo.Edge) {
		nodeCount, edgeCount = len(nodes), len(edges)
		return Arrange(a.engine, a.measurer, nodes, edges), edges
	})

	elapsed := time.Since(start)
	a.metrics.LayoutPass(elapsed)
	a.logger.Debug("layout pass",
		zap.Int("nodes", nodeCount),
		zap.Int("edges", edgeCount),
		zap.Duration("elapsed", elapsed),
	)
}
