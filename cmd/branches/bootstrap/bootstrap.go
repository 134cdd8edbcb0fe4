// Package bootstrap builds the session, layout adapter and metrics shared by
// the commands that host a conversation tree.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/config"
	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
	"github.com/papercomputeco/branches/pkg/llm/providers"
	"github.com/papercomputeco/branches/pkg/metrics"
	"github.com/papercomputeco/branches/pkg/session"
)

// App holds the components of a running conversation tree.
type App struct {
	Config   *config.Config
	Graph    *convo.Graph
	Session  *session.Session
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// Adapter is nil when the layout mode is manual.
	Adapter *layout.Adapter
}

// New wires an App from cfg.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	provider, err := providers.New(cfg.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("could not create provider: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	graph := convo.New(cfg.Conversation.RootTitle)
	sess := session.New(cfg.Session(), graph, provider, logger, session.WithMetrics(m))

	app := &App{
		Config:   cfg,
		Graph:    graph,
		Session:  sess,
		Registry: registry,
		Metrics:  m,
		Logger:   logger,
	}

	if cfg.AutoLayout() {
		app.Adapter = layout.NewAdapter(graph, cfg.Engine(), logger.Named("layout"),
			layout.WithDelay(cfg.Layout.Delay.Duration),
			layout.WithMetrics(m),
		)
	}

	logger.Info("conversation tree ready",
		zap.String("provider", provider.Name()),
		zap.String("model", cfg.Provider.Model),
		zap.String("layout", cfg.Layout.Mode),
		zap.Bool("include_history", cfg.Conversation.IncludeHistory),
		zap.String("history_order", cfg.Conversation.HistoryOrder),
	)

	return app, nil
}

// RunLayout keeps positions current until ctx is done. It returns at once
// in manual layout mode.
func (a *App) RunLayout(ctx context.Context) error {
	if a.Adapter == nil {
		return nil
	}
	return a.Adapter.Run(ctx)
}

// Watch reloads provider settings from the config file at path until ctx
// is done. Nothing is watched without a path.
func (a *App) Watch(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	return config.Watch(ctx, path, a.Logger.Named("config"), a.Reload)
}

// Reload applies the provider settings of cfg to future completions. Other
// settings need a restart.
func (a *App) Reload(cfg *config.Config) {
	provider, err := providers.New(cfg.Provider, a.Logger)
	if err != nil {
		a.Logger.Error("could not create provider", zap.Error(err))
		return
	}
	a.Session.SetProvider(cfg.Provider, provider)
}

// Close stops running completions.
func (a *App) Close() error {
	return a.Session.Close()
}
