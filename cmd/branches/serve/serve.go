package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/branches/api"
	"github.com/papercomputeco/branches/cmd/branches/bootstrap"
	"github.com/papercomputeco/branches/pkg/config"
	"github.com/papercomputeco/branches/pkg/logger"
	"github.com/papercomputeco/branches/pkg/mcptools"
)

const serveLongDesc string = `Serve a conversation tree over HTTP.

The tree lives in memory for as long as the server runs. Questions are
branched with POST /nodes/:id/questions and answers are followed with
GET /nodes/:id/stream. Prometheus metrics are served at /metrics and an
MCP streamable HTTP endpoint at /mcp.

Examples:
  branches serve
  branches serve --config branches.toml --listen :9000`

const serveShortDesc string = "Serve the conversation tree API"

type serveCommander struct {
	configPath string
	listen     string
	debug      bool
	version    string
}

func NewServeCmd(version string) *cobra.Command {
	cmder := &serveCommander{version: version}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides the config)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}

	log := logger.NewLogger(c.debug || cfg.Log.Debug)
	defer log.Sync()

	app, err := bootstrap.New(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := []api.Option{
		api.WithMetrics(app.Registry),
		api.WithMCP(mcptools.NewHTTPHandler(mcptools.NewServer(app.Session, c.version))),
	}
	if app.Adapter != nil {
		opts = append(opts, api.WithLayout(app.Adapter))
	}
	srv := api.New(api.Config{ListenAddr: cfg.Server.Listen}, app.Session, log, opts...)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return srv.Shutdown()
	})
	g.Go(func() error {
		return app.RunLayout(ctx)
	})
	g.Go(func() error {
		return app.Watch(ctx, c.configPath)
	})

	if err := g.Wait(); err != nil {
		log.Error("serve failed", zap.Error(err))
		return err
	}
	return nil
}
