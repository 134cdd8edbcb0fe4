package mcpcmder

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/branches/cmd/branches/bootstrap"
	"github.com/papercomputeco/branches/pkg/config"
	"github.com/papercomputeco/branches/pkg/logger"
	"github.com/papercomputeco/branches/pkg/mcptools"
)

const mcpLongDesc string = `Serve a conversation tree to an MCP client over stdio.

The client gets the ask_question, get_history, get_graph and
wait_for_answer tools. Logs go to the file named by log.file since stdout
carries the protocol.

Examples:
  branches mcp
  branches mcp --config ~/.config/branches.toml`

const mcpShortDesc string = "Serve the conversation tree over MCP stdio"

type mcpCommander struct {
	configPath string
	logFile    string
	debug      bool
	version    string
}

func NewMCPCmd(version string) *cobra.Command {
	cmder := &mcpCommander{version: version}

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: mcpShortDesc,
		Long:  mcpLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "File to log to (overrides the config)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *mcpCommander) run(ctx context.Context) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logFile != "" {
		cfg.Log.File = c.logFile
	}

	log, closeLog, err := logger.NewFileLogger(cfg.Log.File, c.debug || cfg.Log.Debug)
	if err != nil {
		return err
	}
	defer closeLog()
	defer log.Sync()

	app, err := bootstrap.New(cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	server := mcptools.NewServer(app.Session, c.version)

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.Go(func() error {
		defer cancel()
		if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
			return fmt.Errorf("mcp server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.RunLayout(ctx)
	})
	g.Go(func() error {
		return app.Watch(ctx, c.configPath)
	})

	return g.Wait()
}
