package chatcmder

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/papercomputeco/branches/cmd/branches/bootstrap"
	"github.com/papercomputeco/branches/pkg/config"
	"github.com/papercomputeco/branches/pkg/logger"
	"github.com/papercomputeco/branches/pkg/tui"
)

const chatLongDesc string = `Explore a conversation tree in the terminal.

The left pane outlines the tree and the right pane shows the selected
answer. Press "a" on a completed answer to branch a new question off it.
Logs go to the file named by log.file since the screen belongs to the UI.

Examples:
  branches chat
  BRANCHES_PROVIDER=ollama BRANCHES_MODEL=llama3 branches chat`

const chatShortDesc string = "Explore a conversation tree in the terminal"

type chatCommander struct {
	configPath string
	logFile    string
	style      string
	debug      bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "File to log to (overrides the config)")
	cmd.Flags().StringVar(&cmder.style, "style", "", "Markdown style: dark, light, notty (default: from the terminal)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("chat needs an interactive terminal; use serve for headless use")
	}

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

	var opts []tui.Option
	if c.style != "" {
		opts = append(opts, tui.WithStyle(c.style))
	}

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.Go(func() error {
		defer cancel()
		return tui.Run(ctx, app.Session, log, opts...)
	})
	g.Go(func() error {
		return app.RunLayout(ctx)
	})
	g.Go(func() error {
		return app.Watch(ctx, c.configPath)
	})

	if err := g.Wait(); err != nil {
		log.Error("chat failed", zap.Error(err))
		return err
	}
	return nil
}
