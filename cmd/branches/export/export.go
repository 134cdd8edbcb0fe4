package exportcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const exportLongDesc string = `Export the conversation tree of a remote branches server.

Downloads the tree as an SVG drawing at its current layout, or as the raw
JSON graph of nodes and edges.

Examples:
  branches export http://localhost:8090 > tree.svg
  branches export --format json --output tree.json http://localhost:8090`

const exportShortDesc string = "Export a conversation tree as SVG or JSON"

var formatPaths = map[string]string{
	"svg":  "/graph/svg",
	"json": "/graph",
}

type exportCommander struct {
	format string
	output string
}

func NewExportCmd() *cobra.Command {
	cmder := &exportCommander{}

	cmd := &cobra.Command{
		Use:   "export <server-url>",
		Short: exportShortDesc,
		Long:  exportLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&cmder.format, "format", "f", "svg", "Export format: svg or json")
	cmd.Flags().StringVarP(&cmder.output, "output", "o", "", "File to write (default: stdout)")

	return cmd
}

func (c *exportCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	path, ok := formatPaths[c.format]
	if !ok {
		return fmt.Errorf("unknown format %q: use svg or json", c.format)
	}
	serverURL = strings.TrimRight(serverURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var w io.Writer = cmd.OutOrStdout()
	if c.output != "" {
		f, err := os.Create(c.output)
		if err != nil {
			return fmt.Errorf("could not create %s: %w", c.output, err)
		}
		defer f.Close()
		w = f
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("could not write export: %w", err)
	}

	if c.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d bytes of %s to %s\n", n, c.format, c.output)
	}

	return nil
}
