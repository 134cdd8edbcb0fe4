package main

import (
	"os"

	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/branches/cmd/branches/ask"
	chatcmder "github.com/papercomputeco/branches/cmd/branches/chat"
	exportcmder "github.com/papercomputeco/branches/cmd/branches/export"
	mcpcmder "github.com/papercomputeco/branches/cmd/branches/mcp"
	servecmder "github.com/papercomputeco/branches/cmd/branches/serve"
)

// version is set at build time.
var version = "dev"

const rootLongDesc string = `branches grows a tree of conversations with a language model.

Every answer can be branched: ask a follow-up from any completed node and
the model sees the chain of questions and answers that led there.

Run "branches serve" for the HTTP API, "branches chat" for the terminal
UI, or "branches mcp" to hand the tree to an MCP client.`

func main() {
	root := &cobra.Command{
		Use:           "branches",
		Short:         "Branching conversation trees with language models",
		Long:          rootLongDesc,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		servecmder.NewServeCmd(version),
		chatcmder.NewChatCmd(),
		mcpcmder.NewMCPCmd(version),
		askcmder.NewAskCmd(),
		exportcmder.NewExportCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
