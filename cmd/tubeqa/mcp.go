package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xhad/tubeqa/server"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the question-answering tools over MCP (stdio)",
	Long: `Starts a Model Context Protocol server on stdio with two tools:

  ask_videos    answer a question from the indexed transcripts
  video_stats   report what is indexed

Claude Desktop configuration (claude_desktop_config.json):
  {
    "mcpServers": {
      "tubeqa": {
        "command": "/path/to/tubeqa",
        "args": ["mcp"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	return server.NewMCPServer(svc, logger).Run(ctx)
}
