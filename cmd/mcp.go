package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/ait/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Agents pick up, return, complete and review issues through it. Configure
in Claude Code with:

  {
    "mcpServers": {
      "ait": { "command": "ait", "args": ["mcp"] }
    }
  }

Logs go to stderr; stdout carries the protocol.

Available tools: add_issue, list_issues, get_issue, peek_next_issue,
get_next_issue, return_issue, complete_issue, get_next_review,
close_issue, suggest_classification`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	ctx = orBackground(ctx)
	logger := newLogger(os.Stderr)
	slog.SetDefault(logger)

	t, err := getTracker(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	logger.Info("mcp stdio server started", "store", dataStore.Location(), "issues", t.Len())
	srv := mcp.NewServer(t, getSuggester(), buildVersion)
	if err := srv.ServeStdio(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
