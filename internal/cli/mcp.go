package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	meridianmcp "github.com/valter-silva-au/meridian/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the meridian MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the meridian MCP server on stdio",
	Long: `Start the meridian MCP server on stdio transport.

The server exposes the timeline as MCP tools that AI assistants can call:
list_scenarios, start_scenario, send_agent_message, resolve_issue,
approve_draft, reject_draft, add_note, reset, get_timeline,
get_knowledge_graph, get_metrics and get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Timeline == nil {
			return fmt.Errorf("timeline not initialized")
		}

		srv := meridianmcp.NewServer(Timeline, MetricsCalc, AlertEngine, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
