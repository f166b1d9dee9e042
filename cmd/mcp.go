package cmd

import (
	"github.com/spf13/cobra"

	"github.com/trackrhq/trackr/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP-capable agents query and manage issues natively.
Configure the agent with:

  {
    "mcpServers": {
      "trackr": { "command": "trackr", "args": ["mcp"] }
    }
  }

Available tools: trackr_list_issues, trackr_get_issue, trackr_create_issue,
trackr_update_issue, trackr_delete_issue, trackr_issue_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(s)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
