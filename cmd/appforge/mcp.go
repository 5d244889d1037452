package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/appforge/internal/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline as MCP tools over stdio",
	Long: `Start an MCP server on stdin/stdout exposing:
  publish_app   run a task request end to end
  get_run       inspect runs made by this process

Logs go to stderr so they do not interfere with the stdio transport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, secrets, err := loadValidConfig()
		if err != nil {
			return err
		}

		st, err := buildStack(cfg, secrets, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		return mcptool.ServeStdio(mcptool.NewServer(Version(), st.orch, st.journal))
	},
}
