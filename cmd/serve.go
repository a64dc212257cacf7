package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/expertroute/internal/logger"
	mcpserver "github.com/ziadkadry99/expertroute/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing question, forward, response and match tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		mcpserver.Version = Version
		a.Logger.Info("MCP server started on stdio",
			logger.String("version", Version),
			logger.String("database", a.DB.Path()),
		)
		return mcpserver.NewServer(a.Routing).Serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
