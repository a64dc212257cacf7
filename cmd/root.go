package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "expertroute",
	Short: "Route questions to the right experts in a professional network",
	Long: `expertroute classifies questions, matches them to experts within the
asker's chosen reach of their network, notifies the best matches and tracks
forwards and responses until the question is answered. It serves a REST API
and exposes the same operations to AI agents over MCP.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".expertroute.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
