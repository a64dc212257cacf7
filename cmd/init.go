package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/expertroute/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an expertroute config file with an interactive wizard",
	Long: `Asks for the classification provider and quality tier, the database
location and the answer policy, then writes the config file. An existing file
is left alone unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgFile); err == nil && !initForce {
			return fmt.Errorf("%s already exists; rerun with --force to replace it", cfgFile)
		}
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
