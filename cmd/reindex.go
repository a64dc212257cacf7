package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/expertroute/internal/progress"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the similar-question index from open questions",
	Long:  `Embeds every open question and saves the index to similar.index_path. Requires similar.enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := a.Routing.Reindex(context.Background(), progress.NewReporter("Indexing open questions"))
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %d open question(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
