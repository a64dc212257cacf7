package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/expertroute/internal/progress"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-match every open question once",
	Long:  `Resets expired weekly expert quotas, then rescores the candidate pool of every open question and notifies newly eligible experts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Sweeper.Run(context.Background(), progress.NewReporter("Matching open questions"))
		if err != nil {
			return err
		}
		fmt.Printf("Swept %d question(s): %d matched, %d skipped, %d failed; %d weekly quota(s) reset\n",
			res.Questions, res.Matched, res.Skipped, res.Failed, res.WeeksReset)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
