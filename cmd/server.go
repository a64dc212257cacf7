package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/expertroute/internal/logger"
	"github.com/ziadkadry99/expertroute/internal/sweep"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the routing API server",
	Long:  `Starts the expertroute REST API with Prometheus metrics, and the background sweep that re-matches open questions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		if serverPort > 0 {
			a.Config.Server.Port = serverPort
		}
		srv := a.HTTPServer()

		var sched *sweep.Scheduler
		if a.Config.Sweep.Enabled {
			sched, err = sweep.NewScheduler(a.Sweeper, a.Config.Sweep.Schedule, a.Logger.With(logger.String("component", "sweep")))
			if err != nil {
				return err
			}
			sched.Start()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go func() {
			<-ctx.Done()
			a.Logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if sched != nil {
				if err := sched.Stop(shutdownCtx); err != nil {
					a.Logger.Warn("stopping sweep", logger.Error(err))
				}
			}
			srv.Shutdown(shutdownCtx)
		}()

		a.Logger.Info("expertroute server starting",
			logger.String("version", Version),
			logger.Int("port", a.Config.Server.Port),
			logger.String("database", a.DB.Path()),
		)
		return srv.Start()
	},
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "port to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
