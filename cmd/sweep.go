package cmd

import (
	"context"
	"os"
	"time"

	"lab-registration/internal/config"
	"lab-registration/internal/service"
	"lab-registration/pkg/logger"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close expired lab sessions once",
	Long:  "Move every OPEN lab session whose end date has passed to CLOSED and exit.",
	Run:   runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) {
	app, err := buildApplication(config.Get())
	if err != nil {
		logger.Error("Failed to initialize application: %v", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	closed, err := service.NewSessionSweeper(app.sessions, 0).RunOnce(ctx)
	if err != nil {
		logger.Error("Sweep failed after closing %d sessions: %v", closed, err)
		os.Exit(1)
	}

	logger.Info("Sweep closed %d expired lab sessions", closed)
}
