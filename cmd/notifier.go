package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"lab-registration/internal/config"
	"lab-registration/pkg/logger"

	"github.com/spf13/cobra"
)

var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Deliver queued registration notifications",
	Long: `Drain the notification queue and deliver e-mail for confirmed,
waitlisted and promoted registrations. Requires queue.type=redis so that
events published by the server are visible to this process.`,
	Run: runNotifier,
}

func init() {
	rootCmd.AddCommand(notifierCmd)
}

func runNotifier(cmd *cobra.Command, args []string) {
	cfg := config.Get()
	if cfg.Queue.Type != "redis" {
		logger.Error("notifier needs queue.type=redis, got %q", cfg.Queue.Type)
		os.Exit(1)
	}

	app, err := buildApplication(cfg)
	if err != nil {
		logger.Error("Failed to initialize application: %v", err)
		os.Exit(1)
	}
	defer app.Close()

	app.queue.SetHandler(app.notifier().Handle)
	app.queue.StartWorkers()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping notifier...")
	app.queue.StopWorkers()
}
