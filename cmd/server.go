package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lab-registration/internal/api/router"
	"lab-registration/internal/config"
	"lab-registration/internal/infrastructure/database"
	"lab-registration/internal/service"
	"lab-registration/pkg/logger"
	"lab-registration/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	port          string
	runMigrations bool
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the lab registration HTTP server",
	Long: `Start the lab registration HTTP server.
This includes:
- Lab session and time slot management (admin)
- Registration with automatic waitlisting
- Waitlist promotion when seats free up
- Periodic closing of expired sessions
- Notification events on the configured queue`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVarP(&port, "port", "p", "", "Port for the server to listen on (overrides server.port)")
	serverCmd.Flags().BoolVar(&runMigrations, "migrate", false, "Apply pending migrations before serving")
}

func startServer() {
	cfg := config.Get()
	if port != "" {
		cfg.Server.Port = port
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("auth.jwt_secret must be set")
	}

	app, err := buildApplication(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize application: %v", err)
	}
	defer app.Close()

	if runMigrations && app.db != nil {
		if err := database.RunMigrations(app.db, cfg.Database.MigrationsPath); err != nil {
			logger.Fatal("Failed to run database migrations: %v", err)
		}
	}

	// a redis queue is drained by the notifier command instead
	if cfg.Queue.Type != "redis" {
		app.queue.SetHandler(app.notifier().Handle)
		app.queue.StartWorkers()
		defer app.queue.StopWorkers()
	}

	var sweeper *service.SessionSweeper
	if cfg.Registration.SweepEnabled {
		sweeper = service.NewSessionSweeper(app.sessions, cfg.Registration.SweepInterval)
		sweeper.Start()
		defer sweeper.Stop()
	}

	if cfg.App.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.NewRouter(router.Dependencies{
		Sessions:      app.sessions,
		Registrations: app.registrations,
		Attendance:    app.attendance,
		Idempotency:   app.idempotency,
		Identity:      token.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Version:       cfg.App.Version,
		HealthChecks:  app.healthChecks,
	})

	srv := &http.Server{
		Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:        r,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}
