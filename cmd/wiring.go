package cmd

import (
	"context"
	"fmt"
	"time"

	"lab-registration/internal/api/handlers"
	"lab-registration/internal/config"
	"lab-registration/internal/infrastructure/cache"
	"lab-registration/internal/infrastructure/database"
	"lab-registration/internal/infrastructure/notification"
	"lab-registration/internal/infrastructure/queue"
	"lab-registration/internal/infrastructure/repository"
	interfaces "lab-registration/internal/interfaces/infrastructure"
	"lab-registration/internal/service"
	"lab-registration/pkg/logger"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// application holds every long lived component a command may need
type application struct {
	cfg *config.Config

	db          *gorm.DB
	redisClient *redis.Client

	store       interfaces.Store
	occupancy   interfaces.OccupancyReader
	cache       interfaces.CacheService
	queue       interfaces.QueueService
	idempotency *service.IdempotencyService

	sessions      *service.LabSessionService
	registrations *service.RegistrationService
	attendance    *service.AttendanceService

	healthChecks map[string]handlers.HealthCheckFunc
}

func buildApplication(cfg *config.Config) (*application, error) {
	app := &application{
		cfg:          cfg,
		healthChecks: map[string]handlers.HealthCheckFunc{},
	}

	if err := app.buildStorage(); err != nil {
		return nil, err
	}
	if err := app.buildRedis(); err != nil {
		app.Close()
		return nil, err
	}
	app.buildQueue()

	allocator := service.NewSlotAllocator(time.Now)
	waitlist := service.NewWaitlistManager(allocator)
	publisher := service.NewQueuePublisher(app.queue)

	app.sessions = service.NewLabSessionService(
		app.store,
		service.NewRoomConflictChecker(),
		waitlist,
		app.occupancy,
		app.cache,
		publisher,
		time.Now,
	)
	app.registrations = service.NewRegistrationService(
		app.store,
		allocator,
		waitlist,
		publisher,
		app.cache,
		time.Now,
	)
	app.attendance = service.NewAttendanceService(app.store, time.Now)

	return app, nil
}

func (app *application) buildStorage() error {
	switch app.cfg.Storage.Driver {
	case "memory":
		store := repository.NewMemoryStore()
		app.store = store
		app.occupancy = store
		logger.Warn("Using in-memory storage; data is lost on exit")
		return nil
	case "postgres", "":
	default:
		return fmt.Errorf("unknown storage driver %q", app.cfg.Storage.Driver)
	}

	db, err := database.NewConnection(&app.cfg.Database, app.cfg.App.Environment == "development")
	if err != nil {
		return err
	}
	if err := database.HealthCheck(db); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	app.db = db
	app.store = repository.NewGormStore(db)
	app.occupancy = repository.NewOccupancyReader(sqlDB)
	app.healthChecks["database"] = func(ctx context.Context) error {
		return sqlDB.PingContext(ctx)
	}
	return nil
}

// buildRedis connects when the cache is enabled or the queue lives in redis.
// Without redis the idempotency store falls back to process memory.
func (app *application) buildRedis() error {
	if !app.cfg.Cache.Enabled && app.cfg.Queue.Type != "redis" {
		app.idempotency = service.NewIdempotencyService(repository.NewMemoryIdempotencyRepository())
		return nil
	}

	client := cache.NewRedisClient(&app.cfg.Cache)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	app.redisClient = client
	app.idempotency = service.NewIdempotencyService(repository.NewRedisIdempotencyRepository(client))
	app.healthChecks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}

	if app.cfg.Cache.Enabled {
		app.cache = cache.NewRedisCache(client)
	}
	return nil
}

func (app *application) buildQueue() {
	if app.cfg.Queue.Type == "redis" && app.redisClient != nil {
		app.queue = queue.NewRedisQueue(app.redisClient, app.cfg.Queue.Workers)
		logger.Info("Using Redis notification queue")
		return
	}
	app.queue = queue.NewInMemoryQueue(app.cfg.Queue.BufferSize, app.cfg.Queue.Workers)
	logger.Info("Using in-memory notification queue")
}

// notifier builds the event handler that delivers notifications
func (app *application) notifier() *notification.Notifier {
	var sender notification.Sender = notification.LogSender{}
	if app.cfg.Notification.Enabled {
		sender = notification.NewEmailSender(&app.cfg.Notification)
	}
	return notification.NewNotifier(app.store.Repos(), sender)
}

func (app *application) Close() {
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client: %v", err)
		}
	}
	if app.db != nil {
		if sqlDB, err := app.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
