package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasklife/internal/cache"
	"tasklife/internal/config"
	"tasklife/internal/database"
	"tasklife/internal/handlers"
	"tasklife/internal/monitoring"
	"tasklife/internal/repositories"
	"tasklife/internal/services"
	"tasklife/internal/worker"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	store := repositories.NewGormTaskStore(db)
	memberships := repositories.NewGormMembershipStore(db)
	recurrence := services.NewRecurrenceEngine(store)
	events := worker.NewEventQueue(redisClient)
	lifecycle := services.NewLifecycleService(store, memberships, recurrence, events)

	taskCache := cache.NewTaskCache(&cache.Config{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	cached := services.NewCachedLifecycleService(lifecycle, taskCache)

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		RedisClient: redisClient,
		Queues:      cfg.Worker.Queues,
		PollTimeout: cfg.Worker.PollTimeout,
	})
	registerEventLogging(dispatcher)
	dispatcher.Start(cfg.Worker.Concurrency)

	health := monitoring.NewHealthChecker()
	health.Register("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	health.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	router := handlers.NewRouter(cfg, handlers.NewTaskHandler(cached), health)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Server listening on %s", cfg.GetServerAddr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	_ = taskCache.Close()
	_ = redisClient.Close()
}

// registerEventLogging wires a default consumer for every emitted event
// kind. Real delivery systems replace these handlers; the core only emits.
func registerEventLogging(dispatcher *worker.Dispatcher) {
	kinds := []string{
		services.EventTaskCreated,
		services.EventStatusChanged,
		services.EventReviewRequested,
		services.EventTaskRejected,
		services.EventOccurrenceCreated,
		services.EventTaskArchived,
	}
	for _, kind := range kinds {
		dispatcher.RegisterHandler(kind, func(ctx context.Context, event *worker.Event) error {
			log.Printf("event %s: %v", event.Kind, event.Payload)
			return nil
		})
	}
}
