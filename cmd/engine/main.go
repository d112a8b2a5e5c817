// Command engine runs the placement engine: it consumes purchase events from
// Redis and serves health, readiness, metrics and read-only inspection over HTTP.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"matrix/internal/handler"
	"matrix/internal/intake"
	"matrix/internal/ledger"
	"matrix/internal/matrix"
	"matrix/internal/metrics"
	"matrix/internal/notification"
	"matrix/internal/participant"
	"matrix/internal/purchase"
	"matrix/internal/repository/sqlstore"
	"matrix/pkg/cache"
	"matrix/pkg/config"
	"matrix/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewWithWriter("matrix-engine", logger.ParseLevel(cfg.Log.Level), os.Stdout)

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting matrix engine", map[string]interface{}{
		"port":      cfg.Server.Port,
		"db_driver": cfg.Database.Driver,
		"max_depth": cfg.Engine.MaxDepth,
		"intake":    cfg.Intake.Enabled,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, db, err := sqlstore.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	participants := participant.NewService(store, log)
	if cfg.Engine.SeedRoot {
		if err := participants.SeedRoot(ctx); err != nil {
			log.Fatal("Failed to seed root participant", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := participants.ValidateRoot(ctx); err != nil {
		log.Fatal("Root participant is not fully seeded", map[string]interface{}{"error": err.Error()})
	}

	m := metrics.Engine()
	engine := matrix.NewEngine(ledger.NewService(), m, log.With(map[string]interface{}{"component": "engine"}), matrix.Options{
		MaxDepth:    cfg.Engine.MaxDepth,
		SlotRetries: cfg.Engine.SlotRetries,
	})

	deps := map[string]handler.Pinger{"database": store}

	var redisCache *cache.RedisCache
	if cfg.Intake.Enabled || cfg.Notification.Driver == "redis" {
		redisCache, err = cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		defer redisCache.Close()
		deps["redis"] = redisCache
	}

	var publisher notification.Publisher = notification.NewLogPublisher(log.With(map[string]interface{}{"component": "notification"}))
	if cfg.Notification.Driver == "redis" {
		publisher = notification.NewRedisPublisher(redisCache.Client(), cfg.Notification.Channel)
	}

	purchases := purchase.NewService(store, engine, publisher, log)

	var consumer *intake.Consumer
	intakeDone := make(chan error, 1)
	if cfg.Intake.Enabled {
		consumer = intake.NewConsumer(redisCache.Client(), redisCache, purchases, m, log.With(map[string]interface{}{"component": "intake"}), intake.Options{
			Queue:            cfg.Intake.Queue,
			DeadLetterQueue:  cfg.Intake.DeadLetterQueue,
			PollTimeout:      cfg.Intake.PollTimeout,
			ClaimTTL:         cfg.Intake.ClaimTTL,
			MaxRetryAttempts: cfg.Intake.MaxRetryAttempts,
			RetryDelay:       cfg.Intake.RetryDelay,
		})
		// detached from the signal context so an in-flight event finishes before Stop returns
		runCtx, cancelRun := context.WithCancel(context.Background())
		defer cancelRun()
		go func() { intakeDone <- consumer.Run(runCtx) }()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.New(participants, deps, log).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Ops server started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down matrix engine...", nil)

	if consumer != nil {
		consumer.Stop()
		select {
		case <-intakeDone:
		case <-time.After(cfg.Intake.PollTimeout + 5*time.Second):
			log.Warn("Intake did not stop in time", nil)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Ops server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Matrix engine stopped gracefully", nil)
}
