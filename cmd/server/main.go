package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/fraud-detector/internal/api"
	"github.com/akylbek/payment-system/fraud-detector/internal/cache"
	"github.com/akylbek/payment-system/fraud-detector/internal/classifier"
	"github.com/akylbek/payment-system/fraud-detector/internal/config"
	"github.com/akylbek/payment-system/fraud-detector/internal/features"
	"github.com/akylbek/payment-system/fraud-detector/internal/handlers"
	"github.com/akylbek/payment-system/fraud-detector/internal/interfaces"
	"github.com/akylbek/payment-system/fraud-detector/internal/metrics"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
	"github.com/akylbek/payment-system/fraud-detector/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry(api.ServiceName, telemetry.Options{
		Endpoint: cfg.JaegerEndpoint,
		Enabled:  cfg.OtelEnabled,
		LogLevel: cfg.LogLevel,
	}); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Fraud Detector")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load the feature tables and the model artifact
	tables, err := features.LoadTables(cfg.TablesPath)
	if err != nil {
		telemetry.Logger.Fatal("Failed to load feature tables", zap.String("path", cfg.TablesPath), zap.Error(err))
	}
	preprocessor := features.NewPreprocessor(tables, features.WithNightHours(cfg.NightStartHour, cfg.NightEndHour))

	tree, err := classifier.LoadTree(cfg.ModelPath)
	if err != nil {
		// Statistics stay available; predictions answer 503.
		telemetry.Logger.Error("Failed to load model, predictions disabled", zap.String("path", cfg.ModelPath), zap.Error(err))
	} else if err := tree.CheckFeatures(features.Count); err != nil {
		telemetry.Logger.Error("Model does not match the feature tables, predictions disabled", zap.String("path", cfg.ModelPath), zap.Error(err))
		tree = nil
	}

	// Connect to the store
	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// Connect to Redis
	var statsCache cache.Cache
	var locker cache.Locker
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			telemetry.Logger.Warn("Redis unreachable, statistics cache disabled", zap.Error(err))
		} else {
			statsCache = cache.NewRedisCache(redisClient, "fraud:stats:")
			locker = cache.NewRedisLocker(redisClient)
		}
	}

	// Connect to NATS and pick the scorer
	var scorer classifier.Scorer
	var modelInfo *classifier.Info
	if tree != nil {
		scorer = tree
		info := tree.Info()
		modelInfo = &info
	}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()

		switch {
		case cfg.Scorer == "nats":
			scorer = classifier.NewNATSScorer(nc, cfg.ScoreSubject, cfg.ScorerTimeout)
			modelInfo = &classifier.Info{Model: "remote", Features: features.Count, Source: cfg.ScoreSubject}
			telemetry.Logger.Info("Scoring remotely", zap.String("subject", cfg.ScoreSubject))
		case tree != nil:
			sub, err := classifier.Serve(nc, cfg.ScoreSubject, tree)
			if err != nil {
				telemetry.Logger.Fatal("Failed to serve score requests", zap.Error(err))
			}
			defer sub.Unsubscribe()
			telemetry.Logger.Info("Serving score requests", zap.String("subject", cfg.ScoreSubject))
		}
	}

	evalOpts := []service.EvaluatorOption{service.WithStorageTimeout(cfg.StorageTimeout)}

	// Connect to Kafka
	var consumers sync.WaitGroup
	var consumer *service.TransactionConsumer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaWriter := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.AlertsTopic,
			Balancer: &kafka.LeastBytes{},
		}
		defer kafkaWriter.Close()
		evalOpts = append(evalOpts, service.WithAlertPublisher(service.NewKafkaAlertPublisher(kafkaWriter)))
	}

	evaluator := service.NewEvaluator(preprocessor, classifier.New(scorer), store, store, evalOpts...)
	reviews := service.NewReviewService(store, store, service.WithReviewStorageTimeout(cfg.StorageTimeout))
	engine := service.NewStatisticsEngine(store,
		service.WithLocation(cfg.StatsLocation),
		service.WithStatsStorageTimeout(cfg.StorageTimeout),
	)

	// Start consuming raw transactions
	if len(cfg.KafkaBrokers) > 0 {
		reader := service.NewKafkaReader(cfg.KafkaBrokers, cfg.TransactionsTopic, cfg.ConsumerGroup)
		consumer = service.NewTransactionConsumer(reader, evaluator, locker)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Run(ctx); err != nil {
				telemetry.Logger.Error("Transaction consumer failed", zap.Error(err))
			}
		}()
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.Handlers{
		Health:       handlers.NewHealthHandler(api.ServiceName, store),
		Prediction:   handlers.NewPredictionHandler(evaluator),
		Model:        handlers.NewModelInfoHandler(modelInfo, tables.CategoricalFields()),
		Transactions: handlers.NewTransactionHandler(reviews),
		Alerts:       handlers.NewAlertHandler(reviews),
		Stats:        handlers.NewStatsHandler(engine, statsCache, cfg.StatsCacheTTL),
	})

	// Setup HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Fraud Detector starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()
	consumers.Wait()

	telemetry.Logger.Info("Server exited")
}

// openStore connects to PostgreSQL when DATABASE_URL is set and falls back
// to the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (interfaces.Store, func()) {
	if cfg.DatabaseURL == "" {
		telemetry.Logger.Warn("DATABASE_URL not set, using in-memory store")
		return repository.NewMemoryStore(), func() {}
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	store := repository.NewPostgresStore(db)
	if err := store.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	go metrics.StartDBStatsCollector(ctx, db.DB, 15*time.Second)

	return store, func() { db.Close() }
}
