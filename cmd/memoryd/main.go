package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mnemo/internal/api"
	"mnemo/internal/config"
	"mnemo/internal/consumer"
	kafkadb "mnemo/internal/database/kafka"
	"mnemo/internal/database/milvus"
	redisdb "mnemo/internal/database/redis"
	"mnemo/internal/embedding"
	"mnemo/internal/ltm"
	"mnemo/internal/ltm/store"
	"mnemo/internal/models"
	"mnemo/internal/shortterm"
	"mnemo/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("memoryd", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The memory core degrades to a no-op when the store or embedder cannot
	// be initialized; the service still serves history and health endpoints.
	vecStore, storeCheck := openStore(ctx, cfg, appLogger)

	embedder, keyManager, err := embedding.New(&cfg.Embedding)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("embedder unavailable, memory core disabled")
		embedder = nil
	}

	memory := ltm.NewManager(vecStore, embedder, appLogger, cfg.Memory)

	var history *shortterm.History
	redisClient, err := redisdb.GetClient(&cfg.Databases.Redis)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("redis unavailable, short-term history disabled")
	} else {
		history = shortterm.NewHistory(redisClient, cfg.Memory.ShortTerm.MaxMessages)
		defer redisdb.Close()
	}

	kafkaClient, err := kafkadb.GetClient(&cfg.Databases.Kafka)
	if err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("kafka unavailable, event ingestion disabled")
	} else {
		kafkaConsumer := consumer.NewKafkaConsumer(kafkaClient, memory, history, appLogger)
		kafkaConsumer.Start(ctx)
		defer kafkaClient.Close()
	}

	scheduler := ltm.NewScheduler(memory, keyManager, appLogger, cfg.Memory.Maintenance)
	scheduler.Start(ctx)

	router := gin.Default()
	handlers := api.NewAPI(memory, history, keyManager, cfg.Memory, appLogger)
	if storeCheck != nil {
		handlers.AddHealthCheck("milvus", storeCheck)
	}
	if redisClient != nil {
		handlers.AddHealthCheck("redis", redisdb.HealthCheck)
	}
	if kafkaClient != nil {
		handlers.AddHealthCheck("kafka", kafkaClient.HealthCheck)
	}
	api.RegisterRoutes(router, handlers)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}
	go func() {
		appLogger.WithPayload(map[string]interface{}{"address": cfg.Server.Address}).Info("memory service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Fatal("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Error("http server shutdown failed")
	}

	appLogger.Info("memory service stopped")
}

// openStore builds the configured vector store backend, or nil when the
// backend cannot be reached. The second return value is a liveness check
// for the backend, nil when the backend has no remote side to ping.
func openStore(ctx context.Context, cfg *config.AppConfig, appLogger *logger.Logger) (store.VectorStore, api.HealthCheckFunc) {
	switch cfg.Memory.Backend {
	case "milvus":
		milvusClient, err := milvus.GetClient(ctx, &cfg.Databases.Milvus)
		if err == nil {
			err = milvusClient.EnsureCollection(ctx)
		}
		if err != nil {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("milvus unavailable, memory core disabled")
			return nil, nil
		}
		return store.NewMilvusStore(milvusClient), milvusClient.HealthCheck
	case "chromem":
		chromem, err := store.NewChromemStore(cfg.Databases.Milvus.CollectionName)
		if err != nil {
			appLogger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("chromem init failed, memory core disabled")
			return nil, nil
		}
		return chromem, nil
	default:
		appLogger.WithError(models.ErrorInfo{Message: fmt.Sprintf("unknown memory backend %q", cfg.Memory.Backend)}).Warn("memory core disabled")
		return nil, nil
	}
}
