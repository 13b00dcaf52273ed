// Package main is the entry point for the docflow worker. The worker
// claims dispatched files, runs their tool chains, delivers results, and
// aggregates completion events into execution finalization.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"docflow/internal/cache"
	"docflow/internal/config"
	"docflow/internal/destination"
	"docflow/internal/logger"
	"docflow/internal/notification"
	"docflow/internal/observability"
	"docflow/internal/store/postgres"
	"docflow/internal/worker"
	"docflow/internal/worker/toolrunner"

	"github.com/google/uuid"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	execCache := cache.NewExecutionCache(redisClient, "docflow")

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "docflow-worker", cfg.OTELEndpoint)
	if err != nil {
		log.Fatalf("Failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Printf("Failed to shutdown metrics: %v", err)
		}
	}()

	metrics, err := observability.NewMetrics(store)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// Select tool runners based on configuration. HTTP tools are always
	// available; the Docker backend needs a reachable daemon.
	runners := []toolrunner.Runner{toolrunner.NewHTTPRunner()}
	if cfg.Runtime == config.RuntimeDocker {
		dockerRunner, err := toolrunner.NewDockerRunner()
		if err != nil {
			log.Fatalf("Failed to create Docker runner: %v", err)
		}
		runners = append(runners, dockerRunner)
		log.Println("Docker tool runner enabled")
	}
	registry := toolrunner.NewRegistry(runners...)

	processor := worker.NewProcessor(
		store.DB(), store, store, store, store,
		registry,
		destination.Deps{DB: store.DB(), Redis: redisClient},
		worker.ProcessorConfig{
			WorkRoot:    cfg.RuntimeWorkDir,
			FileTimeout: cfg.FileTimeout,
		},
		metrics, slogger,
	)

	agent := worker.NewAgent(store, processor, worker.AgentConfig{
		ID:           uuid.NewString(),
		Concurrency:  cfg.WorkerConcurrency,
		PollInterval: cfg.WorkerPollInterval,
		MaxBackoff:   cfg.WorkerMaxBackoff,

		HeartbeatInterval: cfg.WorkerHeartbeatInterval,
		// Visibility extension stays at its default, one full timeout.
	}, slogger)

	notifier := notification.NewNotifier(cfg.NotificationTimeout, slogger)
	consumer := worker.NewCallbackConsumer(
		store, store, store, store,
		execCache, notifier,
		worker.CallbackConsumerConfig{},
		metrics, slogger,
	)

	log.Printf("Worker started with concurrency %d", cfg.WorkerConcurrency)
	go agent.Run(ctx)
	go consumer.Run(ctx)

	// Start a dedicated metrics server on port 6162
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		log.Println("Worker metrics listening on :6162")
		if err := http.ListenAndServe(":6162", mux); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	<-agent.Done()
}
