// Package main is the entry point for the docflow controller: the HTTP
// API plus the dispatch side of workflow executions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docflow/internal/cache"
	"docflow/internal/config"
	"docflow/internal/controller"
	"docflow/internal/logger"
	"docflow/internal/notification"
	"docflow/internal/observability"
	"docflow/internal/orchestrator"
	"docflow/internal/source"
	"docflow/internal/store/postgres"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New(cfg.LogLevel)

	// Setup Database
	ctx := context.Background()
	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer store.Close()

	// Run migrations if requested
	if *migrateFlag {
		log.Println("Running database migrations...")
		if err := postgres.Migrate(store.DB()); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")
	}

	// Redis counter projection
	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	execCache := cache.NewExecutionCache(redisClient, "docflow")

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "docflow-controller", cfg.OTELEndpoint)
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

	notifier := notification.NewNotifier(cfg.NotificationTimeout, slogger)
	discovery := source.NewDiscovery(store)
	orch := orchestrator.New(store, store, store, store, store, discovery, execCache, notifier, metrics, slogger)

	// Start Server
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := controller.New(addr, store, orch, metricsHandler, slogger)

	go func() {
		log.Printf("docflow controller starting on %s", addr)
		if err := srv.Run(ctx); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down controller...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited properly")
}
