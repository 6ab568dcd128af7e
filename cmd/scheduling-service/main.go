package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/medrex/hms-scheduling/internal/directory"
	"github.com/medrex/hms-scheduling/internal/httpapi"
	"github.com/medrex/hms-scheduling/internal/identifier"
	"github.com/medrex/hms-scheduling/internal/scheduling"
	"github.com/medrex/hms-scheduling/pkg/config"
	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/interfaces"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/monitoring"
)

const (
	serviceName    = "scheduling-service"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB, "hms"),
	)
	metrics := monitoring.NewMetricsCollector(serviceName, registry)
	tracing := monitoring.NewTracingManager(serviceName)

	health := monitoring.NewHealthManager(serviceName, serviceVersion)
	health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))

	// Slot cache is optional
	var cache interfaces.SlotCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer client.Close()

		cache = scheduling.NewRedisSlotCache(client, time.Duration(cfg.Redis.SlotTTL)*time.Second)
		health.RegisterChecker("redis", monitoring.NewRedisHealthChecker(client))
		logger.WithField("addr", cfg.Redis.Addr()).Info("Slot cache enabled")
	}

	// Initialize services
	ids := identifier.New(db, cfg.Scheduling.PatientIDAttempts, logger)
	directoryService := directory.NewService(directory.NewRepository(db, logger), ids, logger)

	schedulingService, err := scheduling.NewService(
		scheduling.NewRepository(db, ids, logger),
		directoryService,
		cache,
		cfg.Scheduling,
		metrics,
		tracing,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to initialize scheduling service: %v", err)
	}

	// Routes
	router := mux.NewRouter()
	router.Handle(cfg.Monitoring.HealthPath, health.HTTPHandler()).Methods(http.MethodGet)
	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(
		monitoring.NewMonitoringMiddleware(metrics, tracing, logger).HTTPMiddleware,
		httpapi.SecurityHeaders,
		httpapi.Recover(logger),
	)
	schedulingService.RegisterRoutes(api)
	directoryService.RegisterRoutes(api)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Starting Scheduling Service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start Scheduling Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Scheduling Service...")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	logger.Info("Scheduling Service stopped")
}
