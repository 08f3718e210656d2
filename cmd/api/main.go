package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flow/internal/app"
	"flow/internal/config"
	"flow/internal/database"
	"flow/internal/logger"
	"flow/internal/queue"
	"flow/internal/server"
	"flow/internal/validator"

	"github.com/gin-gonic/gin"

	_ "flow/internal/docs" // Import swagger docs
)

// @title           Flow API
// @version         1.0
// @description     Flow tracks accounts, transactions, budgets and recurring payments.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the identity token.

// @securityDefinitions.apikey PipelineKey
// @in header
// @name X-API-Key

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	svc, err := app.NewServices(ctx, appConfig, dbManager.DB())
	if err != nil {
		return err
	}

	// Recurring fan-out is optional; without a broker the pipeline
	// endpoint materializes in-process.
	var publisher queue.Publisher
	if appConfig.AMQPURL != "" {
		amqpClient, err := queue.NewClient(appConfig.AMQPURL, appConfig.AMQPExchange, appConfig.AMQPQueue)
		if err != nil {
			log.Warnw("Failed to connect to AMQP, recurring job runs in-process", "error", err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
		}
	}

	validator.Register()
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := server.NewRouter(svc, server.Options{
		JWTSecret:      appConfig.JWTSecret,
		JWTIssuer:      appConfig.JWTIssuer,
		PipelineAPIKey: appConfig.PipelineAPIKey,
		CreateLimit:    appConfig.RateLimitPerHour,
		JobTimeout:     appConfig.JobTimeout,
		Publisher:      publisher,
		Ping:           dbManager.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting Flow backend server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("Server stopped")
	return nil
}
