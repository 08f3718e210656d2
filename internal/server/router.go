// Package server assembles the HTTP router.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"flow/internal/app"
	"flow/internal/handlers"
	"flow/internal/middleware"
	"flow/internal/queue"
	"flow/internal/ratelimit"
)

// Options configures the router.
type Options struct {
	JWTSecret      string
	JWTIssuer      string
	PipelineAPIKey string
	// CreateLimit caps transaction creations per user per hour.
	CreateLimit int
	JobTimeout  time.Duration
	// Publisher, when set, makes the recurring pipeline job fan out.
	Publisher queue.Publisher
	// Ping reports storage health for /api/health.
	Ping func(ctx context.Context) error
}

// NewRouter wires handlers and middleware onto a new Gin engine.
func NewRouter(svc *app.Services, opts Options) *gin.Engine {
	// Initialize handlers
	accountHandler := handlers.NewAccountHandler(svc.Accounts, svc.Audit)
	transactionHandler := handlers.NewTransactionHandler(svc.Transactions, svc.Audit)
	budgetHandler := handlers.NewBudgetHandler(svc.Budgets, svc.Audit)
	statsHandler := handlers.NewStatsHandler(svc.Stats)
	profileHandler := handlers.NewProfileHandler(svc.Users)
	pipelineHandler := handlers.NewPipelineHandler(svc.Recurring, svc.Budgets, svc.Reports, opts.Publisher, opts.JobTimeout)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		if opts.Ping != nil {
			if err := opts.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Pipeline routes (external job dispatchers)
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(opts.PipelineAPIKey))
	pipeline.POST("/jobs/recurring", pipelineHandler.RunRecurring)
	pipeline.POST("/jobs/budget-alerts", pipelineHandler.RunBudgetAlerts)
	pipeline.POST("/jobs/monthly-reports", pipelineHandler.RunMonthlyReports)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(middleware.AuthConfig{
		Secret: opts.JWTSecret,
		Issuer: opts.JWTIssuer,
		Leeway: 30 * time.Second,
	}, svc.Users))

	// User profile
	protected.GET("/profile", profileHandler.GetProfile)

	// Account routes
	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.GetUserAccounts)
	accounts.GET("/:id", accountHandler.GetAccountByID)
	accounts.PUT("/:id/default", accountHandler.SetDefaultAccount)
	accounts.GET("/:id/transactions", transactionHandler.GetAccountTransactions)
	accounts.GET("/:id/budget", budgetHandler.GetCurrentBudget)

	// Transaction routes
	createLimit := opts.CreateLimit
	if createLimit < 1 {
		createLimit = 10
	}
	transactions := protected.Group("/transactions")
	transactions.POST("", middleware.RateLimit(ratelimit.NewKeyed(createLimit, time.Hour)), transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.GetUserTransactions)
	transactions.POST("/bulk-delete", transactionHandler.BulkDeleteTransactions)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.PUT("/:id", transactionHandler.UpdateTransaction)
	transactions.DELETE("/:id", transactionHandler.DeleteTransaction)

	// Budget and stats routes
	protected.PUT("/budget", budgetHandler.UpsertBudget)
	protected.GET("/budget", budgetHandler.GetBudgetProgress)
	protected.GET("/stats/monthly", statsHandler.GetMonthlyStats)

	return router
}
