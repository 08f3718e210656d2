package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	// Server
	Env  string
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Identity provider tokens
	JWTSecret string
	JWTIssuer string

	// Pipeline endpoints (external job dispatcher)
	PipelineAPIKey string

	// Mail
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPSender   string

	// Insights
	GeminiAPIKey string
	GeminiModel  string

	// Recurring fan-out
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Jobs
	RecurringCron        string
	BudgetAlertCron      string
	MonthlyReportCron    string
	BudgetAlertThreshold decimal.Decimal
	JobConcurrency       int
	JobTimeout           time.Duration

	// Rate limiting
	RateLimitPerHour int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "flow"),
		DBPassword: getEnv("DB_PASSWORD", "flow"),
		DBName:     getEnv("DB_NAME", "flow"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPSender:   getEnv("SMTP_SENDER", "Flow <onboarding@flow.local>"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "flow"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "recurring-transactions"),

		RecurringCron:     getEnv("RECURRING_CRON", "0 0 * * *"),
		BudgetAlertCron:   getEnv("BUDGET_ALERT_CRON", "0 */6 * * *"),
		MonthlyReportCron: getEnv("MONTHLY_REPORT_CRON", "0 0 1 * *"),
	}

	threshold, err := decimal.NewFromString(getEnv("BUDGET_ALERT_THRESHOLD", "80"))
	if err != nil {
		return nil, fmt.Errorf("invalid BUDGET_ALERT_THRESHOLD: %w", err)
	}
	config.BudgetAlertThreshold = threshold

	if config.JobConcurrency, err = getEnvInt("JOB_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if config.RateLimitPerHour, err = getEnvInt("RATE_LIMIT_PER_HOUR", 10); err != nil {
		return nil, err
	}

	timeoutStr := getEnv("JOB_TIMEOUT", "10m")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		log.Printf("Warning: invalid JOB_TIMEOUT value '%s', falling back to 10m\n", timeoutStr)
		timeout = 10 * time.Minute
	}
	config.JobTimeout = timeout

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	if c.Env == "production" && c.JWTSecret == "fallback-secret-key-for-dev-only" {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.JobConcurrency < 1 {
		return fmt.Errorf("JOB_CONCURRENCY must be at least 1, got %d", c.JobConcurrency)
	}
	if c.RateLimitPerHour < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_HOUR must be at least 1, got %d", c.RateLimitPerHour)
	}
	if !c.BudgetAlertThreshold.IsPositive() {
		return fmt.Errorf("BUDGET_ALERT_THRESHOLD must be positive, got %s", c.BudgetAlertThreshold)
	}
	return nil
}

// SMTPEnabled reports whether outbound mail is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
