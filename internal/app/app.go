// Package app builds the service graph shared by the API and the worker.
package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"flow/internal/config"
	"flow/internal/insights"
	"flow/internal/logger"
	"flow/internal/notify"
	"flow/internal/services"
)

// Services is the wired service layer.
type Services struct {
	Users        services.UserServicer
	Accounts     services.AccountServicer
	Transactions services.TransactionServicer
	Recurring    services.RecurringServicer
	Budgets      services.BudgetServicer
	Stats        services.StatsServicer
	Reports      services.ReportServicer
	Audit        services.AuditServicer
}

// NewServices wires every service against db. Mail falls back to the log
// dispatcher and insights to the fixed list when their credentials are unset.
func NewServices(ctx context.Context, cfg *config.Config, db *gorm.DB) (*Services, error) {
	log := logger.Get()

	dispatcher := NewDispatcher(cfg)

	var gen insights.Generator
	if cfg.GeminiAPIKey != "" {
		gemini, err := insights.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create insight generator: %w", err)
		}
		gen = gemini
	} else {
		log.Info("GEMINI_API_KEY not set, monthly reports use generic insights")
	}

	users := services.NewUserService(db)
	accounts := services.NewAccountService(db)
	stats := services.NewStatsService(db)

	return &Services{
		Users:        users,
		Accounts:     accounts,
		Transactions: services.NewTransactionService(db, accounts),
		Recurring: services.NewRecurringService(db, accounts, services.RecurringOptions{
			Concurrency: cfg.JobConcurrency,
			Throttle:    services.DefaultRecurringThrottle(),
		}),
		Budgets: services.NewBudgetService(db, dispatcher, cfg.BudgetAlertThreshold, cfg.JobConcurrency),
		Stats:   stats,
		Reports: services.NewReportService(users, stats, gen, dispatcher, cfg.JobConcurrency),
		Audit:   services.NewAuditService(db),
	}, nil
}

// NewDispatcher returns the SMTP dispatcher when mail is configured.
func NewDispatcher(cfg *config.Config) notify.Dispatcher {
	if !cfg.SMTPEnabled() {
		logger.Get().Info("SMTP_HOST not set, notifications are logged only")
		return notify.LogDispatcher{}
	}
	return notify.NewSMTPDispatcher(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Sender:   cfg.SMTPSender,
	})
}
