package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flow/internal/app"
	"flow/internal/config"
	"flow/internal/database"
	apperrors "flow/internal/errors"
	"flow/internal/jobs"
	"flow/internal/logger"
	"flow/internal/queue"
	"flow/internal/services"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Worker error: %v", err)
	}
}

func run() error {
	log := logger.Get()
	log.Info("Starting flow worker")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer dbManager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := app.NewServices(ctx, cfg, dbManager.DB())
	if err != nil {
		return err
	}

	// With a broker, the cron step only publishes and this process also
	// consumes, so several workers can share the materialization load.
	recurringStep := jobs.Step(svc.Recurring.ProcessDue)
	if cfg.AMQPURL != "" {
		amqpClient, err := queue.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			log.Warnw("Failed to initialize AMQP client, processing recurring transactions in-process", "error", err)
		} else {
			defer amqpClient.Close()
			recurringStep = func(ctx context.Context, now time.Time) (*services.RunResult, error) {
				return svc.Recurring.PublishDue(ctx, now, amqpClient)
			}

			go func() {
				err := amqpClient.ConsumeRecurringDue(ctx, materializeHandler(svc.Recurring))
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Errorw("Message consumption failed", "error", err)
				}
				cancel()
			}()
			log.Infow("AMQP fan-out enabled", "queue", cfg.AMQPQueue)
		}
	} else {
		log.Info("AMQP disabled - recurring transactions are processed in-process")
	}

	scheduler := jobs.NewScheduler(cfg.JobTimeout)
	for _, job := range []jobs.Job{
		{Name: services.JobRecurring, Spec: cfg.RecurringCron, Step: recurringStep},
		{Name: services.JobBudgetAlerts, Spec: cfg.BudgetAlertCron, Step: svc.Budgets.CheckBudgetAlerts},
		{Name: services.JobMonthlyReports, Spec: cfg.MonthlyReportCron, Step: svc.Reports.SendMonthlyReports},
	} {
		if err := scheduler.Register(job); err != nil {
			return err
		}
	}
	scheduler.Start()

	// Catch up on anything that fell due while the worker was down. RunNow
	// bypasses SkipIfStillRunning and may overlap the first tick; that is only
	// safe because materialization is a compare-and-swap per template.
	if cfg.RecurringCron != "" {
		if _, err := scheduler.RunNow(ctx, services.JobRecurring); err != nil {
			log.Errorw("Initial recurring run failed", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infow("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down worker...")
	cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Warnw("Shutdown timeout reached", "error", err)
		return nil
	}
	log.Info("Worker shutdown complete")
	return nil
}

// materializeHandler turns a due message into one materialization. Templates
// that are no longer due or no longer exist are acknowledged; missing
// accounts will not heal on redelivery.
func materializeHandler(recurring services.RecurringServicer) queue.Handler {
	return func(_ context.Context, msg *queue.RecurringDueMessage) error {
		log := logger.Job(services.JobRecurring)
		tx, err := recurring.MaterializeTemplate(msg.UserID, msg.TemplateID, time.Now().UTC())
		switch {
		case err == nil:
			log.Infow("Materialized recurring transaction", "template_id", msg.TemplateID, "transaction_id", tx.ID)
			return nil
		case errors.Is(err, apperrors.ErrTransactionNotDue), errors.Is(err, apperrors.ErrTransactionNotFound):
			log.Debugw("Skipped recurring template", "template_id", msg.TemplateID, "reason", err.Error())
			return nil
		case errors.Is(err, apperrors.ErrAccountNotFound):
			return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
		default:
			return err
		}
	}
}
