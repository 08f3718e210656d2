package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "flow/internal/errors"
	"flow/internal/logger"
	"flow/internal/models"
	"flow/internal/queue"
	"flow/internal/ratelimit"
	"flow/internal/schedule"
)

// RecurringOptions tunes batch processing of due templates.
type RecurringOptions struct {
	// Concurrency bounds how many templates are materialized at once.
	Concurrency int
	// Throttle limits materializations per user. Nil disables it.
	Throttle *ratelimit.Keyed
}

// DefaultRecurringThrottle allows ten materializations per user per minute.
func DefaultRecurringThrottle() *ratelimit.Keyed {
	return ratelimit.NewKeyed(10, time.Minute)
}

// recurringService materializes recurring templates into one-time transactions.
type recurringService struct {
	db             *gorm.DB
	accountService AccountServicer
	opts           RecurringOptions
}

// NewRecurringService creates a new RecurringServicer.
func NewRecurringService(db *gorm.DB, accountService AccountServicer, opts RecurringOptions) RecurringServicer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &recurringService{
		db:             db,
		accountService: accountService,
		opts:           opts,
	}
}

// GetDueTemplates returns completed templates that never fired or whose next
// date has passed.
func (s *recurringService) GetDueTemplates(now time.Time) ([]models.Transaction, error) {
	var templates []models.Transaction
	err := s.db.
		Where("is_recurring = ? AND status = ?", true, models.TransactionStatusCompleted).
		Where("last_processed IS NULL OR next_recurring_date <= ?", now).
		Order("next_recurring_date ASC").
		Find(&templates).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return templates, nil
}

// MaterializeTemplate turns one due template into a one-time transaction.
// The template is re-read and re-checked inside the database transaction,
// and its schedule advances through a compare-and-swap on
// occurrence_count, so of two racing calls at most one commits. The loser
// gets ErrTransactionNotDue (or ErrTransactionNotFound if the template is
// gone) and nothing is written.
func (s *recurringService) MaterializeTemplate(userID, templateID string, now time.Time) (*models.Transaction, error) {
	var occurrence *models.Transaction

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var tpl models.Transaction
		if err := tx.Where("id = ? AND user_id = ?", templateID, userID).First(&tpl).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if !schedule.IsDue(&tpl, now) {
			return apperrors.ErrTransactionNotDue
		}
		if tpl.RecurringInterval == nil || !tpl.RecurringInterval.Valid() {
			return apperrors.ErrInvalidInterval
		}

		next := schedule.NextDate(now, *tpl.RecurringInterval)
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND occurrence_count = ?", tpl.ID, tpl.OccurrenceCount).
			Updates(map[string]interface{}{
				"last_processed":      now,
				"next_recurring_date": next,
				"occurrence_count":    gorm.Expr("occurrence_count + 1"),
			})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrTransactionNotDue
		}

		occurrence = &models.Transaction{
			UserID:      tpl.UserID,
			AccountID:   tpl.AccountID,
			Type:        tpl.Type,
			Amount:      tpl.Amount,
			Description: tpl.Description + models.RecurringSuffix,
			Date:        now,
			Category:    tpl.Category,
			Status:      models.TransactionStatusCompleted,
			IsRecurring: false,
		}
		if err := tx.Create(occurrence).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if err := s.accountService.ApplyBalanceDelta(tx, tpl.AccountID, occurrence.SignedAmount()); err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) {
				return err
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return occurrence, nil
}

// ProcessDue materializes every due template. Templates are independent:
// one failing never stops the others. Templates that turn out not due (or
// vanished) since the listing count as skipped.
func (s *recurringService) ProcessDue(ctx context.Context, now time.Time) (*RunResult, error) {
	log := logger.Job(JobRecurring)
	result := newRunResult(JobRecurring, now)

	templates, err := s.GetDueTemplates(now)
	if err != nil {
		return nil, err
	}
	result.Checked = len(templates)

	log.Infow("Processing recurring transactions",
		"total_due", len(templates),
		"processing_date", now.Format(time.RFC3339),
	)

	err = forEachLimited(ctx, s.opts.Concurrency, templates, func(ctx context.Context, tpl models.Transaction) {
		if s.opts.Throttle != nil {
			if err := s.opts.Throttle.Wait(ctx, tpl.UserID); err != nil {
				log.Warnw("Throttle wait aborted", "template_id", tpl.ID, "user_id", tpl.UserID, "error", err)
				result.record(outcomeFailed)
				return
			}
		}

		occ, err := s.MaterializeTemplate(tpl.UserID, tpl.ID, now)
		switch {
		case err == nil:
			result.record(outcomeProcessed)
			log.Debugw("Materialized recurring transaction",
				"template_id", tpl.ID,
				"transaction_id", occ.ID,
				"amount", occ.Amount.String(),
				"type", occ.Type,
			)
		case errors.Is(err, apperrors.ErrTransactionNotDue), errors.Is(err, apperrors.ErrTransactionNotFound):
			result.record(outcomeSkipped)
		default:
			result.record(outcomeFailed)
			log.Errorw("Failed to materialize recurring transaction",
				"template_id", tpl.ID,
				"user_id", tpl.UserID,
				"error", err,
			)
		}
	})
	result.finish()

	log.Infow("Recurring processing complete",
		"checked", result.Checked,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration,
	)
	return result, err
}

// PublishDue publishes one message per due template instead of materializing
// in process. Consumers call MaterializeTemplate, which re-checks due-ness,
// so duplicate messages are harmless.
func (s *recurringService) PublishDue(ctx context.Context, now time.Time, publisher queue.Publisher) (*RunResult, error) {
	log := logger.Job(JobRecurring)
	result := newRunResult(JobRecurring, now)

	templates, err := s.GetDueTemplates(now)
	if err != nil {
		return nil, err
	}
	result.Checked = len(templates)

	for i := range templates {
		if err := ctx.Err(); err != nil {
			return result.finish(), err
		}
		tpl := &templates[i]
		if err := publisher.PublishRecurringDue(ctx, queue.NewRecurringDueMessage(tpl.ID, tpl.UserID, now)); err != nil {
			result.record(outcomeFailed)
			log.Errorw("Failed to publish recurring due message", "template_id", tpl.ID, "error", err)
			continue
		}
		result.record(outcomeProcessed)
	}
	result.finish()

	log.Infow("Published due recurring templates",
		"checked", result.Checked,
		"published", result.Processed,
		"failed", result.Failed,
	)
	return result, nil
}
