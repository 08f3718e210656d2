package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "flow/internal/errors"
	"flow/internal/logger"
	"flow/internal/models"
	"flow/internal/notify"
	"flow/internal/schedule"
)

// DefaultAlertThreshold is the percentage of the budget that triggers an alert.
var DefaultAlertThreshold = decimal.NewFromInt(80)

var hundred = decimal.NewFromInt(100)

// budgetService handles budget-related business logic.
type budgetService struct {
	db          *gorm.DB
	dispatcher  notify.Dispatcher
	threshold   decimal.Decimal
	concurrency int
}

// NewBudgetService creates a new BudgetServicer. A non-positive threshold
// falls back to DefaultAlertThreshold.
func NewBudgetService(db *gorm.DB, dispatcher notify.Dispatcher, threshold decimal.Decimal, concurrency int) BudgetServicer {
	if !threshold.IsPositive() {
		threshold = DefaultAlertThreshold
	}
	if dispatcher == nil {
		dispatcher = notify.LogDispatcher{}
	}
	return &budgetService{
		db:          db,
		dispatcher:  dispatcher,
		threshold:   threshold,
		concurrency: concurrency,
	}
}

// UpsertBudget creates or replaces the user's single monthly budget.
func (s *budgetService) UpsertBudget(userID string, amount decimal.Decimal) (*models.Budget, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}

	budget := &models.Budget{UserID: userID, Amount: amount.Round(2)}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(budget).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return s.GetBudget(userID)
}

// GetBudget returns the user's budget.
func (s *budgetService) GetBudget(userID string) (*models.Budget, error) {
	var budget models.Budget
	if err := s.db.Where("user_id = ?", userID).First(&budget).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBudgetNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &budget, nil
}

// GetCurrentBudget returns the user's budget (nil when unset) together with
// this month's expenses on accountID.
func (s *budgetService) GetCurrentBudget(userID, accountID string, now time.Time) (*CurrentBudget, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	budget, err := s.GetBudget(userID)
	if err != nil && !errors.Is(err, apperrors.ErrBudgetNotFound) {
		return nil, err
	}

	spent, err := monthExpenses(s.db, userID, account.ID, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &CurrentBudget{Budget: budget, CurrentExpenses: spent}, nil
}

// GetBudgetProgress reports this month's spend on the default account
// against the user's budget.
func (s *budgetService) GetBudgetProgress(userID string, now time.Time) (*BudgetProgress, error) {
	budget, err := s.GetBudget(userID)
	if err != nil {
		return nil, err
	}
	account, err := findDefaultAccount(s.db, userID)
	if err != nil {
		return nil, err
	}

	spent, err := monthExpenses(s.db, userID, account.ID, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &BudgetProgress{
		BudgetID:   budget.ID,
		AccountID:  account.ID,
		Budgeted:   budget.Amount,
		Spent:      spent,
		Remaining:  budget.Amount.Sub(spent),
		Percentage: percentageOf(spent, budget.Amount),
	}, nil
}

// monthExpenses sums EXPENSE amounts on one account within now's calendar month.
func monthExpenses(db *gorm.DB, userID, accountID string, now time.Time) (decimal.Decimal, error) {
	start, end := schedule.MonthBounds(now)

	var sum decimal.NullDecimal
	err := db.Model(&models.Transaction{}).
		Select("SUM(amount)").
		Where("user_id = ? AND account_id = ? AND type = ?", userID, accountID, models.TransactionTypeExpense).
		Where("date BETWEEN ? AND ?", start, end).
		Row().Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// percentageOf returns part/whole*100 rounded to two places, or zero for a
// non-positive whole.
func percentageOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

// EvaluateBudget checks one budget against this month's expenses on the
// owner's default account and sends at most one alert per calendar month.
// The month is claimed by a conditional update of LastAlertSent before the
// dispatch, so overlapping runs cannot both send. A failed send releases the
// claim and the next run retries.
func (s *budgetService) EvaluateBudget(ctx context.Context, budget *models.Budget, now time.Time) (*BudgetEvaluation, error) {
	eval := &BudgetEvaluation{
		BudgetID:     budget.ID,
		UserID:       budget.UserID,
		BudgetAmount: budget.Amount,
	}

	account, err := findDefaultAccount(s.db, budget.UserID)
	if errors.Is(err, apperrors.ErrAccountNotFound) {
		eval.Skipped = true
		return eval, nil
	}
	if err != nil {
		return nil, err
	}
	eval.AccountID = account.ID

	spent, err := monthExpenses(s.db, budget.UserID, account.ID, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	eval.TotalExpenses = spent
	eval.PercentageUsed = percentageOf(spent, budget.Amount)

	if !budget.Amount.IsPositive() || spent.Mul(hundred).LessThan(s.threshold.Mul(budget.Amount)) {
		return eval, nil
	}
	if budget.LastAlertSent != nil && schedule.SameMonth(budget.LastAlertSent.In(now.Location()), now) {
		return eval, nil
	}

	user := budget.User
	if user.ID == "" {
		if err := s.db.First(&user, "id = ?", budget.UserID).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	alert := notify.BudgetAlert{
		To:             user.Email,
		UserName:       user.Name,
		AccountName:    account.Name,
		BudgetAmount:   budget.Amount,
		TotalExpenses:  spent,
		PercentageUsed: eval.PercentageUsed,
	}

	claimed, err := s.claimAlertMonth(budget.ID, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !claimed {
		eval.Skipped = true
		return eval, nil
	}

	if err := s.dispatcher.SendBudgetAlert(ctx, alert); err != nil {
		if rerr := s.releaseAlertMonth(budget.ID, now, budget.LastAlertSent); rerr != nil {
			logger.Get().Errorw("Failed to release budget alert claim", "budget_id", budget.ID, "error", rerr)
		}
		return nil, err
	}
	budget.LastAlertSent = &now
	eval.AlertSent = true
	return eval, nil
}

// claimAlertMonth sets last_alert_sent to now unless an alert was already
// recorded in now's month. It reports whether this caller won the month.
func (s *budgetService) claimAlertMonth(budgetID string, now time.Time) (bool, error) {
	monthStart, _ := schedule.MonthBounds(now)
	res := s.db.Model(&models.Budget{}).
		Where("id = ? AND (last_alert_sent IS NULL OR last_alert_sent < ?)", budgetID, monthStart).
		Update("last_alert_sent", now)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// releaseAlertMonth undoes a claim made at now, if it is still in place.
func (s *budgetService) releaseAlertMonth(budgetID string, now time.Time, previous *time.Time) error {
	return s.db.Model(&models.Budget{}).
		Where("id = ? AND last_alert_sent = ?", budgetID, now).
		Update("last_alert_sent", previous).Error
}

// CheckBudgetAlerts evaluates every budget independently.
func (s *budgetService) CheckBudgetAlerts(ctx context.Context, now time.Time) (*RunResult, error) {
	log := logger.Job(JobBudgetAlerts)
	result := newRunResult(JobBudgetAlerts, now)

	var budgets []models.Budget
	if err := s.db.Preload("User").Find(&budgets).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	result.Checked = len(budgets)

	err := forEachLimited(ctx, s.concurrency, budgets, func(ctx context.Context, b models.Budget) {
		eval, err := s.EvaluateBudget(ctx, &b, now)
		switch {
		case err != nil:
			result.record(outcomeFailed)
			log.Errorw("Failed to evaluate budget", "budget_id", b.ID, "user_id", b.UserID, "error", err)
		case eval.AlertSent:
			result.record(outcomeProcessed)
			log.Infow("Budget alert sent",
				"budget_id", b.ID,
				"percentage_used", eval.PercentageUsed.String(),
			)
		default:
			result.record(outcomeSkipped)
		}
	})
	result.finish()

	log.Infow("Budget alert check complete",
		"checked", result.Checked,
		"alerts_sent", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, err
}
