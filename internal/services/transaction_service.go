package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "flow/internal/errors"
	"flow/internal/models"
	"flow/internal/pagination"
	"flow/internal/schedule"
)

var transactionSortColumns = map[string]string{
	"date":     "date",
	"amount":   "amount",
	"category": "category",
	"type":     "type",
}

// transactionService handles transaction-related business logic.
type transactionService struct {
	db             *gorm.DB
	accountService AccountServicer
}

// NewTransactionService creates a new TransactionServicer.
func NewTransactionService(db *gorm.DB, accountService AccountServicer) TransactionServicer {
	return &transactionService{
		db:             db,
		accountService: accountService,
	}
}

// ParseAmount parses a user-supplied amount. Anything that is not a strictly
// positive decimal is rejected with ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInvalidAmount, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, apperrors.ErrInvalidAmount
	}
	return d.Round(2), nil
}

func validateTransactionInput(in *TransactionInput) error {
	if !in.Type.Valid() {
		return apperrors.ErrInvalidTransactionType
	}
	if !in.Amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}
	if in.AccountID == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "account ID is required")
	}
	if in.IsRecurring {
		if in.RecurringInterval == nil || !in.RecurringInterval.Valid() {
			return apperrors.ErrInvalidInterval
		}
	} else {
		in.RecurringInterval = nil
	}
	if in.Date.IsZero() {
		in.Date = time.Now()
	}
	in.Amount = in.Amount.Round(2)
	return nil
}

// applyInput copies the editable fields onto t and recomputes its schedule.
// The schedule is anchored on the transaction date: the first occurrence of
// a new template falls one interval after it.
func applyInput(t *models.Transaction, in TransactionInput) {
	t.AccountID = in.AccountID
	t.Type = in.Type
	t.Amount = in.Amount
	t.Description = in.Description
	t.Date = in.Date
	t.Category = in.Category
	t.ReceiptURL = in.ReceiptURL
	t.IsRecurring = in.IsRecurring
	t.RecurringInterval = in.RecurringInterval

	if t.IsTemplate() {
		anchor := in.Date
		if t.LastProcessed != nil {
			anchor = *t.LastProcessed
		}
		next := schedule.NextDate(anchor, *t.RecurringInterval)
		t.NextRecurringDate = &next
	} else {
		t.NextRecurringDate = nil
	}
}

// CreateTransaction records a transaction and applies its signed amount to
// the account in the same database transaction.
func (s *transactionService) CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error) {
	if err := validateTransactionInput(&in); err != nil {
		return nil, err
	}

	// Get the account to ensure it exists and belongs to the user
	if _, err := s.accountService.GetAccountByID(userID, in.AccountID); err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		UserID: userID,
		Status: models.TransactionStatusCompleted,
	}
	applyInput(transaction, in)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(transaction).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return s.applyDelta(tx, transaction.AccountID, transaction.SignedAmount())
	})
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// UpdateTransaction rewrites a transaction and reconciles balances with the
// difference between the new and old signed amounts. Moving a transaction
// to another account reverses it on the old one and applies it on the new.
func (s *transactionService) UpdateTransaction(userID, transactionID string, in TransactionInput) (*models.Transaction, error) {
	if err := validateTransactionInput(&in); err != nil {
		return nil, err
	}

	if _, err := s.accountService.GetAccountByID(userID, in.AccountID); err != nil {
		return nil, err
	}

	var updated models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", transactionID, userID).First(&updated).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrTransactionNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		oldAccount, oldSigned := updated.AccountID, updated.SignedAmount()
		applyInput(&updated, in)
		newSigned := updated.SignedAmount()

		if err := tx.Model(&updated).Updates(map[string]interface{}{
			"account_id":          updated.AccountID,
			"type":                updated.Type,
			"amount":              updated.Amount,
			"description":         updated.Description,
			"date":                updated.Date,
			"category":            updated.Category,
			"receipt_url":         updated.ReceiptURL,
			"is_recurring":        updated.IsRecurring,
			"recurring_interval":  updated.RecurringInterval,
			"next_recurring_date": updated.NextRecurringDate,
		}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if oldAccount == updated.AccountID {
			return s.applyDelta(tx, updated.AccountID, newSigned.Sub(oldSigned))
		}
		if err := s.applyDelta(tx, oldAccount, oldSigned.Neg()); err != nil {
			return err
		}
		return s.applyDelta(tx, updated.AccountID, newSigned)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// applyDelta wraps storage failures from the balance mutator for callers
// that sit on the API boundary.
func (s *transactionService) applyDelta(tx *gorm.DB, accountID string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	if err := s.accountService.ApplyBalanceDelta(tx, accountID, delta); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetAccountTransactions retrieves a paginated, filtered list of transactions for a specific account.
func (s *transactionService) GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	// First verify the account belongs to the user
	if _, err := s.accountService.GetAccountByID(userID, accountID); err != nil {
		return nil, err
	}

	base := s.db.Model(&models.Transaction{}).Where("user_id = ? AND account_id = ?", userID, accountID)
	return s.listTransactions(base, page, filter)
}

// GetUserTransactions retrieves a paginated, filtered list of all of a user's transactions.
func (s *transactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	base := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	return s.listTransactions(base, page, filter)
}

func (s *transactionService) listTransactions(base *gorm.DB, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()
	base = applyTransactionFilters(base, filter)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var transactions []models.Transaction
	if err := base.Scopes(pagination.Paginate(page)).
		Order(page.OrderClause(transactionSortColumns, "date DESC")).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(transactions, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func applyTransactionFilters(q *gorm.DB, f TransactionFilter) *gorm.DB {
	if f.FromDate != nil {
		q = q.Where("date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("date <= ?", *f.ToDate)
	}
	if f.Type != nil {
		q = q.Where("type = ?", *f.Type)
	}
	if f.Category != nil {
		q = q.Where("category = ?", *f.Category)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if f.IsRecurring != nil {
		q = q.Where("is_recurring = ?", *f.IsRecurring)
	}
	return q
}

// GetTransactionByID retrieves a transaction by ID for a specific user
func (s *transactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := s.db.Where("id = ? AND user_id = ?", transactionID, userID).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &transaction, nil
}

// DeleteTransaction deletes one transaction and reverses its balance effect.
func (s *transactionService) DeleteTransaction(userID, transactionID string) error {
	_, err := s.BulkDeleteTransactions(userID, []string{transactionID})
	return err
}

// BulkDeleteTransactions deletes the user's transactions among ids and
// reverses their combined effect with one delta per affected account. IDs
// the user does not own are ignored; ErrTransactionNotFound is returned when
// none matched.
func (s *transactionService) BulkDeleteTransactions(userID string, transactionIDs []string) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one transaction ID is required")
	}

	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var transactions []models.Transaction
		if err := tx.Where("id IN ? AND user_id = ?", transactionIDs, userID).Find(&transactions).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(transactions) == 0 {
			return apperrors.ErrTransactionNotFound
		}

		reversals := make(map[string]decimal.Decimal)
		order := make([]string, 0)
		ids := make([]string, 0, len(transactions))
		for i := range transactions {
			t := &transactions[i]
			if _, seen := reversals[t.AccountID]; !seen {
				order = append(order, t.AccountID)
			}
			reversals[t.AccountID] = reversals[t.AccountID].Sub(t.SignedAmount())
			ids = append(ids, t.ID)
		}

		res := tx.Where("id IN ?", ids).Delete(&models.Transaction{})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		deleted = res.RowsAffected

		for _, accountID := range order {
			if err := s.applyDelta(tx, accountID, reversals[accountID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
