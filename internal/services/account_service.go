package services

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "flow/internal/errors"
	"flow/internal/models"
	"flow/internal/pagination"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateAccount creates an account for a user. The user's first account is
// always the default; asking for a default account clears the flag on the
// others in the same transaction.
func (s *accountService) CreateAccount(userID string, in AccountInput) (*models.Account, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if !in.Type.Valid() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account type must be CURRENT or SAVINGS")
	}

	account := &models.Account{
		UserID:    userID,
		Name:      name,
		Type:      in.Type,
		Balance:   in.Balance.Round(2),
		IsDefault: in.IsDefault,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Account{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if existing == 0 {
			account.IsDefault = true
		}

		if account.IsDefault {
			if err := clearDefault(tx, userID); err != nil {
				return err
			}
		}

		if err := tx.Create(account).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

func clearDefault(tx *gorm.DB, userID string) error {
	if err := tx.Model(&models.Account{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user, each
// with its transaction count.
func (s *accountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Account{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var accounts []models.Account
	if err := base.Scopes(pagination.Paginate(page)).Order("created_at ASC").Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.attachTransactionCounts(accounts); err != nil {
		return nil, err
	}

	result := pagination.NewPageResponse(accounts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

func (s *accountService) attachTransactionCounts(accounts []models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	ids := make([]string, len(accounts))
	for i := range accounts {
		ids[i] = accounts[i].ID
	}

	type countRow struct {
		AccountID string
		Count     int64
	}
	var rows []countRow
	if err := s.db.Model(&models.Transaction{}).
		Select("account_id, COUNT(*) AS count").
		Where("account_id IN ?", ids).
		Group("account_id").
		Scan(&rows).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.AccountID] = r.Count
	}
	for i := range accounts {
		accounts[i].TransactionCount = counts[accounts[i].ID]
	}
	return nil
}

// GetAccountByID retrieves an account by ID for a specific user
func (s *accountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// GetDefaultAccount returns the user's default account.
func (s *accountService) GetDefaultAccount(userID string) (*models.Account, error) {
	return findDefaultAccount(s.db, userID)
}

func findDefaultAccount(db *gorm.DB, userID string) (*models.Account, error) {
	var account models.Account
	if err := db.Where("user_id = ? AND is_default = ?", userID, true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// SetDefaultAccount makes accountID the user's only default account.
func (s *accountService) SetDefaultAccount(userID, accountID string) (*models.Account, error) {
	var account models.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if err := clearDefault(tx, userID); err != nil {
			return err
		}
		if err := tx.Model(&account).Update("is_default", true).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	account.IsDefault = true
	return &account, nil
}

// ApplyBalanceDelta implements AccountServicer.
func (s *accountService) ApplyBalanceDelta(tx *gorm.DB, accountID string, delta decimal.Decimal) error {
	return ApplyBalanceDelta(tx, accountID, delta)
}

// ApplyBalanceDelta adds delta to the stored balance of accountID with a
// single increment statement on tx. Callers pass the handle of the database
// transaction that also writes the ledger row behind the change. A missing
// account yields ErrAccountNotFound; storage errors are returned as is.
func ApplyBalanceDelta(tx *gorm.DB, accountID string, delta decimal.Decimal) error {
	res := tx.Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrAccountNotFound
	}
	return nil
}
