package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"flow/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a unique email and external ID.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := &models.User{
		ExternalID: fmt.Sprintf("idp_%d", nextID()),
		Email:      email,
		Name:       "Test User",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates a non-default current account with zero balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID string) *models.Account {
	t.Helper()
	return CreateTestAccountWithBalance(t, db, userID, "0")
}

// CreateTestAccountWithBalance creates a non-default current account with the given balance.
func CreateTestAccountWithBalance(t *testing.T, db *gorm.DB, userID, balance string) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:  userID,
		Name:    fmt.Sprintf("Test Account %d", nextID()),
		Type:    models.AccountTypeCurrent,
		Balance: decimal.RequireFromString(balance),
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestDefaultAccount creates the user's default account with the given balance.
func CreateTestDefaultAccount(t *testing.T, db *gorm.DB, userID, balance string) *models.Account {
	t.Helper()

	account := CreateTestAccountWithBalance(t, db, userID, balance)
	if err := db.Model(account).Update("is_default", true).Error; err != nil {
		t.Fatalf("failed to mark account default: %v", err)
	}
	account.IsDefault = true
	return account
}

// CreateTestTransaction creates a completed one-time transaction dated now.
// It does not touch the account balance.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID, accountID string, txType models.TransactionType, amount string) *models.Transaction {
	t.Helper()
	return CreateTestTransactionAt(t, db, userID, accountID, txType, amount, "", time.Now().UTC())
}

// CreateTestTransactionAt creates a completed one-time transaction with the given category and date.
func CreateTestTransactionAt(t *testing.T, db *gorm.DB, userID, accountID string, txType models.TransactionType, amount, category string, date time.Time) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:    userID,
		AccountID: accountID,
		Type:      txType,
		Amount:    decimal.RequireFromString(amount),
		Category:  category,
		Date:      date,
		Status:    models.TransactionStatusCompleted,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestTemplate creates a recurring template. A nil lastProcessed means
// the template has never fired.
func CreateTestTemplate(t *testing.T, db *gorm.DB, userID, accountID string, txType models.TransactionType, amount string, interval models.RecurringInterval, lastProcessed, next *time.Time) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:            userID,
		AccountID:         accountID,
		Type:              txType,
		Amount:            decimal.RequireFromString(amount),
		Description:       "Rent",
		Category:          "housing",
		Date:              time.Now().UTC().AddDate(0, -1, 0),
		Status:            models.TransactionStatusCompleted,
		IsRecurring:       true,
		RecurringInterval: &interval,
		LastProcessed:     lastProcessed,
		NextRecurringDate: next,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test template: %v", err)
	}
	return tx
}

// CreateTestBudget creates a monthly budget for the user.
func CreateTestBudget(t *testing.T, db *gorm.DB, userID, amount string) *models.Budget {
	t.Helper()

	budget := &models.Budget{
		UserID: userID,
		Amount: decimal.RequireFromString(amount),
	}
	if err := db.Create(budget).Error; err != nil {
		t.Fatalf("failed to create test budget: %v", err)
	}
	return budget
}

// ReloadAccount re-reads an account's stored state.
func ReloadAccount(t *testing.T, db *gorm.DB, accountID string) *models.Account {
	t.Helper()

	var account models.Account
	if err := db.First(&account, "id = ?", accountID).Error; err != nil {
		t.Fatalf("failed to reload account: %v", err)
	}
	return &account
}

// ReloadUser re-reads a user's stored state.
func ReloadUser(t *testing.T, db *gorm.DB, userID string) *models.User {
	t.Helper()

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	return &user
}
