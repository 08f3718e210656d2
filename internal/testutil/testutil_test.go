package testutil_test

import (
	"testing"
	"time"

	"flow/internal/errors"
	"flow/internal/models"
	"flow/internal/testutil"

	"github.com/shopspring/decimal"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"users", "accounts", "transactions", "budgets", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)
	if user.ID == "" {
		t.Fatal("user should have an ID")
	}

	account := testutil.CreateTestDefaultAccount(t, db, user.ID, "50.25")
	reloaded := testutil.ReloadAccount(t, db, account.ID)
	testutil.AssertDecimal(t, reloaded.Balance, "50.25")
	if !reloaded.IsDefault {
		t.Error("expected default account")
	}

	tx := testutil.CreateTestTransaction(t, db, user.ID, account.ID, models.TransactionTypeIncome, "10")
	testutil.AssertDecimal(t, tx.Amount, "10")

	last := time.Now().UTC().AddDate(0, 0, -10)
	tpl := testutil.CreateTestTemplate(t, db, user.ID, account.ID, models.TransactionTypeExpense, "5", models.RecurringWeekly, &last, nil)
	if !tpl.IsTemplate() {
		t.Error("expected a recurring template")
	}

	budget := testutil.CreateTestBudget(t, db, user.ID, "100")
	if !budget.Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected budget amount 100, got %s", budget.Amount)
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrAccountNotFound, "custom message")
	testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
