package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flow/internal/models"
	"flow/internal/pagination"
	"flow/internal/queue"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	EnsureUser(externalID, email, name, imageURL string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	ListUsers() ([]models.User, error)
}

// AccountServicer defines the contract for account-related business logic.
type AccountServicer interface {
	CreateAccount(userID string, in AccountInput) (*models.Account, error)
	GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(userID, accountID string) (*models.Account, error)
	GetDefaultAccount(userID string) (*models.Account, error)
	SetDefaultAccount(userID, accountID string) (*models.Account, error)
	ApplyBalanceDelta(tx *gorm.DB, accountID string, delta decimal.Decimal) error
}

// AccountInput holds the fields accepted when creating an account.
type AccountInput struct {
	Name      string
	Type      models.AccountType
	Balance   decimal.Decimal
	IsDefault bool
}

// TransactionInput holds the user-editable fields of a transaction.
type TransactionInput struct {
	AccountID         string
	Type              models.TransactionType
	Amount            decimal.Decimal
	Description       string
	Date              time.Time
	Category          string
	ReceiptURL        string
	IsRecurring       bool
	RecurringInterval *models.RecurringInterval
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate    *time.Time
	ToDate      *time.Time
	Type        *models.TransactionType
	Category    *string
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	IsRecurring *bool
}

// TransactionServicer defines the contract for transaction-related business logic.
type TransactionServicer interface {
	CreateTransaction(userID string, in TransactionInput) (*models.Transaction, error)
	UpdateTransaction(userID, transactionID string, in TransactionInput) (*models.Transaction, error)
	GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetUserTransactions(userID string, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID string) (*models.Transaction, error)
	DeleteTransaction(userID, transactionID string) error
	BulkDeleteTransactions(userID string, transactionIDs []string) (int64, error)
}

// RecurringServicer materializes due recurring templates.
type RecurringServicer interface {
	GetDueTemplates(now time.Time) ([]models.Transaction, error)
	MaterializeTemplate(userID, templateID string, now time.Time) (*models.Transaction, error)
	ProcessDue(ctx context.Context, now time.Time) (*RunResult, error)
	PublishDue(ctx context.Context, now time.Time, publisher queue.Publisher) (*RunResult, error)
}

// CurrentBudget is a user's budget with this month's spend on one account.
type CurrentBudget struct {
	Budget          *models.Budget  `json:"budget"`
	CurrentExpenses decimal.Decimal `json:"current_expenses"`
}

// BudgetProgress contains spending vs budget for the current month on the
// user's default account.
type BudgetProgress struct {
	BudgetID   string          `json:"budget_id"`
	AccountID  string          `json:"account_id"`
	Budgeted   decimal.Decimal `json:"budgeted"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
}

// BudgetEvaluation is the outcome of one budget alert check.
type BudgetEvaluation struct {
	BudgetID       string          `json:"budget_id"`
	UserID         string          `json:"user_id"`
	AccountID      string          `json:"account_id,omitempty"`
	TotalExpenses  decimal.Decimal `json:"total_expenses"`
	BudgetAmount   decimal.Decimal `json:"budget_amount"`
	PercentageUsed decimal.Decimal `json:"percentage_used"`
	Skipped        bool            `json:"skipped"`
	AlertSent      bool            `json:"alert_sent"`
}

// BudgetServicer defines the contract for budget-related business logic.
type BudgetServicer interface {
	UpsertBudget(userID string, amount decimal.Decimal) (*models.Budget, error)
	GetBudget(userID string) (*models.Budget, error)
	GetCurrentBudget(userID, accountID string, now time.Time) (*CurrentBudget, error)
	GetBudgetProgress(userID string, now time.Time) (*BudgetProgress, error)
	EvaluateBudget(ctx context.Context, budget *models.Budget, now time.Time) (*BudgetEvaluation, error)
	CheckBudgetAlerts(ctx context.Context, now time.Time) (*RunResult, error)
}

// StatsServicer computes monthly statistics.
type StatsServicer interface {
	GetMonthlyStats(userID string, month time.Time) (*models.MonthlyStats, error)
}

// ReportServicer sends monthly summary reports.
type ReportServicer interface {
	SendMonthlyReport(ctx context.Context, user *models.User, now time.Time) error
	SendMonthlyReports(ctx context.Context, now time.Time) (*RunResult, error)
}

// AuditServicer records user-initiated changes.
type AuditServicer interface {
	Record(ev AuditEvent)
}
