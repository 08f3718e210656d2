package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// TransactionStatus is the settlement state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// RecurringInterval is the cadence of a recurring template.
type RecurringInterval string

const (
	RecurringDaily   RecurringInterval = "DAILY"
	RecurringWeekly  RecurringInterval = "WEEKLY"
	RecurringMonthly RecurringInterval = "MONTHLY"
	RecurringYearly  RecurringInterval = "YEARLY"
)

// Valid reports whether i is a known interval.
func (i RecurringInterval) Valid() bool {
	switch i {
	case RecurringDaily, RecurringWeekly, RecurringMonthly, RecurringYearly:
		return true
	}
	return false
}

// RecurringSuffix marks descriptions of materialized occurrences.
const RecurringSuffix = " (Recurring)"

// Transaction represents a ledger entry. A row with IsRecurring set is a
// template: it never fires by itself, the materializer copies it into
// one-time occurrences and advances NextRecurringDate.
type Transaction struct {
	Base
	UserID            string             `gorm:"type:uuid;not null;index" json:"user_id"`
	AccountID         string             `gorm:"type:uuid;not null;index" json:"account_id"`
	Type              TransactionType    `gorm:"not null" json:"type"`
	Amount            decimal.Decimal    `gorm:"type:decimal(20,2);not null" json:"amount"`
	Description       string             `json:"description"`
	Date              time.Time          `gorm:"not null;index" json:"date"`
	Category          string             `gorm:"not null;default:''" json:"category"`
	ReceiptURL        string             `json:"receipt_url,omitempty"`
	Status            TransactionStatus  `gorm:"not null;default:'COMPLETED'" json:"status"`
	IsRecurring       bool               `gorm:"not null;default:false" json:"is_recurring"`
	RecurringInterval *RecurringInterval `json:"recurring_interval,omitempty"`
	NextRecurringDate *time.Time         `gorm:"index" json:"next_recurring_date,omitempty"`
	LastProcessed     *time.Time         `json:"last_processed,omitempty"`
	OccurrenceCount   int64              `gorm:"not null;default:0" json:"occurrence_count"`
}

// SignedAmount returns the balance effect of the transaction: positive for
// income, negative for expenses.
func (t *Transaction) SignedAmount() decimal.Decimal {
	return SignedAmount(t.Type, t.Amount)
}

// SignedAmount applies the sign implied by the transaction type to amount.
func SignedAmount(txType TransactionType, amount decimal.Decimal) decimal.Decimal {
	if txType == TransactionTypeIncome {
		return amount
	}
	return amount.Neg()
}

// IsTemplate reports whether the transaction is a recurring template.
func (t *Transaction) IsTemplate() bool {
	return t.IsRecurring && t.RecurringInterval != nil
}
