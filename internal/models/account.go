package models

import "github.com/shopspring/decimal"

// AccountType represents the type of account
type AccountType string

const (
	AccountTypeCurrent AccountType = "CURRENT"
	AccountTypeSavings AccountType = "SAVINGS"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	return t == AccountTypeCurrent || t == AccountTypeSavings
}

// Account represents a financial account owned by a user. Balance only
// changes through the balance mutator, inside the same DB transaction as the
// ledger write that caused it.
type Account struct {
	Base
	UserID    string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Name      string          `gorm:"not null" json:"name"`
	Type      AccountType     `gorm:"not null" json:"type"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	IsDefault bool            `gorm:"not null;default:false" json:"is_default"`

	// Populated by list queries only.
	TransactionCount int64 `gorm:"-" json:"transaction_count"`
}
