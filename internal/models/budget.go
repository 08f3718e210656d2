package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a user's monthly spending ceiling. There is at most one per user.
type Budget struct {
	Base
	UserID        string          `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	LastAlertSent *time.Time      `json:"last_alert_sent,omitempty"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}
