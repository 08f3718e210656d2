package models

import "github.com/shopspring/decimal"

// CategoryTotals maps a category label to the summed expense amount.
type CategoryTotals map[string]decimal.Decimal

// MonthlyStats is the reduction of one user's transactions over a calendar
// month. It is not persisted.
type MonthlyStats struct {
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	ByCategory       CategoryTotals  `json:"by_category"`
	TransactionCount int             `json:"transaction_count"`
}

// Net returns income minus expenses.
func (s MonthlyStats) Net() decimal.Decimal {
	return s.TotalIncome.Sub(s.TotalExpenses)
}
