package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "flow/internal/errors"
	"flow/internal/models"
	"flow/internal/schedule"
)

// statsService computes per-month aggregates.
type statsService struct {
	db *gorm.DB
}

// NewStatsService creates a new StatsServicer.
func NewStatsService(db *gorm.DB) StatsServicer {
	return &statsService{db: db}
}

// GetMonthlyStats aggregates the user's transactions dated within month's
// calendar month.
func (s *statsService) GetMonthlyStats(userID string, month time.Time) (*models.MonthlyStats, error) {
	start, end := schedule.MonthBounds(month)

	var transactions []models.Transaction
	if err := s.db.
		Select("type", "amount", "category").
		Where("user_id = ? AND date BETWEEN ? AND ?", userID, start, end).
		Find(&transactions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	stats := AggregateMonthlyStats(transactions)
	return &stats, nil
}

// AggregateMonthlyStats folds transactions into totals. Only expenses are
// broken down by category.
func AggregateMonthlyStats(transactions []models.Transaction) models.MonthlyStats {
	stats := models.MonthlyStats{
		TotalIncome:      decimal.Zero,
		TotalExpenses:    decimal.Zero,
		ByCategory:       make(models.CategoryTotals),
		TransactionCount: len(transactions),
	}

	for i := range transactions {
		t := &transactions[i]
		switch t.Type {
		case models.TransactionTypeExpense:
			stats.TotalExpenses = stats.TotalExpenses.Add(t.Amount)
			stats.ByCategory[t.Category] = stats.ByCategory[t.Category].Add(t.Amount)
		case models.TransactionTypeIncome:
			stats.TotalIncome = stats.TotalIncome.Add(t.Amount)
		}
	}
	return stats
}
