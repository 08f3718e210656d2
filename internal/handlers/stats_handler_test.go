package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"flow/internal/models"
)

func setupStatsRouter(handler *StatsHandler) *gin.Engine {
	r := gin.New()
	r.GET("/stats/monthly", injectUserID(testUserID), handler.GetMonthlyStats)
	return r
}

func TestStatsHandler_GetMonthlyStats(t *testing.T) {
	t.Run("returns stats for requested month", func(t *testing.T) {
		var gotMonth time.Time
		statsSvc := &mockStatsService{
			getMonthlyStatsFn: func(_ string, month time.Time) (*models.MonthlyStats, error) {
				gotMonth = month
				return &models.MonthlyStats{
					TotalIncome:      decimal.NewFromInt(500),
					TotalExpenses:    decimal.NewFromInt(150),
					ByCategory:       models.CategoryTotals{"food": decimal.NewFromInt(150)},
					TransactionCount: 3,
				}, nil
			},
		}
		r := setupStatsRouter(NewStatsHandler(statsSvc))

		rec := doRequest(r, "GET", "/stats/monthly?month=2024-02", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if !gotMonth.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("unexpected month %s", gotMonth)
		}
		result := parseJSON(t, rec)
		if result["month"] != "2024-02" || result["net"] != "350" {
			t.Errorf("unexpected response %v", result)
		}
		stats := result["stats"].(map[string]interface{})
		if stats["transaction_count"] != float64(3) {
			t.Errorf("expected 3 transactions, got %v", stats["transaction_count"])
		}
	})

	t.Run("returns 400 on bad month", func(t *testing.T) {
		r := setupStatsRouter(NewStatsHandler(&mockStatsService{}))

		rec := doRequest(r, "GET", "/stats/monthly?month=Feb", "")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}
