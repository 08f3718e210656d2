package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"flow/internal/models"
	"flow/internal/services"
)

// StatsHandler serves monthly statistics.
type StatsHandler struct {
	statsService services.StatsServicer
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(statsService services.StatsServicer) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// MonthlyStatsResponse wraps the stats with the month they cover.
type MonthlyStatsResponse struct {
	Month string               `json:"month"`
	Stats *models.MonthlyStats `json:"stats"`
	Net   string               `json:"net"`
}

// GetMonthlyStats handles retrieving one month's totals
// @Summary     Get monthly statistics
// @Description Income, expenses and per-category expense totals for a calendar month (UTC)
// @Tags        stats
// @Produce     json
// @Security    BearerAuth
// @Param       month query string false "Month as YYYY-MM (default current month)"
// @Success     200 {object} MonthlyStatsResponse "Monthly statistics"
// @Failure     400 {object} ErrorResponse "Invalid month"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stats/monthly [get]
func (h *StatsHandler) GetMonthlyStats(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	month := time.Now().UTC()
	if v := c.Query("month"); v != "" {
		month, err = parseMonth(v)
		if err != nil {
			respondWithError(c, err)
			return
		}
	}

	stats, err := h.statsService.GetMonthlyStats(userID, month)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, MonthlyStatsResponse{
		Month: month.Format("2006-01"),
		Stats: stats,
		Net:   stats.Net().String(),
	})
}
