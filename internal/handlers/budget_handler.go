package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "flow/internal/errors"
	"flow/internal/services"
)

// BudgetHandler handles budget-related requests.
type BudgetHandler struct {
	budgetService services.BudgetServicer
	auditService  services.AuditServicer
}

// NewBudgetHandler creates a new BudgetHandler.
func NewBudgetHandler(budgetService services.BudgetServicer, auditService services.AuditServicer) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService, auditService: auditService}
}

// UpsertBudgetRequest represents the request payload for setting the monthly budget.
type UpsertBudgetRequest struct {
	Amount string `json:"amount" binding:"required,decimal_amount"`
}

// UpsertBudget handles setting the user's monthly budget
// @Summary     Set monthly budget
// @Description Create or replace the user's single monthly budget
// @Tags        budget
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body UpsertBudgetRequest true "Budget amount"
// @Success     200 {object} models.Budget "Budget saved"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget [put]
func (h *BudgetHandler) UpsertBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpsertBudgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	amount, err := services.ParseAmount(req.Amount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	budget, err := h.budgetService.UpsertBudget(userID, amount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		UserID:     userID,
		Action:     services.AuditUpsertBudget,
		ResourceID: budget.ID,
		IPAddress:  c.ClientIP(),
		Changes:    map[string]any{"amount": budget.Amount},
	})

	c.JSON(http.StatusOK, gin.H{"budget": budget})
}

// GetBudgetProgress handles retrieving this month's spending against the budget.
// @Summary     Get budget progress
// @Description Spending this month on the default account against the monthly budget
// @Tags        budget
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.BudgetProgress "Budget progress"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Budget or default account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /budget [get]
func (h *BudgetHandler) GetBudgetProgress(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	progress, err := h.budgetService.GetBudgetProgress(userID, time.Now().UTC())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

// GetCurrentBudget handles the dashboard read for one account.
// @Summary     Get current budget for an account
// @Description The user's budget (null when unset) and this month's expenses on the account
// @Tags        budget,accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Account ID"
// @Success     200 {object} services.CurrentBudget "Current budget"
// @Failure     400 {object} ErrorResponse "Invalid account ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/budget [get]
func (h *BudgetHandler) GetCurrentBudget(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	current, err := h.budgetService.GetCurrentBudget(userID, accountID, time.Now().UTC())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, current)
}
