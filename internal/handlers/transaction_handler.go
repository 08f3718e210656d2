package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "flow/internal/errors"
	"flow/internal/models"
	"flow/internal/pagination"
	"flow/internal/services"
	"flow/internal/uuid"
)

// TransactionHandler handles transaction-related requests.
type TransactionHandler struct {
	transactionService services.TransactionServicer
	auditService       services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(transactionService services.TransactionServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService, auditService: auditService}
}

// TransactionRequest is the payload for creating or replacing a transaction.
// Amounts are decimal strings so no precision is lost in transit.
type TransactionRequest struct {
	AccountID         string                    `json:"account_id" binding:"required,uuid"`
	Type              models.TransactionType    `json:"type" binding:"required,transaction_type"`
	Amount            string                    `json:"amount" binding:"required,decimal_amount"`
	Description       string                    `json:"description" binding:"max=500"`
	Date              *string                   `json:"date"`
	Category          string                    `json:"category" binding:"max=100"`
	ReceiptURL        string                    `json:"receipt_url" binding:"omitempty,url,max=2048"`
	IsRecurring       bool                      `json:"is_recurring"`
	RecurringInterval *models.RecurringInterval `json:"recurring_interval" binding:"omitempty,recurring_interval"`
}

func (r *TransactionRequest) toInput() (services.TransactionInput, error) {
	amount, err := services.ParseAmount(r.Amount)
	if err != nil {
		return services.TransactionInput{}, err
	}

	date := time.Now().UTC()
	if r.Date != nil && *r.Date != "" {
		parsed, parseErr := parseFlexibleTime(*r.Date)
		if parseErr != nil {
			return services.TransactionInput{}, apperrors.WithMessage(apperrors.ErrInvalidInput, parseErr.Error())
		}
		date = parsed
	}

	return services.TransactionInput{
		AccountID:         r.AccountID,
		Type:              r.Type,
		Amount:            amount,
		Description:       r.Description,
		Date:              date,
		Category:          r.Category,
		ReceiptURL:        r.ReceiptURL,
		IsRecurring:       r.IsRecurring,
		RecurringInterval: r.RecurringInterval,
	}, nil
}

func transactionChanges(in services.TransactionInput) map[string]any {
	changes := map[string]any{
		"type":       in.Type,
		"amount":     in.Amount,
		"account_id": in.AccountID,
	}
	if in.IsRecurring && in.RecurringInterval != nil {
		changes["recurring_interval"] = *in.RecurringInterval
	}
	return changes
}

// CreateTransaction handles the creation of a new transaction
// @Summary     Create a transaction
// @Description Create an income or expense. The account balance moves in the same database transaction. Recurring templates get their first next date.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body TransactionRequest true "Transaction details"
// @Success     201 {object} models.Transaction "Transaction created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     429 {object} ErrorResponse "Rate limited"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.CreateTransaction(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		UserID:     userID,
		Action:     services.AuditCreateTransaction,
		ResourceID: transaction.ID,
		IPAddress:  c.ClientIP(),
		Changes:    transactionChanges(in),
	})

	c.JSON(http.StatusCreated, gin.H{"transaction": transaction})
}

// UpdateTransaction handles replacing an existing transaction
// @Summary     Update transaction
// @Description Replace a transaction's fields. The old balance effect is reversed and the new one applied atomically.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true "Transaction ID"
// @Param       request body TransactionRequest true "New transaction fields"
// @Success     200 {object} models.Transaction "Updated transaction"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in, err := req.toInput()
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.UpdateTransaction(userID, txID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		UserID:     userID,
		Action:     services.AuditUpdateTransaction,
		ResourceID: txID,
		IPAddress:  c.ClientIP(),
		Changes:    transactionChanges(in),
	})

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// GetAccountTransactions handles the retrieval of transactions for a specific account
// @Summary     Get account transactions
// @Description Get a paginated list of transactions for a specific account with optional filters
// @Tags        accounts,transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id           path  string true  "Account ID"
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Items per page (default 20, max 100)"
// @Param       sort         query string false "Sort column: date, amount, category, type (prefix - for descending)"
// @Param       from_date    query string false "Filter by start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date      query string false "Filter by end date (RFC3339 or YYYY-MM-DD)"
// @Param       type         query string false "Filter by transaction type (INCOME, EXPENSE)"
// @Param       category     query string false "Filter by category"
// @Param       min_amount   query string false "Filter by minimum amount"
// @Param       max_amount   query string false "Filter by maximum amount"
// @Param       is_recurring query bool   false "Filter templates or one-time transactions"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /accounts/{id}/transactions [get]
func (h *TransactionHandler) GetAccountTransactions(c *gin.Context) {
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

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.GetAccountTransactions(userID, accountID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetUserTransactions handles the retrieval of all transactions for the authenticated user
// @Summary     Get user transactions
// @Description Get a paginated list of all transactions for the authenticated user with optional filters
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       page         query int    false "Page number (default 1)"
// @Param       page_size    query int    false "Items per page (default 20, max 100)"
// @Param       sort         query string false "Sort column: date, amount, category, type (prefix - for descending)"
// @Param       from_date    query string false "Filter by start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date      query string false "Filter by end date (RFC3339 or YYYY-MM-DD)"
// @Param       type         query string false "Filter by transaction type (INCOME, EXPENSE)"
// @Param       category     query string false "Filter by category"
// @Param       min_amount   query string false "Filter by minimum amount"
// @Param       max_amount   query string false "Filter by maximum amount"
// @Param       is_recurring query bool   false "Filter templates or one-time transactions"
// @Success     200 {object} pagination.PageResponse[models.Transaction] "Paginated transactions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions [get]
func (h *TransactionHandler) GetUserTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	filter, err := parseTransactionFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.transactionService.GetUserTransactions(userID, page, filter)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func parseTransactionFilter(c *gin.Context) (services.TransactionFilter, error) {
	var filter services.TransactionFilter

	if v := c.Query("from_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.FromDate = &t
	}

	if v := c.Query("to_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to_date format, use RFC3339 or YYYY-MM-DD")
		}
		filter.ToDate = &t
	}

	if v := c.Query("type"); v != "" {
		txType := models.TransactionType(v)
		if !txType.Valid() {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid type, must be INCOME or EXPENSE")
		}
		filter.Type = &txType
	}

	if v := c.Query("category"); v != "" {
		filter.Category = &v
	}

	if v := c.Query("min_amount"); v != "" {
		amt, err := decimal.NewFromString(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid min_amount")
		}
		filter.MinAmount = &amt
	}

	if v := c.Query("max_amount"); v != "" {
		amt, err := decimal.NewFromString(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid max_amount")
		}
		filter.MaxAmount = &amt
	}

	if v := c.Query("is_recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid is_recurring")
		}
		filter.IsRecurring = &b
	}

	return filter, nil
}

// GetTransactionByID handles the retrieval of a specific transaction
// @Summary     Get transaction by ID
// @Description Get a specific transaction by ID
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} models.Transaction "Transaction details"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransactionByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	transaction, err := h.transactionService.GetTransactionByID(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transaction": transaction})
}

// DeleteTransaction handles the deletion of a transaction
// @Summary     Delete transaction
// @Description Delete a transaction by ID and reverse its balance effect
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} MessageResponse "Transaction deleted"
// @Failure     400 {object} ErrorResponse "Invalid transaction ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.transactionService.DeleteTransaction(userID, transactionID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		UserID:     userID,
		Action:     services.AuditDeleteTransaction,
		ResourceID: transactionID,
		IPAddress:  c.ClientIP(),
	})

	c.JSON(http.StatusOK, gin.H{"message": "Transaction deleted successfully"})
}

// BulkDeleteRequest lists the transactions to delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,max=100,dive,uuid"`
}

// BulkDeleteResponse reports how many transactions were deleted.
type BulkDeleteResponse struct {
	Deleted int64 `json:"deleted"`
}

// BulkDeleteTransactions deletes several transactions at once
// @Summary     Bulk delete transactions
// @Description Delete the caller's transactions in one database transaction, reversing each account's net balance effect
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body BulkDeleteRequest true "Transaction IDs"
// @Success     200 {object} BulkDeleteResponse "Deleted count"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No matching transactions"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /transactions/bulk-delete [post]
func (h *TransactionHandler) BulkDeleteTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ids := make([]string, 0, len(req.IDs))
	for _, id := range req.IDs {
		parsed, err := uuid.Parse(id)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid transaction id"))
			return
		}
		ids = append(ids, parsed)
	}

	deleted, err := h.transactionService.BulkDeleteTransactions(userID, ids)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Record(services.AuditEvent{
		UserID:    userID,
		Action:    services.AuditBulkDeleteTxs,
		IPAddress: c.ClientIP(),
		Changes:   map[string]any{"ids": ids, "deleted": deleted},
	})

	c.JSON(http.StatusOK, BulkDeleteResponse{Deleted: deleted})
}

// MessageResponse represents a simple message response
type MessageResponse struct {
	Message string `json:"message"`
}
