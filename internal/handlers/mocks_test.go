package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flow/internal/models"
	"flow/internal/pagination"
	"flow/internal/queue"
	"flow/internal/services"
	"flow/internal/validator"
)

const (
	testUserID    = "0190a4b2-0000-7000-8000-000000000001"
	testAccountID = "0190a4b2-0000-7000-8000-0000000000a1"
	testTxID      = "0190a4b2-0000-7000-8000-0000000000b1"
)

// --- mock user service ---

type mockUserService struct {
	ensureUserFn  func(externalID, email, name, imageURL string) (*models.User, error)
	getUserByIDFn func(id string) (*models.User, error)
	listUsersFn   func() ([]models.User, error)
}

func (m *mockUserService) EnsureUser(externalID, email, name, imageURL string) (*models.User, error) {
	if m.ensureUserFn != nil {
		return m.ensureUserFn(externalID, email, name, imageURL)
	}
	return &models.User{Base: models.Base{ID: testUserID}}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{Base: models.Base{ID: id}}, nil
}

func (m *mockUserService) ListUsers() ([]models.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn()
	}
	return nil, nil
}

var _ services.UserServicer = (*mockUserService)(nil)

// --- mock account service ---

type mockAccountService struct {
	createAccountFn     func(userID string, in services.AccountInput) (*models.Account, error)
	getUserAccountsFn   func(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	getAccountByIDFn    func(userID, accountID string) (*models.Account, error)
	setDefaultAccountFn func(userID, accountID string) (*models.Account, error)
}

func (m *mockAccountService) CreateAccount(userID string, in services.AccountInput) (*models.Account, error) {
	if m.createAccountFn != nil {
		return m.createAccountFn(userID, in)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) GetUserAccounts(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	if m.getUserAccountsFn != nil {
		return m.getUserAccountsFn(userID, page)
	}
	resp := pagination.NewPageResponse([]models.Account{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockAccountService) GetAccountByID(userID, accountID string) (*models.Account, error) {
	if m.getAccountByIDFn != nil {
		return m.getAccountByIDFn(userID, accountID)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) GetDefaultAccount(_ string) (*models.Account, error) {
	return &models.Account{}, nil
}

func (m *mockAccountService) SetDefaultAccount(userID, accountID string) (*models.Account, error) {
	if m.setDefaultAccountFn != nil {
		return m.setDefaultAccountFn(userID, accountID)
	}
	return &models.Account{}, nil
}

func (m *mockAccountService) ApplyBalanceDelta(_ *gorm.DB, _ string, _ decimal.Decimal) error {
	return nil
}

var _ services.AccountServicer = (*mockAccountService)(nil)

// --- mock transaction service ---

type mockTransactionService struct {
	createTransactionFn      func(userID string, in services.TransactionInput) (*models.Transaction, error)
	updateTransactionFn      func(userID, transactionID string, in services.TransactionInput) (*models.Transaction, error)
	getAccountTransactionsFn func(userID, accountID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	getUserTransactionsFn    func(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	getTransactionByIDFn     func(userID, transactionID string) (*models.Transaction, error)
	deleteTransactionFn      func(userID, transactionID string) error
	bulkDeleteFn             func(userID string, ids []string) (int64, error)
}

func (m *mockTransactionService) CreateTransaction(userID string, in services.TransactionInput) (*models.Transaction, error) {
	if m.createTransactionFn != nil {
		return m.createTransactionFn(userID, in)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) UpdateTransaction(userID, transactionID string, in services.TransactionInput) (*models.Transaction, error) {
	if m.updateTransactionFn != nil {
		return m.updateTransactionFn(userID, transactionID, in)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) GetAccountTransactions(userID, accountID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if m.getAccountTransactionsFn != nil {
		return m.getAccountTransactionsFn(userID, accountID, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockTransactionService) GetUserTransactions(userID string, page pagination.PageRequest, filter services.TransactionFilter) (*pagination.PageResponse[models.Transaction], error) {
	if m.getUserTransactionsFn != nil {
		return m.getUserTransactionsFn(userID, page, filter)
	}
	resp := pagination.NewPageResponse([]models.Transaction{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockTransactionService) GetTransactionByID(userID, transactionID string) (*models.Transaction, error) {
	if m.getTransactionByIDFn != nil {
		return m.getTransactionByIDFn(userID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockTransactionService) DeleteTransaction(userID, transactionID string) error {
	if m.deleteTransactionFn != nil {
		return m.deleteTransactionFn(userID, transactionID)
	}
	return nil
}

func (m *mockTransactionService) BulkDeleteTransactions(userID string, ids []string) (int64, error) {
	if m.bulkDeleteFn != nil {
		return m.bulkDeleteFn(userID, ids)
	}
	return int64(len(ids)), nil
}

var _ services.TransactionServicer = (*mockTransactionService)(nil)

// --- mock budget service ---

type mockBudgetService struct {
	upsertBudgetFn      func(userID string, amount decimal.Decimal) (*models.Budget, error)
	getCurrentBudgetFn  func(userID, accountID string, now time.Time) (*services.CurrentBudget, error)
	getBudgetProgressFn func(userID string, now time.Time) (*services.BudgetProgress, error)
	checkBudgetAlertsFn func(ctx context.Context, now time.Time) (*services.RunResult, error)
}

func (m *mockBudgetService) UpsertBudget(userID string, amount decimal.Decimal) (*models.Budget, error) {
	if m.upsertBudgetFn != nil {
		return m.upsertBudgetFn(userID, amount)
	}
	return &models.Budget{UserID: userID, Amount: amount}, nil
}

func (m *mockBudgetService) GetBudget(userID string) (*models.Budget, error) {
	return &models.Budget{UserID: userID}, nil
}

func (m *mockBudgetService) GetCurrentBudget(userID, accountID string, now time.Time) (*services.CurrentBudget, error) {
	if m.getCurrentBudgetFn != nil {
		return m.getCurrentBudgetFn(userID, accountID, now)
	}
	return &services.CurrentBudget{}, nil
}

func (m *mockBudgetService) GetBudgetProgress(userID string, now time.Time) (*services.BudgetProgress, error) {
	if m.getBudgetProgressFn != nil {
		return m.getBudgetProgressFn(userID, now)
	}
	return &services.BudgetProgress{}, nil
}

func (m *mockBudgetService) EvaluateBudget(_ context.Context, budget *models.Budget, _ time.Time) (*services.BudgetEvaluation, error) {
	return &services.BudgetEvaluation{BudgetID: budget.ID}, nil
}

func (m *mockBudgetService) CheckBudgetAlerts(ctx context.Context, now time.Time) (*services.RunResult, error) {
	if m.checkBudgetAlertsFn != nil {
		return m.checkBudgetAlertsFn(ctx, now)
	}
	return &services.RunResult{Job: services.JobBudgetAlerts}, nil
}

var _ services.BudgetServicer = (*mockBudgetService)(nil)

// --- mock stats service ---

type mockStatsService struct {
	getMonthlyStatsFn func(userID string, month time.Time) (*models.MonthlyStats, error)
}

func (m *mockStatsService) GetMonthlyStats(userID string, month time.Time) (*models.MonthlyStats, error) {
	if m.getMonthlyStatsFn != nil {
		return m.getMonthlyStatsFn(userID, month)
	}
	return &models.MonthlyStats{ByCategory: models.CategoryTotals{}}, nil
}

var _ services.StatsServicer = (*mockStatsService)(nil)

// --- mock recurring service ---

type mockRecurringService struct {
	processDueFn func(ctx context.Context, now time.Time) (*services.RunResult, error)
	publishDueFn func(ctx context.Context, now time.Time, publisher queue.Publisher) (*services.RunResult, error)
}

func (m *mockRecurringService) GetDueTemplates(_ time.Time) ([]models.Transaction, error) {
	return nil, nil
}

func (m *mockRecurringService) MaterializeTemplate(_, _ string, _ time.Time) (*models.Transaction, error) {
	return &models.Transaction{}, nil
}

func (m *mockRecurringService) ProcessDue(ctx context.Context, now time.Time) (*services.RunResult, error) {
	if m.processDueFn != nil {
		return m.processDueFn(ctx, now)
	}
	return &services.RunResult{Job: services.JobRecurring}, nil
}

func (m *mockRecurringService) PublishDue(ctx context.Context, now time.Time, publisher queue.Publisher) (*services.RunResult, error) {
	if m.publishDueFn != nil {
		return m.publishDueFn(ctx, now, publisher)
	}
	return &services.RunResult{Job: services.JobRecurring}, nil
}

var _ services.RecurringServicer = (*mockRecurringService)(nil)

// --- mock report service ---

type mockReportService struct {
	sendMonthlyReportsFn func(ctx context.Context, now time.Time) (*services.RunResult, error)
}

func (m *mockReportService) SendMonthlyReport(_ context.Context, _ *models.User, _ time.Time) error {
	return nil
}

func (m *mockReportService) SendMonthlyReports(ctx context.Context, now time.Time) (*services.RunResult, error) {
	if m.sendMonthlyReportsFn != nil {
		return m.sendMonthlyReportsFn(ctx, now)
	}
	return &services.RunResult{Job: services.JobMonthlyReports}, nil
}

var _ services.ReportServicer = (*mockReportService)(nil)

// --- mock audit service ---

type mockAuditService struct {
	actions []string
}

func (m *mockAuditService) Record(ev services.AuditEvent) {
	m.actions = append(m.actions, ev.Action)
}

var _ services.AuditServicer = (*mockAuditService)(nil)

// --- test helpers ---

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUserID(uid string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, result map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %v", result)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %q", code, errObj["code"])
	}
}
