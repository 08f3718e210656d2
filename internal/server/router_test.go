package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"flow/internal/app"
	"flow/internal/config"
	"flow/internal/logger"
	"flow/internal/middleware"
	"flow/internal/testutil"
	"flow/internal/validator"
)

const (
	testSecret     = "integration-secret"
	testPipeline   = "integration-pipeline-key"
	testIssuer     = "https://id.flow.test"
	testCreateRate = 5
)

// testApp holds the full application stack backed by in-memory SQLite.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	cfg := &config.Config{
		Env:                  "test",
		JobConcurrency:       1,
		BudgetAlertThreshold: decimal.NewFromInt(80),
		RateLimitPerHour:     testCreateRate,
	}
	svc, err := app.NewServices(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("NewServices() error = %v", err)
	}

	router := NewRouter(svc, Options{
		JWTSecret:      testSecret,
		JWTIssuer:      testIssuer,
		PipelineAPIKey: testPipeline,
		CreateLimit:    testCreateRate,
		JobTimeout:     time.Minute,
	})
	return &testApp{DB: db, Router: router}
}

// tokenFor signs an identity token the way the identity provider would.
func tokenFor(t *testing.T, subject, email string) string {
	t.Helper()
	claims := middleware.IdentityClaims{
		Email: email,
		Name:  "Test User",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// request makes an HTTP request to the test router and returns the recorder.
func (a *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

// runJob calls a pipeline job endpoint and returns its counters.
func (a *testApp) runJob(t *testing.T, job string) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipeline/jobs/"+job, http.NoBody)
	req.Header.Set("X-API-Key", testPipeline)
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("job %s: expected 200, got %d: %s", job, rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["result"].(map[string]interface{})
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertMoney(t *testing.T, got interface{}, want string) {
	t.Helper()
	s, ok := got.(string)
	if !ok {
		t.Fatalf("expected decimal string, got %T (%v)", got, got)
	}
	g, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	if !g.Equal(decimal.RequireFromString(want)) {
		t.Errorf("amount = %s, want %s", s, want)
	}
}

func (a *testApp) createAccount(t *testing.T, token, name, balance string) string {
	t.Helper()
	rec := a.request(http.MethodPost, "/api/v1/accounts",
		fmt.Sprintf(`{"name":%q,"type":"CURRENT","balance":%q}`, name, balance), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating account, got %d: %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["account"].(map[string]interface{})["id"].(string)
}

func (a *testApp) balanceOf(t *testing.T, token, accountID string) interface{} {
	t.Helper()
	rec := a.request(http.MethodGet, "/api/v1/accounts/"+accountID, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["account"].(map[string]interface{})["balance"]
}

func TestHealth(t *testing.T) {
	a := setupApp(t)
	if rec := a.request(http.MethodGet, "/api/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	router := NewRouter(&app.Services{}, Options{Ping: func(context.Context) error { return errors.New("down") }})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when ping fails, got %d", rec.Code)
	}
}

func TestAuthFlow_FirstRequestCreatesUser(t *testing.T) {
	a := setupApp(t)

	if rec := a.request(http.MethodGet, "/api/v1/profile", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token := tokenFor(t, "idp|alice", "Alice@Example.com")
	rec := a.request(http.MethodGet, "/api/v1/profile", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	user := parseJSON(t, rec)["user"].(map[string]interface{})
	if user["email"] != "alice@example.com" {
		t.Errorf("email = %v, want normalized alice@example.com", user["email"])
	}

	// Second request resolves to the same local user.
	rec = a.request(http.MethodGet, "/api/v1/profile", "", token)
	if again := parseJSON(t, rec)["user"].(map[string]interface{}); again["id"] != user["id"] {
		t.Errorf("user id changed: %v then %v", user["id"], again["id"])
	}
}

func TestAccountFlow_BalanceFollowsTransactions(t *testing.T) {
	a := setupApp(t)
	token := tokenFor(t, "idp|acct", "acct@test.com")

	accountID := a.createAccount(t, token, "Checking", "100")

	// First account is the default.
	rec := a.request(http.MethodGet, "/api/v1/accounts/"+accountID, "", token)
	if acct := parseJSON(t, rec)["account"].(map[string]interface{}); acct["is_default"] != true {
		t.Error("expected first account to be default")
	}

	rec = a.request(http.MethodPost, "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"INCOME","amount":"50","description":"Salary"}`, accountID), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	incomeID := parseJSON(t, rec)["transaction"].(map[string]interface{})["id"].(string)

	rec = a.request(http.MethodPost, "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"EXPENSE","amount":"30","description":"Groceries","category":"food"}`, accountID), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	expenseID := parseJSON(t, rec)["transaction"].(map[string]interface{})["id"].(string)

	// 100 + 50 - 30
	assertMoney(t, a.balanceOf(t, token, accountID), "120")

	// Raising the expense to 45 applies only the difference.
	rec = a.request(http.MethodPut, "/api/v1/transactions/"+expenseID,
		fmt.Sprintf(`{"account_id":%q,"type":"EXPENSE","amount":"45","description":"Groceries","category":"food"}`, accountID), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "105")

	rec = a.request(http.MethodGet, "/api/v1/accounts/"+accountID+"/transactions", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if total := parseJSON(t, rec)["total_items"].(float64); total != 2 {
		t.Errorf("expected 2 transactions, got %.0f", total)
	}

	// Deleting the income reverses it.
	if rec = a.request(http.MethodDelete, "/api/v1/transactions/"+incomeID, "", token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "55")

	rec = a.request(http.MethodPost, "/api/v1/transactions/bulk-delete",
		fmt.Sprintf(`{"ids":[%q]}`, expenseID), token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 bulk deleting, got %d: %s", rec.Code, rec.Body.String())
	}
	if deleted := parseJSON(t, rec)["deleted"].(float64); deleted != 1 {
		t.Errorf("deleted = %.0f, want 1", deleted)
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "100")
}

func TestAccountFlow_OtherUsersCannotSeeAccount(t *testing.T) {
	a := setupApp(t)
	owner := tokenFor(t, "idp|owner", "owner@test.com")
	other := tokenFor(t, "idp|other", "other@test.com")

	accountID := a.createAccount(t, owner, "Private", "10")

	rec := a.request(http.MethodGet, "/api/v1/accounts/"+accountID, "", other)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's account, got %d", rec.Code)
	}

	rec = a.request(http.MethodPost, "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"EXPENSE","amount":"5"}`, accountID), other)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 posting to another user's account, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, a.balanceOf(t, owner, accountID), "10")
}

func TestRecurringFlow_PipelineMaterializesOnce(t *testing.T) {
	a := setupApp(t)
	token := tokenFor(t, "idp|rec", "rec@test.com")
	accountID := a.createAccount(t, token, "Checking", "100")

	// A weekly template dated eight days ago is already due.
	start := time.Now().UTC().AddDate(0, 0, -8).Format(time.RFC3339)
	rec := a.request(http.MethodPost, "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"EXPENSE","amount":"20","description":"Gym","date":%q,"is_recurring":true,"recurring_interval":"WEEKLY"}`,
			accountID, start), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating template, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "80")

	result := a.runJob(t, "recurring")
	if result["processed"].(float64) != 1 {
		t.Fatalf("expected 1 processed, got %v", result)
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "60")

	// The schedule advanced, so a second run finds nothing due.
	result = a.runJob(t, "recurring")
	if result["processed"].(float64) != 0 {
		t.Errorf("expected 0 processed on rerun, got %v", result)
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "60")

	rec = a.request(http.MethodGet, "/api/v1/transactions?is_recurring=false", "", token)
	page := parseJSON(t, rec)
	if page["total_items"].(float64) != 1 {
		t.Fatalf("expected 1 materialized occurrence, got %v", page["total_items"])
	}
	occurrence := page["data"].([]interface{})[0].(map[string]interface{})
	if occurrence["description"] != "Gym (Recurring)" {
		t.Errorf("description = %v", occurrence["description"])
	}
}

func TestRecurringFlow_TemplateWithoutIntervalRejected(t *testing.T) {
	a := setupApp(t)
	token := tokenFor(t, "idp|bad", "bad@test.com")
	accountID := a.createAccount(t, token, "Checking", "100")

	rec := a.request(http.MethodPost, "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"EXPENSE","amount":"20","is_recurring":true}`, accountID), token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, a.balanceOf(t, token, accountID), "100")
}

func TestBudgetFlow_ProgressAndAlertOncePerMonth(t *testing.T) {
	a := setupApp(t)
	token := tokenFor(t, "idp|budget", "budget@test.com")
	accountID := a.createAccount(t, token, "Checking", "500")

	rec := a.request(http.MethodPut, "/api/v1/budget", `{"amount":"100"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 setting budget, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.request(http.MethodPost, "/api/v1/transactions",
		fmt.Sprintf(`{"account_id":%q,"type":"EXPENSE","amount":"85","category":"rent"}`, accountID), token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = a.request(http.MethodGet, "/api/v1/budget", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	progress := parseJSON(t, rec)["progress"].(map[string]interface{})
	assertMoney(t, progress["spent"], "85")
	assertMoney(t, progress["remaining"], "15")
	assertMoney(t, progress["percentage"], "85")

	rec = a.request(http.MethodGet, "/api/v1/accounts/"+accountID+"/budget", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, parseJSON(t, rec)["current_expenses"], "85")

	if result := a.runJob(t, "budget-alerts"); result["processed"].(float64) != 1 {
		t.Fatalf("expected 1 alert, got %v", result)
	}
	if result := a.runJob(t, "budget-alerts"); result["processed"].(float64) != 0 {
		t.Errorf("expected no second alert this month, got %v", result)
	}
}

func TestStatsAndReportsFlow(t *testing.T) {
	a := setupApp(t)
	token := tokenFor(t, "idp|stats", "stats@test.com")
	accountID := a.createAccount(t, token, "Checking", "0")

	for _, body := range []string{
		`{"account_id":%q,"type":"INCOME","amount":"1000","category":"salary"}`,
		`{"account_id":%q,"type":"EXPENSE","amount":"200","category":"food"}`,
		`{"account_id":%q,"type":"EXPENSE","amount":"50.25","category":"food"}`,
	} {
		if rec := a.request(http.MethodPost, "/api/v1/transactions", fmt.Sprintf(body, accountID), token); rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	month := time.Now().UTC().Format("2006-01")
	rec := a.request(http.MethodGet, "/api/v1/stats/monthly?month="+month, "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := parseJSON(t, rec)
	stats := resp["stats"].(map[string]interface{})
	assertMoney(t, stats["total_income"], "1000")
	assertMoney(t, stats["total_expenses"], "250.25")
	assertMoney(t, stats["by_category"].(map[string]interface{})["food"], "250.25")
	assertMoney(t, resp["net"], "749.75")

	if rec := a.request(http.MethodGet, "/api/v1/stats/monthly?month=March", "", token); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed month, got %d", rec.Code)
	}

	// One user, reports go through the log dispatcher.
	if result := a.runJob(t, "monthly-reports"); result["processed"].(float64) != 1 {
		t.Errorf("expected 1 report, got %v", result)
	}
}

func TestRateLimitFlow(t *testing.T) {
	a := setupApp(t)
	token := tokenFor(t, "idp|busy", "busy@test.com")
	accountID := a.createAccount(t, token, "Checking", "0")

	body := fmt.Sprintf(`{"account_id":%q,"type":"INCOME","amount":"1"}`, accountID)
	for i := 0; i < testCreateRate; i++ {
		if rec := a.request(http.MethodPost, "/api/v1/transactions", body, token); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}
	rec := a.request(http.MethodPost, "/api/v1/transactions", body, token)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}
	assertMoney(t, a.balanceOf(t, token, accountID), fmt.Sprint(testCreateRate))

	// Reads are not throttled.
	if rec := a.request(http.MethodGet, "/api/v1/transactions", "", token); rec.Code != http.StatusOK {
		t.Errorf("expected 200 listing, got %d", rec.Code)
	}
}

func TestPipelineRequiresKey(t *testing.T) {
	a := setupApp(t)

	rec := a.request(http.MethodPost, "/api/v1/pipeline/jobs/recurring", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	// User tokens are not pipeline keys.
	rec = a.request(http.MethodPost, "/api/v1/pipeline/jobs/recurring", "", tokenFor(t, "idp|x", "x@test.com"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a bearer token, got %d", rec.Code)
	}
}
