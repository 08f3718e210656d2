package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"flow/internal/insights"
	"flow/internal/models"
	"flow/internal/testutil"
)

type fakeGenerator struct {
	tips  []string
	err   error
	month string
}

func (g *fakeGenerator) Generate(_ context.Context, _ models.MonthlyStats, month string) ([]string, error) {
	g.month = month
	return g.tips, g.err
}

func TestSendMonthlyReport(t *testing.T) {
	now := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	t.Run("covers_previous_month", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)
		testutil.CreateTestTransactionAt(t, db, user.ID, account.ID, models.TransactionTypeExpense, "40", "food", time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC))
		testutil.CreateTestTransactionAt(t, db, user.ID, account.ID, models.TransactionTypeExpense, "60", "food", now)

		gen := &fakeGenerator{tips: []string{"Cook at home."}}
		d := &fakeDispatcher{}
		svc := NewReportService(NewUserService(db), NewStatsService(db), gen, d, 1)

		testutil.AssertNoError(t, svc.SendMonthlyReport(context.Background(), user, now))

		if len(d.reports) != 1 {
			t.Fatalf("expected one report, got %d", len(d.reports))
		}
		report := d.reports[0]
		if report.Month != "February 2024" || gen.month != "February 2024" {
			t.Errorf("expected February 2024, got %q", report.Month)
		}
		testutil.AssertDecimal(t, report.Stats.TotalExpenses, "40")
		if len(report.Insights) != 1 || report.Insights[0] != "Cook at home." {
			t.Errorf("unexpected insights %v", report.Insights)
		}
		if report.To != user.Email {
			t.Errorf("expected recipient %s, got %s", user.Email, report.To)
		}
	})

	t.Run("generator_failure_uses_fallback", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)

		d := &fakeDispatcher{}
		svc := NewReportService(NewUserService(db), NewStatsService(db), &fakeGenerator{err: errors.New("quota")}, d, 1)

		testutil.AssertNoError(t, svc.SendMonthlyReport(context.Background(), user, now))
		if len(d.reports) != 1 {
			t.Fatalf("expected one report, got %d", len(d.reports))
		}
		if len(d.reports[0].Insights) != len(insights.FallbackInsights) {
			t.Errorf("expected fallback insights, got %v", d.reports[0].Insights)
		}
	})
}

func TestSendMonthlyReports(t *testing.T) {
	now := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	testutil.CreateTestUser(t, db)
	testutil.CreateTestUser(t, db)

	t.Run("sends_to_every_user", func(t *testing.T) {
		d := &fakeDispatcher{}
		svc := NewReportService(NewUserService(db), NewStatsService(db), nil, d, 2)

		result, err := svc.SendMonthlyReports(context.Background(), now)
		testutil.AssertNoError(t, err)
		if result.Checked != 2 || result.Processed != 2 || len(d.reports) != 2 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("dispatch_failures_are_counted", func(t *testing.T) {
		d := &fakeDispatcher{err: errors.New("smtp down")}
		svc := NewReportService(NewUserService(db), NewStatsService(db), nil, d, 2)

		result, err := svc.SendMonthlyReports(context.Background(), now)
		testutil.AssertNoError(t, err)
		if result.Failed != 2 || result.Processed != 0 {
			t.Errorf("unexpected result %+v", result)
		}
	})
}
