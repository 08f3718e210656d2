// Package notify delivers budget alerts and monthly reports to users.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"flow/internal/models"

	"github.com/shopspring/decimal"
)

// BudgetAlert is the payload for a budget threshold notification.
type BudgetAlert struct {
	To             string
	UserName       string
	AccountName    string
	BudgetAmount   decimal.Decimal
	TotalExpenses  decimal.Decimal
	PercentageUsed decimal.Decimal
}

// MonthlyReport is the payload for the monthly summary email.
type MonthlyReport struct {
	To       string
	UserName string
	Month    string
	Stats    models.MonthlyStats
	Insights []string
}

// Dispatcher sends notifications. Implementations do not retry.
type Dispatcher interface {
	SendBudgetAlert(ctx context.Context, alert BudgetAlert) error
	SendMonthlyReport(ctx context.Context, report MonthlyReport) error
}

// BudgetAlertSubject returns the subject line for a budget alert.
func BudgetAlertSubject(a BudgetAlert) string {
	return fmt.Sprintf("Budget Alert for %s", a.AccountName)
}

// RenderBudgetAlert renders the plain-text body of a budget alert.
func RenderBudgetAlert(a BudgetAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greetingName(a.UserName))
	fmt.Fprintf(&b, "You have used %s%% of your monthly budget on %s.\n\n",
		a.PercentageUsed.StringFixed(1), a.AccountName)
	fmt.Fprintf(&b, "Budget:    %s\n", a.BudgetAmount.StringFixed(2))
	fmt.Fprintf(&b, "Spent:     %s\n", a.TotalExpenses.StringFixed(2))
	fmt.Fprintf(&b, "Remaining: %s\n", a.BudgetAmount.Sub(a.TotalExpenses).StringFixed(2))
	b.WriteString("\nFlow")
	return b.String()
}

// MonthlyReportSubject returns the subject line for a monthly report.
func MonthlyReportSubject(r MonthlyReport) string {
	return fmt.Sprintf("Your Monthly Financial Report - %s", r.Month)
}

// RenderMonthlyReport renders the plain-text body of a monthly report.
// Categories are listed by descending amount.
func RenderMonthlyReport(r MonthlyReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greetingName(r.UserName))
	fmt.Fprintf(&b, "Here is your financial summary for %s.\n\n", r.Month)
	fmt.Fprintf(&b, "Total income:   %s\n", r.Stats.TotalIncome.StringFixed(2))
	fmt.Fprintf(&b, "Total expenses: %s\n", r.Stats.TotalExpenses.StringFixed(2))
	fmt.Fprintf(&b, "Net:            %s\n", r.Stats.Net().StringFixed(2))
	fmt.Fprintf(&b, "Transactions:   %d\n", r.Stats.TransactionCount)

	if len(r.Stats.ByCategory) > 0 {
		b.WriteString("\nExpenses by category:\n")
		for _, c := range sortedCategories(r.Stats.ByCategory) {
			fmt.Fprintf(&b, "  %s: %s\n", c, r.Stats.ByCategory[c].StringFixed(2))
		}
	}

	if len(r.Insights) > 0 {
		b.WriteString("\nInsights:\n")
		for _, in := range r.Insights {
			fmt.Fprintf(&b, "  - %s\n", in)
		}
	}
	b.WriteString("\nFlow")
	return b.String()
}

func sortedCategories(totals models.CategoryTotals) []string {
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := totals[keys[i]].Cmp(totals[keys[j]]); c != 0 {
			return c > 0
		}
		return keys[i] < keys[j]
	})
	return keys
}

func greetingName(name string) string {
	if name == "" {
		return "there"
	}
	return name
}
