package services

import (
	"context"
	"time"

	"flow/internal/insights"
	"flow/internal/logger"
	"flow/internal/models"
	"flow/internal/notify"
	"flow/internal/schedule"
)

// reportService sends the monthly summary email.
type reportService struct {
	users       UserServicer
	stats       StatsServicer
	insights    insights.Generator
	dispatcher  notify.Dispatcher
	concurrency int
}

// NewReportService creates a new ReportServicer. Insight failures degrade to
// the fixed fallback list.
func NewReportService(users UserServicer, stats StatsServicer, gen insights.Generator, dispatcher notify.Dispatcher, concurrency int) ReportServicer {
	if dispatcher == nil {
		dispatcher = notify.LogDispatcher{}
	}
	return &reportService{
		users:       users,
		stats:       stats,
		insights:    insights.WithFallback(gen),
		dispatcher:  dispatcher,
		concurrency: concurrency,
	}
}

// SendMonthlyReport reports on the calendar month before now.
func (s *reportService) SendMonthlyReport(ctx context.Context, user *models.User, now time.Time) error {
	month := schedule.PreviousMonth(now)

	stats, err := s.stats.GetMonthlyStats(user.ID, month)
	if err != nil {
		return err
	}

	label := schedule.MonthLabel(month)
	tips, err := s.insights.Generate(ctx, *stats, label)
	if err != nil {
		return err
	}

	return s.dispatcher.SendMonthlyReport(ctx, notify.MonthlyReport{
		To:       user.Email,
		UserName: user.Name,
		Month:    label,
		Stats:    *stats,
		Insights: tips,
	})
}

// SendMonthlyReports sends a report to every user.
func (s *reportService) SendMonthlyReports(ctx context.Context, now time.Time) (*RunResult, error) {
	log := logger.Job(JobMonthlyReports)
	result := newRunResult(JobMonthlyReports, now)

	users, err := s.users.ListUsers()
	if err != nil {
		return nil, err
	}
	result.Checked = len(users)

	err = forEachLimited(ctx, s.concurrency, users, func(ctx context.Context, u models.User) {
		if err := s.SendMonthlyReport(ctx, &u, now); err != nil {
			result.record(outcomeFailed)
			log.Errorw("Failed to send monthly report", "user_id", u.ID, "error", err)
			return
		}
		result.record(outcomeProcessed)
	})
	result.finish()

	log.Infow("Monthly reports complete",
		"checked", result.Checked,
		"sent", result.Processed,
		"failed", result.Failed,
	)
	return result, err
}
