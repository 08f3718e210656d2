package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"flow/internal/logger"

	"github.com/jordan-wright/email"
)

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

// SMTPDispatcher sends notifications as plain-text email.
type SMTPDispatcher struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPDispatcher creates a Dispatcher backed by an SMTP server.
func NewSMTPDispatcher(cfg SMTPConfig) *SMTPDispatcher {
	return &SMTPDispatcher{
		cfg: cfg,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendBudgetAlert implements Dispatcher.
func (d *SMTPDispatcher) SendBudgetAlert(ctx context.Context, a BudgetAlert) error {
	return d.deliver(ctx, a.To, BudgetAlertSubject(a), RenderBudgetAlert(a))
}

// SendMonthlyReport implements Dispatcher.
func (d *SMTPDispatcher) SendMonthlyReport(ctx context.Context, r MonthlyReport) error {
	return d.deliver(ctx, r.To, MonthlyReportSubject(r), RenderMonthlyReport(r))
}

func (d *SMTPDispatcher) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("notify: empty recipient for %q", subject)
	}

	e := email.NewEmail()
	e.From = d.cfg.Sender
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	addr := fmt.Sprintf("%s:%s", d.cfg.Host, d.cfg.Port)
	var auth smtp.Auth
	if d.cfg.Username != "" {
		auth = smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
	}
	if err := d.send(e, addr, auth); err != nil {
		logger.Get().Errorw("Failed to send email", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	logger.Get().Infow("Email sent", "to", to, "subject", subject)
	return nil
}

// LogDispatcher writes notifications to the log instead of sending them.
// Used when SMTP is not configured.
type LogDispatcher struct{}

// SendBudgetAlert implements Dispatcher.
func (LogDispatcher) SendBudgetAlert(_ context.Context, a BudgetAlert) error {
	logger.Get().Infow("Budget alert (mail disabled)",
		"to", a.To,
		"account", a.AccountName,
		"percentage_used", a.PercentageUsed.StringFixed(1),
	)
	return nil
}

// SendMonthlyReport implements Dispatcher.
func (LogDispatcher) SendMonthlyReport(_ context.Context, r MonthlyReport) error {
	logger.Get().Infow("Monthly report (mail disabled)",
		"to", r.To,
		"month", r.Month,
		"transactions", r.Stats.TransactionCount,
	)
	return nil
}
