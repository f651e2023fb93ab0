package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"

	jobmetrics "github.com/summitsafety/academy/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Mailer delivers queued emails over SMTP. In development this points at
// Mailpit; delivery failures are retried by asynq, not by us.
type Mailer struct {
	dialer        *gomail.Dialer
	from          string
	opsAlertEmail string
	logger        *slog.Logger
	metrics       *jobmetrics.Metrics
}

// MailerConfig collects SMTP settings for the worker.
type MailerConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	OpsAlertEmail string
	Logger        *slog.Logger
	Metrics       *jobmetrics.Metrics
}

// NewMailer constructs a Mailer instance.
func NewMailer(cfg MailerConfig) *Mailer {
	return &Mailer{
		dialer:        gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:          cfg.From,
		opsAlertEmail: cfg.OpsAlertEmail,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

func (m *Mailer) jobMetrics() *jobmetrics.Metrics {
	if m.metrics != nil {
		return m.metrics
	}
	return defaultJobMetrics
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	return m.dialer.DialAndSend(msg)
}

// HandleSendEmail processes TaskTypeSendEmail tasks.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.To == "" {
		return asynq.SkipRetry
	}
	tracker := m.jobMetrics().Track(TaskTypeSendEmail)
	if err := tracker.End(m.send(payload.To, payload.Subject, payload.Body)); err != nil {
		m.logger.Error("send email", slog.Any("error", err), slog.String("to", payload.To))
		return err
	}
	m.logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

// HandleOpsAlert processes TaskTypeOpsAlert tasks: a paid enrollment holds no
// seat and someone has to fix it by hand.
func (m *Mailer) HandleOpsAlert(ctx context.Context, t *asynq.Task) error {
	var payload OpsAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	var sb strings.Builder
	sb.WriteString("A paid enrollment could not reserve a seat and needs manual remediation.\n\n")
	fmt.Fprintf(&sb, "User:              %s\n", payload.UserID)
	fmt.Fprintf(&sb, "Course:            %s\n", payload.CourseID)
	fmt.Fprintf(&sb, "Session:           %s\n", payload.SessionID)
	fmt.Fprintf(&sb, "Payment reference: %s\n", payload.PaymentReference)
	fmt.Fprintf(&sb, "Seats requested:   %d (remaining: %d)\n", payload.SeatsRequested, payload.SeatsRemaining)

	subject := fmt.Sprintf("[academy] paid enrollment without seat: %s", payload.PaymentReference)
	tracker := m.jobMetrics().Track(TaskTypeOpsAlert)
	if err := tracker.End(m.send(m.opsAlertEmail, subject, sb.String())); err != nil {
		m.logger.Error("send ops alert", slog.Any("error", err), slog.String("payment_reference", payload.PaymentReference))
		return err
	}
	return nil
}
