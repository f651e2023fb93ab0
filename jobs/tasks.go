package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeOpsAlert is the task type for operational integrity alerts.
	TaskTypeOpsAlert = "ops:alert"
	// TaskTypeIdempotencyCleanup prunes applied payment references past the
	// retention window. Cron-driven.
	TaskTypeIdempotencyCleanup = "cleanup:idempotency"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// OpsAlertPayload carries a paid-enrollment-without-seat incident to the
// operations mailbox.
type OpsAlertPayload struct {
	UserID           string `json:"user_id"`
	CourseID         string `json:"course_id"`
	SessionID        string `json:"session_id"`
	PaymentReference string `json:"payment_reference"`
	SeatsRequested   int    `json:"seats_requested"`
	SeatsRemaining   int    `json:"seats_remaining"`
}

// NewOpsAlertTask constructs an Asynq task.
func NewOpsAlertTask(payload OpsAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOpsAlert, data), nil
}

// NewIdempotencyCleanupTask constructs the cron task. The payload is empty;
// retention comes from worker config.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}
