package notify

import "time"

// Task type constants
const (
	TaskAdvanceApproved  = "advance:approved"
	TaskAdvanceRejected  = "advance:rejected"
	TaskAdvanceDisbursed = "advance:disbursed"
)

const (
	QueueNotifications = "notifications"
	QueueCritical      = "critical"
)

// EmailEnvelope is the rendered e-mail for a task.
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AdvancePayload is carried by every advance:* task.
type AdvancePayload struct {
	RequestID string        `json:"request_id"`
	WorkerID  string        `json:"worker_id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Status    string        `json:"status"`
	Amount    string        `json:"amount"`
	NetPayout string        `json:"net_payout"`
	Currency  string        `json:"currency"`
	Reason    string        `json:"reason,omitempty"`
	Reference string        `json:"reference,omitempty"`
	Title     string        `json:"title"`
	Envelope  EmailEnvelope `json:"envelope"`
	SentAt    time.Time     `json:"sent_at"`
}

// Notification is one in-app inbox item.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Reference string     `json:"reference"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at"`
}
