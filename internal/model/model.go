package model

import (
	"encoding/json"
	"time"
)

// EventStatus is the lifecycle state of a webhook event.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusDelivered EventStatus = "delivered"
	StatusFailed    EventStatus = "failed"
)

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// Mailbox is a registered webhook destination. The api_key is issued at
// creation and never rotated; the id is referenced by events.
type Mailbox struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"api_key"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookEvent is one inbound payload accepted for delivery. The payload is
// opaque to the relay and forwarded verbatim.
type WebhookEvent struct {
	TrackingNumber string          `json:"tracking_number"`
	MailboxID      string          `json:"mailbox_id"`
	Payload        json.RawMessage `json:"payload"`
	Status         EventStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// WebhookAttempt is one logged delivery try. Records are append-only;
// attempt numbers restart at 1 on each retry cycle.
type WebhookAttempt struct {
	ID             int64         `json:"id"`
	TrackingNumber string        `json:"tracking_number"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	AttemptedAt    time.Time     `json:"attempted_at"`
}

// EventSummary is the dashboard list row: one event joined with its mailbox
// and the total attempt count across all cycles.
type EventSummary struct {
	TrackingNumber string      `json:"tracking_number"`
	Status         EventStatus `json:"status"`
	MailboxName    string      `json:"mailbox_name"`
	TargetURL      string      `json:"target_url"`
	Attempts       int         `json:"attempts"`
}
