package store

import (
	"context"
	"errors"

	"postbox/internal/model"
)

// ErrNotFound is returned when a mailbox or event does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface shared by the API server and the
// delivery engine. Every write commits independently; no method spans a
// cross-entity transaction.
type Store interface {
	// Mailboxes
	CreateMailbox(ctx context.Context, m *model.Mailbox) error
	GetMailbox(ctx context.Context, id string) (model.Mailbox, error)
	ListMailboxes(ctx context.Context) ([]model.Mailbox, error)

	// Events
	CreateEvent(ctx context.Context, e *model.WebhookEvent) error
	GetEvent(ctx context.Context, trackingNumber string) (model.WebhookEvent, error)
	SetEventStatus(ctx context.Context, trackingNumber string, status model.EventStatus) error

	// Attempts (append-only)
	AppendAttempt(ctx context.Context, a *model.WebhookAttempt) error
	ListAttempts(ctx context.Context, trackingNumber string) ([]model.WebhookAttempt, error)

	// Dashboard aggregate
	ListEventSummaries(ctx context.Context) ([]model.EventSummary, error)

	Ping(ctx context.Context) error
	Close()
}
