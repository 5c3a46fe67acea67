package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"postbox/internal/model"
)

// Memory is an in-memory store used when STORE=memory and in unit tests.
type Memory struct {
	mu        sync.Mutex
	mailboxes map[string]model.Mailbox
	events    map[string]model.WebhookEvent
	attempts  map[string][]model.WebhookAttempt // tracking number -> attempts, insertion order
	nextID    int64
}

func NewMemory() *Memory {
	return &Memory{
		mailboxes: map[string]model.Mailbox{},
		events:    map[string]model.WebhookEvent{},
		attempts:  map[string][]model.WebhookAttempt{},
	}
}

func (m *Memory) CreateMailbox(ctx context.Context, mb *model.Mailbox) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mailboxes[mb.ID]; ok {
		return fmt.Errorf("mailbox %s already exists", mb.ID)
	}
	if mb.CreatedAt.IsZero() {
		mb.CreatedAt = time.Now().UTC()
	}
	m.mailboxes[mb.ID] = *mb
	return nil
}

func (m *Memory) GetMailbox(ctx context.Context, id string) (model.Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.mailboxes[id]
	if !ok {
		return model.Mailbox{}, ErrNotFound
	}
	return mb, nil
}

func (m *Memory) ListMailboxes(ctx context.Context) ([]model.Mailbox, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Mailbox, 0, len(m.mailboxes))
	for _, mb := range m.mailboxes {
		out = append(out, mb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateEvent(ctx context.Context, e *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.TrackingNumber]; ok {
		return fmt.Errorf("event %s already exists", e.TrackingNumber)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events[e.TrackingNumber] = *e
	return nil
}

func (m *Memory) GetEvent(ctx context.Context, trackingNumber string) (model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[trackingNumber]
	if !ok {
		return model.WebhookEvent{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) SetEventStatus(ctx context.Context, trackingNumber string, status model.EventStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[trackingNumber]
	if !ok {
		return ErrNotFound
	}
	e.Status = status
	m.events[trackingNumber] = e
	return nil
}

func (m *Memory) AppendAttempt(ctx context.Context, a *model.WebhookAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now().UTC()
	}
	m.attempts[a.TrackingNumber] = append(m.attempts[a.TrackingNumber], *a)
	return nil
}

func (m *Memory) ListAttempts(ctx context.Context, trackingNumber string) ([]model.WebhookAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.attempts[trackingNumber]
	out := make([]model.WebhookAttempt, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) ListEventSummaries(ctx context.Context) ([]model.EventSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type keyed struct {
		s  model.EventSummary
		at time.Time
	}
	rows := make([]keyed, 0, len(m.events))
	for _, e := range m.events {
		mb := m.mailboxes[e.MailboxID]
		rows = append(rows, keyed{
			s: model.EventSummary{
				TrackingNumber: e.TrackingNumber,
				Status:         e.Status,
				MailboxName:    mb.Name,
				TargetURL:      mb.TargetURL,
				Attempts:       len(m.attempts[e.TrackingNumber]),
			},
			at: e.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].at.Before(rows[j].at) })
	out := make([]model.EventSummary, len(rows))
	for i, r := range rows {
		out[i] = r.s
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() {}
