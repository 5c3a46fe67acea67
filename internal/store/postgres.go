package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postbox/internal/model"
)

// Postgres implements Store on a pgx connection pool. All statements are
// built with squirrel using dollar placeholders.
type Postgres struct {
	pool *pgxpool.Pool
	sb   sq.StatementBuilderType
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (p *Postgres) CreateMailbox(ctx context.Context, m *model.Mailbox) error {
	query := p.sb.
		Insert("mailboxes").
		Columns("id", "name", "api_key", "target_url").
		Values(m.ID, m.Name, m.APIKey, m.TargetURL).
		Suffix("RETURNING created_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build create mailbox sql: %w", err)
	}
	if err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&m.CreatedAt); err != nil {
		return fmt.Errorf("create mailbox: %w", err)
	}
	return nil
}

func (p *Postgres) GetMailbox(ctx context.Context, id string) (model.Mailbox, error) {
	query := p.sb.
		Select("id", "name", "api_key", "target_url", "created_at").
		From("mailboxes").
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.Mailbox{}, fmt.Errorf("build get mailbox sql: %w", err)
	}
	var m model.Mailbox
	err = p.pool.QueryRow(ctx, sqlStr, args...).
		Scan(&m.ID, &m.Name, &m.APIKey, &m.TargetURL, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Mailbox{}, ErrNotFound
	}
	if err != nil {
		return model.Mailbox{}, fmt.Errorf("get mailbox: %w", err)
	}
	return m, nil
}

func (p *Postgres) ListMailboxes(ctx context.Context) ([]model.Mailbox, error) {
	query := p.sb.
		Select("id", "name", "api_key", "target_url", "created_at").
		From("mailboxes").
		OrderBy("created_at ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list mailboxes sql: %w", err)
	}
	rows, err := p.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes: %w", err)
	}
	defer rows.Close()

	out := []model.Mailbox{}
	for rows.Next() {
		var m model.Mailbox
		if err := rows.Scan(&m.ID, &m.Name, &m.APIKey, &m.TargetURL, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mailbox: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateEvent(ctx context.Context, e *model.WebhookEvent) error {
	query := p.sb.
		Insert("webhook_events").
		Columns("tracking_number", "mailbox_id", "payload", "status").
		Values(e.TrackingNumber, e.MailboxID, string(e.Payload), e.Status).
		Suffix("RETURNING created_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build create event sql: %w", err)
	}
	if err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (p *Postgres) GetEvent(ctx context.Context, trackingNumber string) (model.WebhookEvent, error) {
	query := p.sb.
		Select("tracking_number", "mailbox_id", "payload::text", "status", "created_at").
		From("webhook_events").
		Where(sq.Eq{"tracking_number": trackingNumber})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return model.WebhookEvent{}, fmt.Errorf("build get event sql: %w", err)
	}
	var (
		e       model.WebhookEvent
		payload string
	)
	err = p.pool.QueryRow(ctx, sqlStr, args...).
		Scan(&e.TrackingNumber, &e.MailboxID, &payload, &e.Status, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WebhookEvent{}, ErrNotFound
	}
	if err != nil {
		return model.WebhookEvent{}, fmt.Errorf("get event: %w", err)
	}
	e.Payload = []byte(payload)
	return e, nil
}

func (p *Postgres) SetEventStatus(ctx context.Context, trackingNumber string, status model.EventStatus) error {
	query := p.sb.
		Update("webhook_events").
		Set("status", status).
		Where(sq.Eq{"tracking_number": trackingNumber})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build set event status sql: %w", err)
	}
	ct, err := p.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("set event status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendAttempt(ctx context.Context, a *model.WebhookAttempt) error {
	errText := sql.NullString{String: a.Error, Valid: a.Error != ""}
	query := p.sb.
		Insert("webhook_attempts").
		Columns("tracking_number", "attempt_number", "status", "error").
		Values(a.TrackingNumber, a.AttemptNumber, a.Status, errText).
		Suffix("RETURNING id, attempted_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build append attempt sql: %w", err)
	}
	if err := p.pool.QueryRow(ctx, sqlStr, args...).Scan(&a.ID, &a.AttemptedAt); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (p *Postgres) ListAttempts(ctx context.Context, trackingNumber string) ([]model.WebhookAttempt, error) {
	query := p.sb.
		Select("id", "tracking_number", "attempt_number", "status", "error", "attempted_at").
		From("webhook_attempts").
		Where(sq.Eq{"tracking_number": trackingNumber}).
		OrderBy("attempted_at ASC", "id ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list attempts sql: %w", err)
	}
	rows, err := p.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := []model.WebhookAttempt{}
	for rows.Next() {
		var (
			a       model.WebhookAttempt
			errText sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TrackingNumber, &a.AttemptNumber, &a.Status, &errText, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Error = errText.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) ListEventSummaries(ctx context.Context) ([]model.EventSummary, error) {
	query := p.sb.
		Select(
			"e.tracking_number",
			"e.status",
			"m.name AS mailbox_name",
			"m.target_url",
			"COUNT(a.id) AS attempts",
		).
		From("webhook_events e").
		Join("mailboxes m ON m.id = e.mailbox_id").
		LeftJoin("webhook_attempts a ON a.tracking_number = e.tracking_number").
		GroupBy("e.tracking_number", "e.status", "e.created_at", "m.name", "m.target_url").
		OrderBy("e.created_at ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list summaries sql: %w", err)
	}
	rows, err := p.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	out := []model.EventSummary{}
	for rows.Next() {
		var s model.EventSummary
		if err := rows.Scan(&s.TrackingNumber, &s.Status, &s.MailboxName, &s.TargetURL, &s.Attempts); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() { p.pool.Close() }
