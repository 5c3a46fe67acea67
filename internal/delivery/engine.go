package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"postbox/internal/logging"
	"postbox/internal/metrics"
	"postbox/internal/model"
	"postbox/internal/store"
	"postbox/internal/tracing"
)

// Delivery policy. Fixed for every event; not configurable at call time.
const (
	maxAttempts    = 3
	requestTimeout = 5 * time.Second
)

// backoff returns the delay inserted after attempt n fails: 2^n seconds.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// Engine runs delivery cycles. A cycle issues up to maxAttempts HTTP POSTs of
// the event payload to the mailbox target URL, appending one attempt record
// per try and transitioning the event to its terminal status. Deliver never
// reports failure to the caller; the attempt log and event status carry all
// outcome information.
type Engine struct {
	store  store.Store
	client *http.Client
	log    *logging.Logger
	sleep  func(time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient overrides the outbound HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithSleep overrides the inter-attempt sleep; tests pass a no-op recorder.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithLogger overrides the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		client: &http.Client{Timeout: requestTimeout},
		log:    logging.New("postbox-delivery"),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deliver executes one delivery cycle for the event identified by
// trackingNumber. A missing event or mailbox aborts the run with no writes:
// that is a data-integrity violation, not a delivery failure.
func (e *Engine) Deliver(ctx context.Context, trackingNumber string) {
	ctx, span := tracing.StartSpan(ctx, "delivery.run",
		attribute.String("tracking_number", trackingNumber),
	)
	defer span.End()

	event, err := e.store.GetEvent(ctx, trackingNumber)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		e.log.WithContext(ctx).WithTracking(trackingNumber).WithError(err).
			Error("event missing, aborting delivery run")
		return
	}
	mailbox, err := e.store.GetMailbox(ctx, event.MailboxID)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		e.log.WithContext(ctx).WithTracking(trackingNumber).WithMailbox(event.MailboxID).WithError(err).
			Error("mailbox missing, aborting delivery run")
		return
	}
	span.SetAttributes(
		attribute.String("mailbox_id", mailbox.ID),
		attribute.String("target_url", mailbox.TargetURL),
	)

	start := time.Now()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tracing.AddSpanEvent(ctx, "http.post_payload", attribute.Int("attempt", attempt))
		status, postErr := e.post(ctx, mailbox.TargetURL, event.Payload)

		if postErr == nil && status >= 200 && status < 300 {
			e.record(ctx, &model.WebhookAttempt{
				TrackingNumber: trackingNumber,
				AttemptNumber:  attempt,
				Status:         model.AttemptSuccess,
			})
			metrics.RecordAttempt("success")
			e.finish(ctx, trackingNumber, model.StatusDelivered, start)
			e.log.WithContext(ctx).WithTracking(trackingNumber).WithAttempt(attempt).
				WithField("http_status", status).Info("webhook delivered")
			return
		}

		reason, detail := classifyFailure(postErr, status)
		e.record(ctx, &model.WebhookAttempt{
			TrackingNumber: trackingNumber,
			AttemptNumber:  attempt,
			Status:         model.AttemptFailed,
			Error:          detail,
		})
		metrics.RecordAttempt("failed")
		e.log.WithContext(ctx).WithTracking(trackingNumber).WithAttempt(attempt).
			WithField("reason", reason).WithField("detail", detail).Warn("delivery attempt failed")

		if attempt == maxAttempts {
			e.finish(ctx, trackingNumber, model.StatusFailed, start)
			return
		}

		// The attempt record is durable before this sleep begins.
		metrics.RecordRetry(reason)
		delay := backoff(attempt)
		tracing.AddSpanEvent(ctx, "delivery.backoff",
			attribute.Int("attempt", attempt),
			attribute.String("delay", delay.String()),
		)
		e.sleep(delay)
	}
}

// post issues one HTTP POST of the payload, bounded by requestTimeout.
func (e *Engine) post(ctx context.Context, targetURL string, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// record appends one attempt row. A storage failure here is logged and
// swallowed; the cycle keeps its course so the event still reaches a
// terminal status.
func (e *Engine) record(ctx context.Context, a *model.WebhookAttempt) {
	if err := e.store.AppendAttempt(ctx, a); err != nil {
		tracing.SetSpanError(ctx, err)
		e.log.WithContext(ctx).WithTracking(a.TrackingNumber).WithAttempt(a.AttemptNumber).
			WithError(err).Error("append attempt failed")
	}
}

func (e *Engine) finish(ctx context.Context, trackingNumber string, status model.EventStatus, start time.Time) {
	if err := e.store.SetEventStatus(ctx, trackingNumber, status); err != nil {
		tracing.SetSpanError(ctx, err)
		e.log.WithContext(ctx).WithTracking(trackingNumber).WithError(err).
			Error("set terminal status failed")
	}
	tracing.AddSpanEvent(ctx, "delivery.finished",
		attribute.String("delivery.final_status", string(status)))
	metrics.RecordDelivery(string(status), time.Since(start))
}

// classifyFailure maps a transport error or HTTP status to a metric reason
// and a human-readable description stored on the attempt record.
func classifyFailure(err error, status int) (reason, detail string) {
	if err != nil {
		errLower := strings.ToLower(err.Error())
		switch {
		case strings.Contains(errLower, "deadline exceeded"), strings.Contains(errLower, "timeout"):
			return "timeout", fmt.Sprintf("request timed out after %s: %v", requestTimeout, err)
		case strings.Contains(errLower, "connection refused"):
			return "connection_refused", err.Error()
		case strings.Contains(errLower, "no such host"):
			return "dns_error", err.Error()
		default:
			return "network", err.Error()
		}
	}
	detail = fmt.Sprintf("unexpected status %d", status)
	switch {
	case status >= 500:
		return "http_5xx", detail
	case status == http.StatusTooManyRequests:
		return "http_429", detail
	case status >= 400:
		return "http_4xx", detail
	}
	return "other", detail
}
