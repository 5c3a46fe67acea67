package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"postbox/internal/logging"
	"postbox/internal/metrics"
	"postbox/internal/model"
	"postbox/internal/store"
	"postbox/internal/tracing"
)

// APIKeyHeader carries the mailbox credential on ingestion requests.
const APIKeyHeader = "X-API-Key"

const maxPayloadBytes = 1 << 20 // 1 MiB

// Scheduler kicks off an asynchronous delivery run for a tracking number.
type Scheduler interface {
	Schedule(trackingNumber string) bool
}

// Handlers wires the HTTP surface to the store and the delivery dispatcher.
type Handlers struct {
	store     store.Store
	scheduler Scheduler
	log       *logging.Logger
}

func NewHandlers(s store.Store, sched Scheduler, log *logging.Logger) *Handlers {
	return &Handlers{store: s, scheduler: sched, log: log}
}

type mailboxCreateRequest struct {
	Name      string `json:"name"`
	TargetURL string `json:"target_url"`
}

// CreateMailbox registers a destination and issues its API key.
func (h *Handlers) CreateMailbox(w http.ResponseWriter, r *http.Request) {
	var req mailboxCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if u, err := url.ParseRequestURI(req.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		writeError(w, http.StatusBadRequest, "target_url must be an absolute URL")
		return
	}

	m := model.Mailbox{
		ID:        uuid.New().String(),
		Name:      req.Name,
		APIKey:    uuid.New().String(),
		TargetURL: req.TargetURL,
	}
	if err := h.store.CreateMailbox(r.Context(), &m); err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("create mailbox failed")
		writeError(w, http.StatusInternalServerError, "create mailbox failed")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMailboxes returns every registered mailbox.
func (h *Handlers) ListMailboxes(w http.ResponseWriter, r *http.Request) {
	mailboxes, err := h.store.ListMailboxes(r.Context())
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("list mailboxes failed")
		writeError(w, http.StatusInternalServerError, "list mailboxes failed")
		return
	}
	writeJSON(w, http.StatusOK, mailboxes)
}

// Ingest accepts an inbound webhook payload for a mailbox, persists it as a
// pending event, and schedules delivery without waiting on the outcome.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	mailboxID := chi.URLParam(r, "mailboxID")
	ctx, span := tracing.StartSpan(r.Context(), "api.ingest",
		attribute.String("mailbox_id", mailboxID),
	)
	defer span.End()

	mailbox, err := h.store.GetMailbox(ctx, mailboxID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && mailbox.APIKey != r.Header.Get(APIKeyHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	if err != nil {
		tracing.SetSpanError(ctx, err)
		h.log.WithContext(ctx).WithMailbox(mailboxID).WithError(err).Error("mailbox lookup failed")
		writeError(w, http.StatusInternalServerError, "mailbox lookup failed")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if !json.Valid(payload) {
		writeError(w, http.StatusBadRequest, "payload must be valid json")
		return
	}

	event := model.WebhookEvent{
		TrackingNumber: uuid.New().String(),
		MailboxID:      mailbox.ID,
		Payload:        payload,
		Status:         model.StatusPending,
	}
	if err := h.store.CreateEvent(ctx, &event); err != nil {
		tracing.SetSpanError(ctx, err)
		h.log.WithContext(ctx).WithMailbox(mailboxID).WithError(err).Error("create event failed")
		writeError(w, http.StatusInternalServerError, "create event failed")
		return
	}

	span.SetAttributes(attribute.String("tracking_number", event.TrackingNumber))
	metrics.RecordIngested(mailbox.ID)
	h.scheduler.Schedule(event.TrackingNumber)
	h.log.WithContext(ctx).WithMailbox(mailbox.ID).WithTracking(event.TrackingNumber).Info("event ingested")

	writeJSON(w, http.StatusAccepted, map[string]string{"tracking_number": event.TrackingNumber})
}

// ListWebhooks returns the dashboard summary rows.
func (h *Handlers) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListEventSummaries(r.Context())
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("list webhooks failed")
		writeError(w, http.StatusInternalServerError, "list webhooks failed")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

type webhookDetailResponse struct {
	Event    model.WebhookEvent     `json:"event"`
	Attempts []model.WebhookAttempt `json:"attempts"`
}

// GetWebhook returns one event and its full attempt history, oldest first.
func (h *Handlers) GetWebhook(w http.ResponseWriter, r *http.Request) {
	trackingNumber := chi.URLParam(r, "trackingNumber")

	event, err := h.store.GetEvent(r.Context(), trackingNumber)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown tracking number")
		return
	}
	if err != nil {
		h.log.WithContext(r.Context()).WithTracking(trackingNumber).WithError(err).Error("get event failed")
		writeError(w, http.StatusInternalServerError, "get event failed")
		return
	}
	attempts, err := h.store.ListAttempts(r.Context(), trackingNumber)
	if err != nil {
		h.log.WithContext(r.Context()).WithTracking(trackingNumber).WithError(err).Error("list attempts failed")
		writeError(w, http.StatusInternalServerError, "list attempts failed")
		return
	}
	writeJSON(w, http.StatusOK, webhookDetailResponse{Event: event, Attempts: attempts})
}

// RetryWebhook re-arms a terminally failed event and schedules a fresh cycle.
// Pending or delivered events reject the request with no mutation.
func (h *Handlers) RetryWebhook(w http.ResponseWriter, r *http.Request) {
	trackingNumber := chi.URLParam(r, "trackingNumber")

	event, err := h.store.GetEvent(r.Context(), trackingNumber)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown tracking number")
		return
	}
	if err != nil {
		h.log.WithContext(r.Context()).WithTracking(trackingNumber).WithError(err).Error("get event failed")
		writeError(w, http.StatusInternalServerError, "get event failed")
		return
	}
	if event.Status != model.StatusFailed {
		writeError(w, http.StatusConflict, "only failed events can be retried")
		return
	}
	if err := h.store.SetEventStatus(r.Context(), trackingNumber, model.StatusPending); err != nil {
		h.log.WithContext(r.Context()).WithTracking(trackingNumber).WithError(err).Error("reset status failed")
		writeError(w, http.StatusInternalServerError, "reset status failed")
		return
	}
	h.scheduler.Schedule(trackingNumber)
	h.log.WithContext(r.Context()).WithTracking(trackingNumber).Info("retry started")
	writeJSON(w, http.StatusOK, map[string]string{"message": "retry started"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
