package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"postbox/internal/delivery"
	"postbox/internal/logging"
	"postbox/internal/model"
	"postbox/internal/store"
)

type stubScheduler struct {
	mu        sync.Mutex
	scheduled []string
}

func (s *stubScheduler) Schedule(trackingNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, trackingNumber)
	return true
}

func (s *stubScheduler) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scheduled...)
}

func newTestRouter(t *testing.T, st store.Store, sched Scheduler) http.Handler {
	t.Helper()
	log := logging.NewWithWriter("postbox-test", &bytes.Buffer{})
	return NewRouter(st, sched, log, prometheus.NewRegistry(), []string{"*"})
}

func seedMailbox(t *testing.T, st store.Store, targetURL string) model.Mailbox {
	t.Helper()
	mb := model.Mailbox{ID: "mb-1", Name: "orders", APIKey: "secret-key", TargetURL: targetURL}
	if err := st.CreateMailbox(context.Background(), &mb); err != nil {
		t.Fatalf("seed mailbox: %v", err)
	}
	return mb
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateMailbox(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "valid",
			body:     `{"name":"orders","target_url":"https://example.com/hook"}`,
			wantCode: http.StatusCreated,
		},
		{
			name:     "missing name",
			body:     `{"target_url":"https://example.com/hook"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "relative url",
			body:     `{"name":"orders","target_url":"/hook"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad json",
			body:     `{`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			h := newTestRouter(t, st, &stubScheduler{})

			rr := doJSON(t, h, http.MethodPost, "/api/mailboxes", tt.body, nil)
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}
			if tt.wantCode != http.StatusCreated {
				return
			}

			var mb model.Mailbox
			if err := json.Unmarshal(rr.Body.Bytes(), &mb); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if mb.ID == "" || mb.APIKey == "" {
				t.Errorf("response missing generated id/api_key: %+v", mb)
			}
		})
	}
}

func TestIngest_Authorization(t *testing.T) {
	tests := []struct {
		name      string
		mailboxID string
		apiKey    string
		wantCode  int
	}{
		{name: "valid key", mailboxID: "mb-1", apiKey: "secret-key", wantCode: http.StatusAccepted},
		{name: "wrong key", mailboxID: "mb-1", apiKey: "wrong", wantCode: http.StatusUnauthorized},
		{name: "missing key", mailboxID: "mb-1", apiKey: "", wantCode: http.StatusUnauthorized},
		{name: "unknown mailbox", mailboxID: "ghost", apiKey: "secret-key", wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			seedMailbox(t, st, "https://example.com/hook")
			sched := &stubScheduler{}
			h := newTestRouter(t, st, sched)

			headers := map[string]string{}
			if tt.apiKey != "" {
				headers[APIKeyHeader] = tt.apiKey
			}
			rr := doJSON(t, h, http.MethodPost, "/webhooks/"+tt.mailboxID, `{"x":1}`, headers)
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}

			summaries, _ := st.ListEventSummaries(context.Background())
			if tt.wantCode == http.StatusAccepted {
				var resp map[string]string
				if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil || resp["tracking_number"] == "" {
					t.Fatalf("response missing tracking_number: %s", rr.Body.String())
				}
				if len(summaries) != 1 {
					t.Errorf("event count = %d, want 1", len(summaries))
				}
				if calls := sched.calls(); len(calls) != 1 || calls[0] != resp["tracking_number"] {
					t.Errorf("scheduler calls = %v, want [%s]", calls, resp["tracking_number"])
				}
			} else {
				if len(summaries) != 0 {
					t.Errorf("unauthorized ingestion created %d events", len(summaries))
				}
				if len(sched.calls()) != 0 {
					t.Error("unauthorized ingestion scheduled a delivery")
				}
			}
		})
	}
}

func TestIngest_RejectsInvalidJSON(t *testing.T) {
	st := store.NewMemory()
	seedMailbox(t, st, "https://example.com/hook")
	h := newTestRouter(t, st, &stubScheduler{})

	rr := doJSON(t, h, http.MethodPost, "/webhooks/mb-1", `not json`,
		map[string]string{APIKeyHeader: "secret-key"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rr.Code)
	}
}

func TestListWebhooks_ZeroAttempts(t *testing.T) {
	st := store.NewMemory()
	seedMailbox(t, st, "https://example.com/hook")
	ev := model.WebhookEvent{TrackingNumber: "tn-1", MailboxID: "mb-1", Payload: []byte(`{}`), Status: model.StatusPending}
	if err := st.CreateEvent(context.Background(), &ev); err != nil {
		t.Fatal(err)
	}
	h := newTestRouter(t, st, &stubScheduler{})

	rr := doJSON(t, h, http.MethodGet, "/api/webhooks", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	var out []model.EventSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Attempts != 0 {
		t.Errorf("summaries = %+v, want one row with attempts=0", out)
	}
	if out[0].MailboxName != "orders" || out[0].TargetURL != "https://example.com/hook" {
		t.Errorf("summary mailbox fields = %+v", out[0])
	}
}

func TestGetWebhook_NotFound(t *testing.T) {
	st := store.NewMemory()
	h := newTestRouter(t, st, &stubScheduler{})

	rr := doJSON(t, h, http.MethodGet, "/api/webhooks/ghost", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rr.Code)
	}
}

func TestRetryWebhook_StateMachine(t *testing.T) {
	tests := []struct {
		name       string
		status     model.EventStatus
		wantCode   int
		wantStatus model.EventStatus
		wantSched  int
	}{
		{name: "failed is retriable", status: model.StatusFailed, wantCode: http.StatusOK, wantStatus: model.StatusPending, wantSched: 1},
		{name: "pending rejected", status: model.StatusPending, wantCode: http.StatusConflict, wantStatus: model.StatusPending, wantSched: 0},
		{name: "delivered rejected", status: model.StatusDelivered, wantCode: http.StatusConflict, wantStatus: model.StatusDelivered, wantSched: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewMemory()
			seedMailbox(t, st, "https://example.com/hook")
			ev := model.WebhookEvent{TrackingNumber: "tn-1", MailboxID: "mb-1", Payload: []byte(`{}`), Status: tt.status}
			if err := st.CreateEvent(context.Background(), &ev); err != nil {
				t.Fatal(err)
			}
			sched := &stubScheduler{}
			h := newTestRouter(t, st, sched)

			rr := doJSON(t, h, http.MethodPost, "/api/webhooks/tn-1/retry", "", nil)
			if rr.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (body %s)", rr.Code, tt.wantCode, rr.Body.String())
			}

			got, _ := st.GetEvent(context.Background(), "tn-1")
			if got.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", got.Status, tt.wantStatus)
			}
			if len(sched.calls()) != tt.wantSched {
				t.Errorf("scheduler calls = %d, want %d", len(sched.calls()), tt.wantSched)
			}
		})
	}
}

func TestRetryWebhook_UnknownTrackingNumber(t *testing.T) {
	st := store.NewMemory()
	h := newTestRouter(t, st, &stubScheduler{})

	rr := doJSON(t, h, http.MethodPost, "/api/webhooks/ghost/retry", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rr.Code)
	}
}

// End-to-end: register, ingest against an always-200 target, then confirm
// the detail query shows one successful attempt and a delivered event.
func TestEndToEnd_DeliveredFirstAttempt(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	st := store.NewMemory()
	engine := delivery.NewEngine(st, delivery.WithSleep(func(time.Duration) {}),
		delivery.WithLogger(logging.NewWithWriter("test", &bytes.Buffer{})))
	dispatcher := delivery.NewDispatcher(engine)
	h := newTestRouter(t, st, dispatcher)

	rr := doJSON(t, h, http.MethodPost, "/api/mailboxes",
		`{"name":"orders","target_url":"`+target.URL+`"}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create mailbox: %d", rr.Code)
	}
	var mb model.Mailbox
	if err := json.Unmarshal(rr.Body.Bytes(), &mb); err != nil {
		t.Fatal(err)
	}

	rr = doJSON(t, h, http.MethodPost, "/webhooks/"+mb.ID, `{"x":1}`,
		map[string]string{APIKeyHeader: mb.APIKey})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: %d (%s)", rr.Code, rr.Body.String())
	}
	var accepted map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	tn := accepted["tracking_number"]

	dispatcher.WaitIdle()

	rr = doJSON(t, h, http.MethodGet, "/api/webhooks/"+tn, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail: %d", rr.Code)
	}
	var detail webhookDetailResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Event.Status != model.StatusDelivered {
		t.Errorf("event status = %q, want delivered", detail.Event.Status)
	}
	if len(detail.Attempts) != 1 || detail.Attempts[0].Status != model.AttemptSuccess {
		t.Errorf("attempts = %+v, want one success", detail.Attempts)
	}
}

// End-to-end: an always-500 target exhausts the retry budget, the event
// fails, and a retry produces a second cycle numbered from 1 again.
func TestEndToEnd_FailedThenRetried(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer target.Close()

	st := store.NewMemory()
	engine := delivery.NewEngine(st, delivery.WithSleep(func(time.Duration) {}),
		delivery.WithLogger(logging.NewWithWriter("test", &bytes.Buffer{})))
	dispatcher := delivery.NewDispatcher(engine)
	h := newTestRouter(t, st, dispatcher)

	mb := seedMailbox(t, st, target.URL)
	rr := doJSON(t, h, http.MethodPost, "/webhooks/"+mb.ID, `{"x":1}`,
		map[string]string{APIKeyHeader: mb.APIKey})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: %d", rr.Code)
	}
	var accepted map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &accepted); err != nil {
		t.Fatal(err)
	}
	tn := accepted["tracking_number"]

	dispatcher.WaitIdle()

	ev, _ := st.GetEvent(context.Background(), tn)
	if ev.Status != model.StatusFailed {
		t.Fatalf("event status = %q, want failed", ev.Status)
	}
	attempts, _ := st.ListAttempts(context.Background(), tn)
	if len(attempts) != 3 {
		t.Fatalf("attempt count = %d, want 3", len(attempts))
	}

	rr = doJSON(t, h, http.MethodPost, "/api/webhooks/"+tn+"/retry", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("retry: %d (%s)", rr.Code, rr.Body.String())
	}
	dispatcher.WaitIdle()

	attempts, _ = st.ListAttempts(context.Background(), tn)
	if len(attempts) != 6 {
		t.Fatalf("attempt count after retry = %d, want 6", len(attempts))
	}
	// Second cycle restarts numbering at 1; cycles are distinguished by
	// timestamps only.
	if attempts[3].AttemptNumber != 1 {
		t.Errorf("first attempt of second cycle numbered %d, want 1", attempts[3].AttemptNumber)
	}
}
