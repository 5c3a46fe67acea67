package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogger_StructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("postbox-test", &buf)

	log.Plain().
		WithMailbox("mb-1").
		WithTracking("tn-1").
		WithAttempt(2).
		WithField("delay", "4s").
		WithError(errors.New("boom")).
		Warn("delivery attempt failed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}

	checks := map[string]any{
		"level":           "warn",
		"msg":             "delivery attempt failed",
		"service":         "postbox-test",
		"mailbox_id":      "mb-1",
		"tracking_number": "tn-1",
		"attempt":         float64(2),
	}
	for k, want := range checks {
		if got := entry[k]; got != want {
			t.Errorf("entry[%q] = %v, want %v", k, got, want)
		}
	}

	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatalf("fields missing: %v", entry)
	}
	if fields["error"] != "boom" || fields["delay"] != "4s" {
		t.Errorf("fields = %v", fields)
	}
}

func TestLogger_OmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("postbox-test", &buf)

	log.Plain().Info("started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v", err)
	}
	for _, k := range []string{"fields", "mailbox_id", "tracking_number", "attempt", "trace_id"} {
		if _, present := entry[k]; present {
			t.Errorf("empty field %q serialized: %v", k, entry)
		}
	}
}
