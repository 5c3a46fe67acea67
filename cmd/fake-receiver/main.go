package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

var (
	failFirstN  = 0
	fixedStatus = 0
	delay       time.Duration
	reqCount    = 0
)

// fake-receiver is a stand-in delivery target for manual end-to-end runs.
// It fails the first N requests with 500, or always answers FIXED_STATUS
// when set, so retry and exhaustion paths can be exercised by hand.
func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	if v := os.Getenv("FIXED_STATUS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fixedStatus = n
		}
	}
	if v := os.Getenv("RESPONSE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			delay = time.Duration(n) * time.Millisecond
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	addr := ":8081"
	if v := os.Getenv("FAKE_RECEIVER_PORT"); v != "" {
		addr = v
	}
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if delay > 0 {
		time.Sleep(delay)
	}

	if fixedStatus != 0 {
		log.Printf("fake-receiver responding %d body=%s", fixedStatus, truncate(string(b), 160))
		w.WriteHeader(fixedStatus)
		return
	}

	// Simulate flakiness: first N requests -> 500
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) body=%s", reqCount, failFirstN, truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK body=%q", truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
