package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/vendwell/webhookd/internal/signature"
)

const (
	sigHeader = "X-Webhook-Signature"
	tsHeader  = "X-Webhook-Timestamp"
)

var (
	failFirstN     = 0
	reqCount       = 0
	endpointSecret = ""
	maxSkew        = 5 * time.Minute
)

func main() {
	// Parse fail first settings
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	// Parse endpoint secret
	if v := os.Getenv("ENDPOINT_SECRET"); v != "" {
		endpointSecret = v
	}
	// Parse timestamp leeway
	if v := os.Getenv("TIMESTAMP_LEEWAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxSkew = time.Duration(n) * time.Second
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	addr := ":8081"
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if endpointSecret != "" {
		if ok, msg := verifyRequest(r, b); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) %s event=%s body=%s", reqCount, failFirstN, r.URL.Path, r.Header.Get("X-Webhook-Event"), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s  event=%s body=%q", r.URL.Path, r.Header.Get("X-Webhook-Event"), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// verifyRequest checks the signature over the body and rejects stale
// timestamps. The signature covers the body only; the timestamp header is
// a separate freshness check.
func verifyRequest(r *http.Request, body []byte) (bool, string) {
	ts := r.Header.Get(tsHeader)
	sig := r.Header.Get(sigHeader)
	if ts == "" || sig == "" {
		return false, "missing headers"
	}
	sentAt, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return false, "invalid timestamp"
	}
	if d := time.Since(sentAt); d > maxSkew || d < -maxSkew {
		return false, "timestamp too far from now (outside leeway)"
	}
	if !signature.Verify(body, sig, endpointSecret) {
		return false, "sig mismatch"
	}
	return true, ""
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
