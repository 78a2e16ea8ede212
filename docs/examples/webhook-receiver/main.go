// Sitegauge Webhook Receiver Example
//
// This is a minimal example of how to receive and verify Sitegauge webhooks.
//
// Usage:
//   export SITEGAUGE_WEBHOOK_SECRET="whs_your_secret_here"
//   go run main.go
//
// Then point your Sitegauge webhook subscription at https://your-server:9000/webhook
// (subscriptions require HTTPS on port 443; use a TLS-terminating proxy in front
// of this example when testing against a real deployment).

package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"time"
)

// AuditEvent represents the webhook payload for audit events
type AuditEvent struct {
	Event     string    `json:"event"`
	Data      AuditData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditData carries the audit outcome. Results is present on
// audit.completed, Error on audit.failed.
type AuditData struct {
	AuditID string          `json:"audit_id"`
	UserID  string          `json:"user_id"`
	URL     string          `json:"url"`
	Results json.RawMessage `json:"results,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func main() {
	secret := os.Getenv("SITEGAUGE_WEBHOOK_SECRET")
	if secret == "" {
		log.Fatal("SITEGAUGE_WEBHOOK_SECRET environment variable is required")
	}

	http.HandleFunc("/webhook", webhookHandler(secret))
	http.HandleFunc("/health", healthHandler)

	log.Println("Starting webhook receiver on :9000")
	log.Println("Endpoint: http://localhost:9000/webhook")
	log.Fatal(http.ListenAndServe(":9000", nil))
}

func webhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Read the raw body; the signature covers these exact bytes
		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Printf("Error reading body: %v", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		signature := r.Header.Get("X-Sitegauge-Signature")
		if signature == "" {
			log.Println("Missing X-Sitegauge-Signature header")
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}

		// Verify before decoding anything
		if !verifySignature(signature, body, secret) {
			log.Println("Invalid signature")
			http.Error(w, "Invalid signature", http.StatusUnauthorized)
			return
		}

		var event AuditEvent
		if err := json.Unmarshal(body, &event); err != nil {
			log.Printf("Error parsing JSON: %v", err)
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		// Replay guard: the signature has no timestamp of its own, so
		// reject payloads stamped too far from now (±5 min)
		if math.Abs(time.Since(event.Timestamp).Seconds()) > 300 {
			log.Println("Payload timestamp too old or in future")
			http.Error(w, "Stale payload", http.StatusBadRequest)
			return
		}

		// Process the event
		log.Printf("✓ Received %s event (delivery %s)", event.Event, r.Header.Get("X-Sitegauge-Delivery"))
		log.Printf("  Audit ID: %s", event.Data.AuditID)
		log.Printf("  URL:      %s", event.Data.URL)
		log.Printf("  Time:     %s", event.Timestamp.Format(time.RFC3339))
		if event.Data.Error != "" {
			log.Printf("  Error:    %s", event.Data.Error)
		}

		// Respond 2xx quickly: anything else counts as a failed
		// delivery and triggers a retry
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	}
}

// verifySignature verifies the HMAC-SHA256 signature from Sitegauge
//
// Header value: hex-encoded HMAC-SHA256 of the raw request body, keyed
// with the subscription secret (including the whs_ prefix).
func verifySignature(signature string, body []byte, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expected))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
