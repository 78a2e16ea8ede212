package webhook

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPClient_Timeout(t *testing.T) {
	client := NewHTTPClient(7 * time.Second)
	if client.Timeout != 7*time.Second {
		t.Errorf("timeout = %v, want 7s", client.Timeout)
	}

	client = NewHTTPClient(0)
	if client.Timeout != DefaultAttemptTimeout {
		t.Errorf("zero timeout should fall back to %v, got %v", DefaultAttemptTimeout, client.Timeout)
	}
}

func TestHTTPClient_DoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(5 * time.Second)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("client should surface the redirect, got status %d", resp.StatusCode)
	}
}

func TestSetWebhookHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "https://example.com/hooks", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}

	SetWebhookHeaders(req, HTTPHeaders{
		Signature:  "abc123",
		Event:      "audit.completed",
		DeliveryID: "delivery-1",
	})

	want := map[string]string{
		"Content-Type":  "application/json",
		HeaderSignature: "abc123",
		HeaderEvent:     "audit.completed",
		HeaderDelivery:  "delivery-1",
		"User-Agent":    "Sitegauge-Webhook/1.0",
	}
	for header, value := range want {
		if got := req.Header.Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}
