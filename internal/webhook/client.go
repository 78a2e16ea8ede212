package webhook

import (
	"net"
	"net/http"
	"time"
)

const (
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 10 * time.Second
)

// NewHTTPClient creates an HTTP client configured for webhook delivery.
// The per-attempt deadline comes from the request context; the client
// timeout is a backstop. Redirects are not followed.
func NewHTTPClient(attemptTimeout time.Duration) *http.Client {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &http.Client{
		Timeout: attemptTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    false,
		},
		// Don't follow redirects - security measure
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// HeaderNames for webhook requests.
const (
	HeaderSignature = "X-Sitegauge-Signature"
	HeaderEvent     = "X-Sitegauge-Event"
	HeaderDelivery  = "X-Sitegauge-Delivery"
)

// HTTPHeaders contains the standard webhook headers.
type HTTPHeaders struct {
	Signature  string // X-Sitegauge-Signature
	Event      string // X-Sitegauge-Event
	DeliveryID string // X-Sitegauge-Delivery
}

// SetWebhookHeaders applies webhook headers to an HTTP request.
func SetWebhookHeaders(req *http.Request, headers HTTPHeaders) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, headers.Signature)
	req.Header.Set(HeaderEvent, headers.Event)
	req.Header.Set(HeaderDelivery, headers.DeliveryID)
	req.Header.Set("User-Agent", "Sitegauge-Webhook/1.0")
}
