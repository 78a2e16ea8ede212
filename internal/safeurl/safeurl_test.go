package safeurl

import (
	"net"
	"testing"
)

func TestValidate_WebhookPolicy(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{
			name:    "valid https url",
			url:     "https://example.com/webhook",
			wantErr: nil,
		},
		{
			name:    "valid https with path",
			url:     "https://api.example.com/v1/webhooks",
			wantErr: nil,
		},
		{
			name:    "http not allowed",
			url:     "http://example.com/webhook",
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "ftp not allowed",
			url:     "ftp://example.com/webhook",
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "localhost blocked",
			url:     "https://localhost/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    "127.0.0.1 blocked",
			url:     "https://127.0.0.1/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    ".local domain blocked",
			url:     "https://myserver.local/webhook",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    "private IP blocked",
			url:     "https://10.0.0.5/webhook",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "non-standard port blocked",
			url:     "https://example.com:8443/webhook",
			wantErr: ErrInvalidPort,
		},
		{
			name:    "port 443 allowed",
			url:     "https://example.com:443/webhook",
			wantErr: nil,
		},
		{
			name:    "empty host",
			url:     "https:///webhook",
			wantErr: ErrEmptyHost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.url, WebhookPolicy)
			if err != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_AuditPolicy(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr error
	}{
		{
			name:    "https allowed",
			url:     "https://example.com",
			wantErr: nil,
		},
		{
			name:    "http allowed",
			url:     "http://example.com",
			wantErr: nil,
		},
		{
			name:    "explicit port allowed",
			url:     "https://example.com:8443/page",
			wantErr: nil,
		},
		{
			name:    "scheme still required",
			url:     "example.com",
			wantErr: ErrInvalidScheme,
		},
		{
			name:    "localhost still blocked",
			url:     "http://localhost:3000",
			wantErr: ErrLocalhostBlocked,
		},
		{
			name:    "private IP still blocked",
			url:     "http://192.168.1.10",
			wantErr: ErrPrivateIP,
		},
		{
			name:    "link-local still blocked",
			url:     "http://169.254.169.254/latest/meta-data",
			wantErr: ErrPrivateIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.url, AuditPolicy)
			if err != tt.wantErr {
				t.Errorf("Validate(%q) error = %v, want %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestIsBlockedIP(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		blocked bool
	}{
		{"private 10.x", "10.0.0.1", true},
		{"private 172.16.x", "172.16.0.1", true},
		{"private 192.168.x", "192.168.1.1", true},
		{"loopback", "127.0.0.1", true},
		{"link-local", "169.254.1.1", true},
		{"IPv6 loopback", "::1", true},
		{"public IP", "8.8.8.8", false},
		{"public IP 2", "93.184.216.34", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("failed to parse IP: %s", tt.ip)
			}
			got := isBlockedIP(ip)
			if got != tt.blocked {
				t.Errorf("isBlockedIP(%q) = %v, want %v", tt.ip, got, tt.blocked)
			}
		})
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/webhook", "example.com"},
		{"https://api.example.com:443/v1", "api.example.com:443"},
		{"invalid-url", ""}, // url.Parse is lenient, returns empty host for relative paths
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := ExtractHost(tt.url)
			if got != tt.want {
				t.Errorf("ExtractHost(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
