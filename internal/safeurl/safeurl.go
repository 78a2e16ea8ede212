// Package safeurl validates externally supplied URLs before the server
// connects to them. It blocks loopback, link-local, and private ranges
// to prevent requests from being steered at internal infrastructure.
package safeurl

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidScheme is returned when the URL scheme is not allowed.
	ErrInvalidScheme = errors.New("URL scheme not allowed")
	// ErrPrivateIP is returned when the URL resolves to a private IP.
	ErrPrivateIP = errors.New("private IP addresses not allowed")
	// ErrLocalhostBlocked is returned when localhost is used.
	ErrLocalhostBlocked = errors.New("localhost not allowed")
	// ErrInvalidPort is returned when a non-standard port is used.
	ErrInvalidPort = errors.New("non-standard port not allowed")
	// ErrInvalidURL is returned when URL parsing fails.
	ErrInvalidURL = errors.New("invalid URL format")
	// ErrEmptyHost is returned when the URL has no host.
	ErrEmptyHost = errors.New("URL must have a host")
)

// Policy controls which URLs pass validation.
type Policy struct {
	// AllowHTTP permits plain http URLs in addition to https.
	AllowHTTP bool
	// AllowAnyPort permits explicit non-standard ports.
	AllowAnyPort bool
}

// WebhookPolicy is the strict policy for subscriber endpoints: HTTPS on
// the default port only.
var WebhookPolicy = Policy{}

// AuditPolicy is the policy for audit targets. Sites are audited as a
// visitor would reach them, so plain HTTP and explicit ports pass.
var AuditPolicy = Policy{AllowHTTP: true, AllowAnyPort: true}

// BlockedCIDRs contains private/internal IP ranges.
var BlockedCIDRs = []string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // Link-local
	"0.0.0.0/8",      // This network
	"::1/128",        // IPv6 loopback
	"fc00::/7",       // IPv6 private
	"fe80::/10",      // IPv6 link-local
}

var blockedNetworks []*net.IPNet

func init() {
	for _, cidr := range BlockedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err == nil {
			blockedNetworks = append(blockedNetworks, network)
		}
	}
}

// Validate checks a URL against the policy. It enforces the scheme,
// blocks localhost and private IPs, and restricts ports unless the
// policy allows them.
func Validate(rawURL string, policy Policy) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrInvalidURL
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !policy.AllowHTTP {
			return ErrInvalidScheme
		}
	default:
		return ErrInvalidScheme
	}

	host := parsed.Hostname()
	if host == "" {
		return ErrEmptyHost
	}

	if isLocalhostHostname(host) {
		return ErrLocalhostBlocked
	}

	// Literal IPs are checked directly; hostnames are resolved. A DNS
	// failure passes here and surfaces at connect time instead.
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return ErrPrivateIP
		}
	} else if ips, err := net.LookupIP(host); err == nil {
		for _, ip := range ips {
			if isBlockedIP(ip) {
				return ErrPrivateIP
			}
		}
	}

	if port := parsed.Port(); port != "" && !policy.AllowAnyPort {
		if (parsed.Scheme == "https" && port != "443") || (parsed.Scheme == "http" && port != "80") {
			return ErrInvalidPort
		}
	}

	return nil
}

// isLocalhostHostname checks if hostname is a localhost variant.
func isLocalhostHostname(host string) bool {
	host = strings.ToLower(host)
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		host == "127.0.0.1" ||
		host == "::1"
}

// isBlockedIP checks if the IP is in any blocked CIDR range.
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ExtractHost extracts the host from a URL for safe logging. Full URLs
// never appear in logs; paths and queries may contain secrets.
func ExtractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
