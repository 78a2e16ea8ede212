package middleware

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Validation limits.
const (
	// MaxAuditURLLength is the maximum length for audit target URLs.
	MaxAuditURLLength = 2048

	// MaxWebhookURLLength is the maximum length for webhook URLs.
	MaxWebhookURLLength = 1024

	// MaxClientNameLength is the maximum length for the client label on an audit.
	MaxClientNameLength = 128

	// MaxPageEntries caps extra page entries per audit submission. The
	// per-plan page budget is enforced in the service; this ceiling matches
	// the largest plan (25 pages including the target).
	MaxPageEntries = 24

	// MaxEmailLength follows the RFC 5321 address limit.
	MaxEmailLength = 254

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8

	// MaxPasswordLength bounds the argon2 input.
	MaxPasswordLength = 128
)

// Validation errors.
var (
	ErrAuditURLTooLong   = errors.New("audit URL exceeds maximum length")
	ErrAuditURLInvalid   = errors.New("audit URL is invalid")
	ErrAuditURLUnsafe    = errors.New("audit URL uses unsafe scheme")
	ErrWebhookURLTooLong = errors.New("webhook URL exceeds maximum length")
	ErrClientNameTooLong = errors.New("client name exceeds maximum length")
	ErrClientNameInvalid = errors.New("client name contains control characters")
	ErrTooManyPages      = errors.New("too many page entries")
	ErrPageEntryInvalid  = errors.New("page entry is invalid")
	ErrEmailTooLong      = errors.New("email exceeds maximum length")
	ErrEmailInvalid      = errors.New("email is invalid")
	ErrPasswordTooShort  = errors.New("password is too short")
	ErrPasswordTooLong   = errors.New("password is too long")
)

// emailPattern is a pragmatic format check; deliverability is not verified.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidateAuditURL validates an audit target URL.
// Reachability and SSRF checks happen later in the submission path.
func ValidateAuditURL(url string) error {
	if len(url) > MaxAuditURLLength {
		return ErrAuditURLTooLong
	}

	lowerURL := strings.ToLower(url)
	if !strings.HasPrefix(lowerURL, "http://") && !strings.HasPrefix(lowerURL, "https://") {
		return ErrAuditURLInvalid
	}

	// Block dangerous schemes (in case of URL encoding tricks)
	forbiddenSchemes := []string{"javascript:", "data:", "vbscript:", "file:"}
	for _, scheme := range forbiddenSchemes {
		if strings.Contains(lowerURL, scheme) {
			return ErrAuditURLUnsafe
		}
	}

	return nil
}

// ValidateWebhookURL validates a webhook target URL.
func ValidateWebhookURL(url string) error {
	if len(url) > MaxWebhookURLLength {
		return ErrWebhookURLTooLong
	}

	// Scheme, host, and address checks are done in safeurl.Validate
	return nil
}

// ValidateClientName validates the optional client label on an audit.
func ValidateClientName(name string) error {
	if len(name) > MaxClientNameLength {
		return ErrClientNameTooLong
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrClientNameInvalid
		}
	}

	return nil
}

// ValidatePages validates the extra page entries of an audit submission.
// Entries may be absolute URLs or paths relative to the target; the
// per-plan count budget is checked in the service.
func ValidatePages(pages []string) error {
	if len(pages) > MaxPageEntries {
		return ErrTooManyPages
	}

	for _, p := range pages {
		if p == "" || len(p) > MaxAuditURLLength {
			return ErrPageEntryInvalid
		}
		for _, r := range p {
			if unicode.IsControl(r) || unicode.IsSpace(r) {
				return ErrPageEntryInvalid
			}
		}
	}

	return nil
}

// ValidateEmail validates a registration or login email address.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !emailPattern.MatchString(email) {
		return ErrEmailInvalid
	}
	return nil
}

// ValidatePassword validates a registration password.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}
