// Package auditor implements the default audit executor: a plain HTTP
// fetch of the target pages plus a set of cheap page checks. Anything
// heavier (rendering, scoring models) belongs behind the same Executor
// interface, not here.
package auditor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/sitegauge/sitegauge/internal/queue"
)

const (
	// DefaultFetchTimeout bounds a single page fetch.
	DefaultFetchTimeout = 20 * time.Second
	// DefaultMaxBodyBytes caps how much of a page body is read.
	DefaultMaxBodyBytes = 5 << 20
	// DefaultSlowThreshold is the response-time check ceiling.
	DefaultSlowThreshold = 2 * time.Second
	// DefaultUserAgent identifies audit fetches.
	DefaultUserAgent = "Sitegauge-Audit/1.0"

	maxRedirects = 5
)

// Report is the results document produced for one audit.
type Report struct {
	Target    string       `json:"target"`
	FetchedAt time.Time    `json:"fetched_at"`
	Pages     []PageResult `json:"pages"`
	Score     int          `json:"score"`
}

// PageResult holds the fetch outcome and checks for one page.
type PageResult struct {
	URL         string        `json:"url"`
	Status      int           `json:"status"`
	DurationMS  int64         `json:"duration_ms"`
	BodyBytes   int64         `json:"body_bytes"`
	ContentType string        `json:"content_type,omitempty"`
	Checks      []CheckResult `json:"checks"`
	Score       int           `json:"score"`
}

// CheckResult is one pass/fail check outcome.
type CheckResult struct {
	ID     string `json:"id"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Auditor fetches audit targets and produces the results payload.
type Auditor struct {
	client        *http.Client
	logger        *slog.Logger
	userAgent     string
	fetchTimeout  time.Duration
	maxBodyBytes  int64
	slowThreshold time.Duration
}

// New creates an Auditor with hardened transport defaults.
func New(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		client:        newFetchClient(),
		logger:        logger.With("component", "auditor"),
		userAgent:     DefaultUserAgent,
		fetchTimeout:  DefaultFetchTimeout,
		maxBodyBytes:  DefaultMaxBodyBytes,
		slowThreshold: DefaultSlowThreshold,
	}
}

// SetFetchTimeout overrides the per-page fetch timeout.
func (a *Auditor) SetFetchTimeout(d time.Duration) {
	if d > 0 {
		a.fetchTimeout = d
	}
}

// SetMaxBodyBytes overrides the page body read cap.
func (a *Auditor) SetMaxBodyBytes(n int64) {
	if n > 0 {
		a.maxBodyBytes = n
	}
}

// SetSlowThreshold overrides the response-time check ceiling.
func (a *Auditor) SetSlowThreshold(d time.Duration) {
	if d > 0 {
		a.slowThreshold = d
	}
}

func newFetchClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 15 * time.Second,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Execute fetches the target page and any extra pages, runs the check
// set against each, and returns the marshalled report. A fetch failure
// on the target fails the whole audit; extra pages record an
// unreachable result instead.
func (a *Auditor) Execute(ctx context.Context, job queue.Job) (json.RawMessage, error) {
	pages, err := a.resolvePages(job)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(job.Options.SkipChecks))
	for _, id := range job.Options.SkipChecks {
		skip[id] = true
	}

	userAgent := a.userAgent
	if job.Options.UserAgent != "" {
		userAgent = job.Options.UserAgent
	}

	report := Report{
		Target:    job.URL,
		FetchedAt: time.Now().UTC(),
		Pages:     make([]PageResult, 0, len(pages)),
	}

	for i, pageURL := range pages {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("audit canceled: %w", ctx.Err())
		}

		facts, err := a.fetchPage(ctx, pageURL, userAgent)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("audit canceled: %w", ctx.Err())
			}
			if i == 0 {
				return nil, fmt.Errorf("fetch target: %w", err)
			}
			a.logger.Warn("extra page unreachable",
				"audit_id", job.AuditID,
				"page", pageURL,
				"error", err,
			)
			report.Pages = append(report.Pages, unreachablePage(pageURL, err))
			continue
		}

		checks := runChecks(facts, skip, a.slowThreshold)
		report.Pages = append(report.Pages, PageResult{
			URL:         facts.finalURL,
			Status:      facts.status,
			DurationMS:  facts.duration.Milliseconds(),
			BodyBytes:   facts.bodyBytes,
			ContentType: facts.contentType,
			Checks:      checks,
			Score:       scoreChecks(checks),
		})
	}

	report.Score = scorePages(report.Pages)

	results, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return results, nil
}

// resolvePages builds the fetch list: the target first, then extra page
// paths resolved against it. Off-host references are dropped.
func (a *Auditor) resolvePages(job queue.Job) ([]string, error) {
	base, err := url.Parse(job.URL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}

	pages := []string{job.URL}
	for _, p := range job.Options.Pages {
		ref, err := url.Parse(p)
		if err != nil {
			a.logger.Warn("skipping invalid page path", "audit_id", job.AuditID, "page", p)
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Host != base.Host {
			a.logger.Warn("skipping off-host page", "audit_id", job.AuditID, "page", p)
			continue
		}
		pages = append(pages, resolved.String())
	}
	return pages, nil
}

func (a *Auditor) fetchPage(ctx context.Context, pageURL, userAgent string) (pageFacts, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return pageFacts{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return pageFacts{}, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.maxBodyBytes+1))
	duration := time.Since(start)
	if err != nil {
		return pageFacts{}, fmt.Errorf("read body: %w", err)
	}

	truncated := int64(len(body)) > a.maxBodyBytes
	if truncated {
		body = body[:a.maxBodyBytes]
	}

	return pageFacts{
		finalURL:     resp.Request.URL.String(),
		scheme:       resp.Request.URL.Scheme,
		status:       resp.StatusCode,
		duration:     duration,
		bodyBytes:    int64(len(body)),
		truncated:    truncated,
		weightCap:    a.maxBodyBytes,
		contentType:  resp.Header.Get("Content-Type"),
		headers:      resp.Header,
		uncompressed: resp.Uncompressed,
		body:         body,
	}, nil
}

func unreachablePage(pageURL string, err error) PageResult {
	return PageResult{
		URL: pageURL,
		Checks: []CheckResult{
			{ID: CheckReachable, Passed: false, Detail: err.Error()},
		},
		Score: 0,
	}
}
