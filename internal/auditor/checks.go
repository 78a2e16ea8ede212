package auditor

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Check IDs reported in audit results. Submissions can name these in
// options.skip_checks.
const (
	CheckReachable       = "reachable"
	CheckHTTPS           = "https"
	CheckStatusOK        = "status_ok"
	CheckResponseTime    = "response_time"
	CheckHTMLContentType = "html_content_type"
	CheckPageWeight      = "page_weight"
	CheckTitle           = "has_title"
	CheckMetaDescription = "has_meta_description"
	CheckViewport        = "has_viewport"
	CheckHSTS            = "hsts"
	CheckCompression     = "compression"
)

// pageFacts carries everything the checks inspect about one fetched page.
type pageFacts struct {
	finalURL     string
	scheme       string
	status       int
	duration     time.Duration
	bodyBytes    int64
	truncated    bool
	weightCap    int64
	contentType  string
	headers      http.Header
	uncompressed bool
	body         []byte
}

// runChecks evaluates the check set against one page, skipping any IDs
// the submission opted out of.
func runChecks(facts pageFacts, skip map[string]bool, slowThreshold time.Duration) []CheckResult {
	lower := bytes.ToLower(facts.body)
	results := make([]CheckResult, 0, 10)

	add := func(id string, passed bool, detail string) {
		if skip[id] {
			return
		}
		if passed {
			detail = ""
		}
		results = append(results, CheckResult{ID: id, Passed: passed, Detail: detail})
	}

	add(CheckHTTPS,
		facts.scheme == "https",
		"not served over https")

	add(CheckStatusOK,
		facts.status >= 200 && facts.status < 300,
		fmt.Sprintf("HTTP %d", facts.status))

	add(CheckResponseTime,
		facts.duration <= slowThreshold,
		fmt.Sprintf("%dms", facts.duration.Milliseconds()))

	add(CheckHTMLContentType,
		strings.Contains(facts.contentType, "text/html"),
		fmt.Sprintf("content type %q", facts.contentType))

	add(CheckPageWeight,
		!facts.truncated,
		fmt.Sprintf("body exceeds %d bytes", facts.weightCap))

	add(CheckTitle,
		bytes.Contains(lower, []byte("<title")),
		"no <title> element found")

	add(CheckMetaDescription,
		containsMetaName(lower, "description"),
		"no meta description found")

	add(CheckViewport,
		containsMetaName(lower, "viewport"),
		"no viewport meta tag found")

	add(CheckHSTS,
		facts.scheme == "https" && facts.headers.Get("Strict-Transport-Security") != "",
		"no Strict-Transport-Security header")

	add(CheckCompression,
		facts.uncompressed || facts.headers.Get("Content-Encoding") != "",
		"response not compressed")

	return results
}

// containsMetaName matches name="x" and name='x' in lowercased HTML.
func containsMetaName(lowerBody []byte, name string) bool {
	return bytes.Contains(lowerBody, []byte(`name="`+name+`"`)) ||
		bytes.Contains(lowerBody, []byte(`name='`+name+`'`))
}

// scoreChecks returns the percentage of passed checks.
func scoreChecks(checks []CheckResult) int {
	if len(checks) == 0 {
		return 100
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return (passed*100 + len(checks)/2) / len(checks)
}

// scorePages averages the page scores.
func scorePages(pages []PageResult) int {
	if len(pages) == 0 {
		return 0
	}
	sum := 0
	for _, p := range pages {
		sum += p.Score
	}
	return (sum + len(pages)/2) / len(pages)
}
