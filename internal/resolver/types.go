package resolver

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
)

// Kind describes how a candidate's response body is turned into a document.
type Kind string

// Candidate kinds.
const (
	KindJSON     Kind = "json"
	KindHTML     Kind = "html"
	KindRendered Kind = "rendered"
)

// ParseKind validates a configured kind. Empty means html.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindJSON:
		return KindJSON, nil
	case KindHTML, "":
		return KindHTML, nil
	case KindRendered:
		return KindRendered, nil
	default:
		return "", fmt.Errorf("unknown candidate kind %q", raw)
	}
}

// Candidate is one upstream source in the fallback chain.
type Candidate struct {
	Name        string
	URLTemplate string
	Headers     http.Header
	Kind        Kind
	// Promote allows a headless re-fetch when static markup yields nothing
	// and the page looks script-rendered.
	Promote bool
}

// URL expands the candidate's template for the given date.
func (c Candidate) URL(key puzzle.DateKey) string {
	return key.Expand(c.URLTemplate)
}

// Outcome labels a single candidate attempt.
type Outcome string

// Attempt outcomes.
const (
	OutcomeSuccess         Outcome = "success"
	OutcomeTransportError  Outcome = "transport_error"
	OutcomeUpstreamStatus  Outcome = "upstream_status"
	OutcomeExtractionError Outcome = "extraction_error"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Attempt is the diagnostic record of one candidate evaluation.
type Attempt struct {
	ID           string        `json:"id"`
	Date         string        `json:"date"`
	Candidate    string        `json:"candidate"`
	URL          string        `json:"url"`
	StatusCode   int           `json:"status_code"`
	Outcome      Outcome       `json:"outcome"`
	Rule         string        `json:"rule,omitempty"`
	UsedHeadless bool          `json:"used_headless"`
	BodyHash     string        `json:"body_hash,omitempty"`
	SnapshotURI  string        `json:"snapshot_uri,omitempty"`
	ErrorText    string        `json:"error_text,omitempty"`
	Duration     time.Duration `json:"duration"`
	AttemptedAt  time.Time     `json:"attempted_at"`
}

// Result is a resolved puzzle.
type Result struct {
	Document     puzzle.Document
	Candidate    string
	URL          string
	Rule         string
	UsedHeadless bool
	Tried        []string
}

// ErrNotFound is matched by errors.Is when every candidate failed.
var ErrNotFound = errors.New("puzzle not found")

// NotFoundError lists the URLs attempted before giving up.
type NotFoundError struct {
	Date  string
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("puzzle not found for %s after %d candidate(s)", e.Date, len(e.Tried))
}

// Unwrap lets errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
