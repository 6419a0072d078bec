// Package detector decides when a static page needs a headless render.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

const (
	defaultThreshold     = 2048
	scriptCoveragePctMin = 25
)

// Heuristic flags pages that are mostly script or mount a client-side app.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector. A zero threshold uses the default.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// appRootSelectors match the mount points of common client-side frameworks
// and the crossword game shell.
var appRootSelectors = []string{
	"#__next",
	"#root",
	"#app",
	"[data-reactroot]",
	"#pz-game-root",
}

var noscriptHints = []string{"enable javascript", "javascript is disabled", "requires javascript"}

// ShouldPromote reports whether a headless fetch is likely to produce
// content the static fetch missed.
func (h *Heuristic) ShouldPromote(resp resolver.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if len(body) < h.BodyLengthThreshold && scriptCoverage(doc, len(body)) >= scriptCoveragePctMin {
		return true
	}
	for _, sel := range appRootSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	noscript := strings.ToLower(doc.Find("noscript").Text())
	for _, hint := range noscriptHints {
		if strings.Contains(noscript, hint) {
			return true
		}
	}
	return false
}

// scriptCoverage returns the share of the body, in percent, taken up by
// inline script text and script tags.
func scriptCoverage(doc *goquery.Document, total int) int {
	if total == 0 {
		return 0
	}
	covered := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		covered += len(s.Text()) + len("<script></script>")
	})
	if covered > total {
		covered = total
	}
	return covered * 100 / total
}
