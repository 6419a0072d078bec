// Package extract locates embedded puzzle JSON inside upstream markup.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/puzzle-proxy/internal/puzzle"
)

// ErrNoMatch is returned when no rule yields a parseable document.
var ErrNoMatch = errors.New("no extraction rule matched")

// Rule pulls a JSON candidate out of a page body.
type Rule interface {
	Name() string
	Find(body []byte) ([]byte, bool)
}

// PatternRule matches a regular expression and returns one capture group.
type PatternRule struct {
	RuleName string
	Pattern  *regexp.Regexp
	Group    int
}

// NewPatternRule compiles pattern and validates the capture group index.
func NewPatternRule(name, pattern string, group int) (*PatternRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile rule %s: %w", name, err)
	}
	if group < 0 || group > re.NumSubexp() {
		return nil, fmt.Errorf("rule %s: group %d out of range (pattern has %d)", name, group, re.NumSubexp())
	}
	return &PatternRule{RuleName: name, Pattern: re, Group: group}, nil
}

// Name identifies the rule in logs and metrics.
func (r *PatternRule) Name() string {
	return r.RuleName
}

// Find returns the configured capture group of the first match.
func (r *PatternRule) Find(body []byte) ([]byte, bool) {
	m := r.Pattern.FindSubmatch(body)
	if m == nil || r.Group >= len(m) || len(m[r.Group]) == 0 {
		return nil, false
	}
	return m[r.Group], true
}

// ScriptRule selects script elements and treats their text as JSON.
// When Key is set only the first object stored under Key, at any depth,
// is returned; a script without it is no match.
type ScriptRule struct {
	RuleName string
	Selector string
	Key      string
}

// Name identifies the rule in logs and metrics.
func (r *ScriptRule) Name() string {
	return r.RuleName
}

// Find returns the text of the first non-empty element matching Selector.
func (r *ScriptRule) Find(body []byte) ([]byte, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	var found []byte
	doc.Find(r.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return true
		}
		if r.Key == "" {
			found = []byte(text)
			return false
		}
		if sub, ok := findKey(json.RawMessage(text), r.Key); ok {
			found = sub
			return false
		}
		return true
	})
	return found, found != nil
}

// findKey walks objects and arrays depth first and returns the raw bytes of
// the first object value stored under key.
func findKey(raw json.RawMessage, key string) ([]byte, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	switch trimmed[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, false
		}
		if v, ok := fields[key]; ok {
			v = bytes.TrimSpace(v)
			if len(v) > 0 && v[0] == '{' {
				return v, true
			}
		}
		for _, v := range fields {
			if sub, ok := findKey(v, key); ok {
				return sub, true
			}
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false
		}
		for _, v := range items {
			if sub, ok := findKey(v, key); ok {
				return sub, true
			}
		}
	}
	return nil, false
}

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		&PatternRule{
			RuleName: "window-game-data",
			Pattern:  regexp.MustCompile(`(?s)window\.gameData\s*=\s*(\{.*?\})\s*;`),
			Group:    1,
		},
		&PatternRule{
			RuleName: "inline-game-data",
			Pattern:  regexp.MustCompile(`(?s)"gameData":\s*(\{.*?\}),\s*"`),
			Group:    1,
		},
		&ScriptRule{
			RuleName: "next-data",
			Selector: `script#__NEXT_DATA__`,
			Key:      "gameData",
		},
	}
}

// Extractor runs rules in order until one produces valid JSON.
type Extractor struct {
	rules []Rule
}

// New builds an Extractor. DefaultRules are used when none are given.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Extractor{rules: rules}
}

// Extract returns the first document any rule can parse, and the rule name.
// A rule whose match is not valid JSON does not stop the search.
func (e *Extractor) Extract(body []byte) (puzzle.Document, string, error) {
	for _, rule := range e.rules {
		raw, ok := rule.Find(body)
		if !ok {
			continue
		}
		doc, err := puzzle.ParseDocument(raw)
		if err != nil {
			continue
		}
		return doc, rule.Name(), nil
	}
	return nil, "", ErrNoMatch
}

// Rules returns the configured rule names.
func (e *Extractor) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}
