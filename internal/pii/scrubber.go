// Package pii redacts structural personally identifiable information from
// text crossing the boundary into a third-party generation provider, and
// restores it on the way back.
//
// Detection is intentionally limited to a fixed set of structural patterns
// (email addresses, phone numbers, US SSNs, IPv4 addresses). The scrubber
// is not, and does not try to be, a complete PII detector.
package pii

import (
	"fmt"
	"regexp"
	"strings"
)

// Detector labels, in evaluation order.
const (
	LabelEmail = "EMAIL"
	LabelPhone = "PHONE"
	LabelSSN   = "SSN"
	LabelIP    = "IP_ADDRESS"
)

// detector pairs a label with its compiled pattern.
type detector struct {
	label   string
	pattern *regexp.Regexp
}

// detectors are evaluated in fixed order; order matters because an earlier
// detector claims overlapping text before a later one sees it.
var detectors = []detector{
	{LabelEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{LabelPhone, regexp.MustCompile(`\b(\+\d{1,2}\s?)?(\(?\d{3}\)?[\s.-]?)?\d{3}[\s.-]?\d{4}\b`)},
	{LabelSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{LabelIP, regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
}

// pair is one placeholder assignment.
type pair struct {
	placeholder string
	original    string
}

// Mapping records the placeholder assignments of a single scrub call.
//
// It is scoped to one scrub/restore cycle and must never be persisted:
// the whole point of scrubbing is that the original values do not leave
// the process.
type Mapping struct {
	pairs    []pair
	byValue  map[string]string
	perLabel map[string]int
}

func newMapping() *Mapping {
	return &Mapping{
		byValue:  make(map[string]string),
		perLabel: make(map[string]int),
	}
}

// placeholderFor returns the stable placeholder for value, assigning a new
// sequential one per label on first sight.
func (m *Mapping) placeholderFor(label, value string) string {
	if p, ok := m.byValue[value]; ok {
		return p
	}
	m.perLabel[label]++
	p := fmt.Sprintf("<%s_%d>", label, m.perLabel[label])
	m.byValue[value] = p
	m.pairs = append(m.pairs, pair{placeholder: p, original: value})
	return p
}

// Len returns the number of distinct values scrubbed.
func (m *Mapping) Len() int {
	return len(m.pairs)
}

// Lookup returns the original value for a placeholder.
func (m *Mapping) Lookup(placeholder string) (string, bool) {
	for _, p := range m.pairs {
		if p.placeholder == placeholder {
			return p.original, true
		}
	}
	return "", false
}

// Scrubber replaces structural PII with placeholder tokens.
//
// Scrub is deterministic: the same literal value always maps to the same
// placeholder within one call, and placeholder numbering increases per
// label in left-to-right discovery order.
type Scrubber struct{}

// NewScrubber creates a Scrubber.
func NewScrubber() *Scrubber {
	return &Scrubber{}
}

// Scrub replaces every detector match in text with its placeholder and
// returns the scrubbed text together with the mapping needed to restore it.
func (s *Scrubber) Scrub(text string) (string, *Mapping) {
	mapping := newMapping()
	scrubbed := text
	for _, d := range detectors {
		scrubbed = d.pattern.ReplaceAllStringFunc(scrubbed, func(match string) string {
			return mapping.placeholderFor(d.label, match)
		})
	}
	return scrubbed, mapping
}

// Restore replaces every placeholder in text with its original value.
//
// Placeholders are syntactically disjoint from the values they stand for,
// so replacement order does not affect the result.
func (s *Scrubber) Restore(text string, mapping *Mapping) string {
	if mapping == nil {
		return text
	}
	restored := text
	for _, p := range mapping.pairs {
		restored = strings.ReplaceAll(restored, p.placeholder, p.original)
	}
	return restored
}
