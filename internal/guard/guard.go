// Package guard detects prompt-injection attempts in untrusted text.
//
// It acts as a firewall between ingested content and the generation
// pipeline: text matching any configured injection-intent pattern is
// rejected before it can enter the index or reach a model prompt. The
// guard is applied twice — at ingestion and again at retrieval — so a
// payload that slipped past an older rule table is still screened before
// generation.
package guard

import (
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// Rule defines a single injection detection rule.
type Rule struct {
	// ID identifies the rule in audit logs.
	ID string `koanf:"id"`

	// Pattern is a case-insensitive regex matched against normalized text.
	Pattern string `koanf:"pattern"`
}

// DefaultRules returns the built-in injection-intent patterns.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "ignore-instructions", Pattern: `ignore\s+(all\s+)?(previous|prior)\s+instructions`},
		{ID: "ignore-system-prompt", Pattern: `ignore\s+system\s+prompt`},
		{ID: "persona-override", Pattern: `you\s+are\s+now\s+a`},
		{ID: "override-system", Pattern: `override\s+system`},
		{ID: "simulate-mode", Pattern: `simulat(e|ing)\s+mode`},
		{ID: "jailbreak", Pattern: `jailbreak`},
		{ID: "dan-mode", Pattern: `dan\s+mode`},
		{ID: "system-override", Pattern: `system\s+override`},
	}
}

// Config configures the guard.
type Config struct {
	// Rules are the detection rules. Empty means DefaultRules.
	Rules []Rule `koanf:"rules"`

	// ExtraPatterns are additional regexes appended to the rule set,
	// typically supplied via deployment configuration.
	ExtraPatterns []string `koanf:"extra_patterns"`
}

// compiledRule holds a rule with its compiled pattern.
type compiledRule struct {
	id      string
	pattern *regexp.Regexp
}

// Guard screens text for prompt-injection intent.
//
// Validate is a pure function over the input and the rule table fixed at
// construction: the same input always yields the same verdict, independent
// of call order.
type Guard struct {
	rules []compiledRule
}

// New creates a Guard from the given configuration.
// If cfg is nil, the default rule set is used.
func New(cfg *Config) (*Guard, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for i, p := range cfg.ExtraPatterns {
		rules = append(rules, Rule{ID: fmt.Sprintf("extra-%d", i), Pattern: p})
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("guard rule with pattern %q: ID is required", r.Pattern)
		}
		if r.Pattern == "" {
			return nil, fmt.Errorf("guard rule %s: pattern is required", r.ID)
		}
		re, err := regexp.Compile(`(?i)` + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("guard rule %s: invalid pattern: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{id: r.ID, pattern: re})
	}

	return &Guard{rules: compiled}, nil
}

// MustNew creates a Guard, panicking on error. Intended for use with the
// built-in rule table, which is known to compile.
func MustNew(cfg *Config) *Guard {
	g, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return g
}

// Result reports which rules matched a given input.
type Result struct {
	// Safe is false when at least one rule matched.
	Safe bool

	// RuleIDs lists the rules that matched, in table order.
	RuleIDs []string
}

// Validate reports whether text is free of injection patterns.
func (g *Guard) Validate(text string) bool {
	return g.Check(text).Safe
}

// Check evaluates every rule against the input and returns the matched
// rule IDs for audit logging.
//
// The input is normalized to NFKC before matching so that full-width and
// other compatibility forms cannot smuggle a pattern past the table
// (e.g. "ｉｇｎｏｒｅ" normalizes to "ignore").
func (g *Guard) Check(text string) Result {
	normalized := norm.NFKC.String(text)

	res := Result{Safe: true}
	for _, r := range g.rules {
		if r.pattern.MatchString(normalized) {
			res.Safe = false
			res.RuleIDs = append(res.RuleIDs, r.id)
		}
	}
	return res
}
