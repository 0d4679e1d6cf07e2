// Package classify separates genuine club names from prose fragments that
// leaked into the name column of a roster export.
//
// Rules are applied in priority order and the first one that decides wins:
//
//  1. allow-list match (whole word, case-insensitive) → legitimate
//  2. shorter than the minimum length → fragment
//  3. starts with a sentence-fragment opener → fragment
//  4. contains a mid-sentence phrase → fragment
//  5. otherwise → legitimate
//
// The allow-list always wins, so a real club whose name happens to start
// with "Our" survives as long as it is listed.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Rule names the check that produced a verdict
type Rule string

const (
	RuleAllowList Rule = "allow-list"
	RuleTooShort  Rule = "min-length"
	RuleOpener    Rule = "opener"
	RulePhrase    Rule = "phrase"
	RuleDefault   Rule = "default"
)

// DefaultMinLength is used when Config.MinLength is zero
const DefaultMinLength = 3

// Config is the injected rule data
type Config struct {
	MinLength      int
	Allow          []string
	Openers        []string
	OpenerPatterns []string
	Phrases        []string
}

// Verdict is the outcome of classifying one name
type Verdict struct {
	Legitimate bool   `json:"legitimate"`
	Rule       Rule   `json:"rule"`
	Match      string `json:"match,omitempty"` // the list entry that matched, if any
}

// Fragment reports whether the verdict rejects the name
func (v Verdict) Fragment() bool {
	return !v.Legitimate
}

func (v Verdict) String() string {
	kind := "legitimate"
	if !v.Legitimate {
		kind = "fragment"
	}
	if v.Match != "" {
		return fmt.Sprintf("%s (%s: %q)", kind, v.Rule, v.Match)
	}
	return fmt.Sprintf("%s (%s)", kind, v.Rule)
}

type allowEntry struct {
	name string
	re   *regexp.Regexp
}

// Classifier applies a compiled Config. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	minLength      int
	allow          []allowEntry
	openers        []string
	openerPatterns []*regexp.Regexp
	phrases        []string
}

// New compiles a Config
func New(cfg Config) (*Classifier, error) {
	c := &Classifier{minLength: cfg.MinLength}
	if c.minLength <= 0 {
		c.minLength = DefaultMinLength
	}

	for _, name := range cfg.Allow {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// Letter/digit boundaries instead of \b so entries ending in
		// punctuation ("A.S.U.H.") still match.
		re, err := regexp.Compile(`(?i)(?:^|[^\pL\pN])` + regexp.QuoteMeta(name) + `(?:$|[^\pL\pN])`)
		if err != nil {
			return nil, fmt.Errorf("compiling allow-list entry %q: %w", name, err)
		}
		c.allow = append(c.allow, allowEntry{name: name, re: re})
	}

	for _, o := range cfg.Openers {
		if o != "" {
			c.openers = append(c.openers, strings.ToLower(o))
		}
	}

	for _, p := range cfg.OpenerPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling opener pattern %q: %w", p, err)
		}
		c.openerPatterns = append(c.openerPatterns, re)
	}

	for _, p := range cfg.Phrases {
		if p != "" {
			c.phrases = append(c.phrases, strings.ToLower(p))
		}
	}

	return c, nil
}

// MustNew is like New but panics on an invalid Config
func MustNew(cfg Config) *Classifier {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// IsLegitimate reports whether name is a genuine entity name
func (c *Classifier) IsLegitimate(name string) bool {
	return c.Classify(name, "").Legitimate
}

// Classify decides whether name is a genuine entity. The purpose text does
// not influence the decision; it is accepted so callers can pass the whole
// candidate and log both.
func (c *Classifier) Classify(name, _ string) Verdict {
	trimmed := strings.Join(strings.Fields(name), " ")

	for _, a := range c.allow {
		if a.re.MatchString(trimmed) {
			return Verdict{Legitimate: true, Rule: RuleAllowList, Match: a.name}
		}
	}

	if utf8.RuneCountInString(trimmed) < c.minLength {
		return Verdict{Rule: RuleTooShort}
	}

	lower := strings.ToLower(trimmed)
	for _, o := range c.openers {
		if strings.HasPrefix(lower, o) {
			return Verdict{Rule: RuleOpener, Match: o}
		}
	}
	for _, re := range c.openerPatterns {
		if re.MatchString(trimmed) {
			return Verdict{Rule: RuleOpener, Match: re.String()}
		}
	}

	// Pad so phrases written with surrounding spaces also match at the edges.
	padded := " " + lower + " "
	for _, p := range c.phrases {
		if strings.Contains(padded, p) {
			return Verdict{Rule: RulePhrase, Match: p}
		}
	}

	return Verdict{Legitimate: true, Rule: RuleDefault}
}
