// Package heuristics holds the hand-maintained tables that steer ingestion:
// the fragment allow/deny lists, the category synonym map and the roster
// column keywords. Tables are data, loaded from YAML; the built-in set is
// embedded and a replacement file can be supplied at runtime.
package heuristics

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/rows"
)

//go:embed defaults.yaml
var defaultRules []byte

// Rules is the decoded rules file
type Rules struct {
	Version    int             `yaml:"version"`
	Classifier ClassifierRules `yaml:"classifier"`
	Categories CategoryRules   `yaml:"categories"`
	Roster     RosterRules     `yaml:"roster"`
}

// ClassifierRules configures the fragment classifier
type ClassifierRules struct {
	MinLength      int      `yaml:"min_length"`
	Allow          []string `yaml:"allow"`
	Openers        []string `yaml:"openers"`
	OpenerPatterns []string `yaml:"opener_patterns"`
	Phrases        []string `yaml:"phrases"`
}

// CategoryRules maps free-text labels to canonical category names
type CategoryRules struct {
	Synonyms map[string]string `yaml:"synonyms"`
}

// RosterRules locates and maps roster columns
type RosterRules struct {
	ScanLimit      int         `yaml:"scan_limit"`
	HeaderKeywords []string    `yaml:"header_keywords"`
	Fields         []FieldRule `yaml:"fields"`
}

// FieldRule lists the header keywords that identify one roster field
type FieldRule struct {
	Field    string   `yaml:"field"`
	Keywords []string `yaml:"keywords"`
	Required bool     `yaml:"required"`
}

// Default returns the embedded rule set
func Default() *Rules {
	r, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded heuristics are invalid: %v", err))
	}
	return r
}

// Load reads a rules file. An empty path returns the embedded defaults.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading heuristics file: %w", err)
	}

	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing heuristics file %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a rules document
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) validate() error {
	if r.Classifier.MinLength < 1 {
		return fmt.Errorf("classifier.min_length must be at least 1")
	}
	if len(r.Roster.HeaderKeywords) == 0 {
		return fmt.Errorf("roster.header_keywords must not be empty")
	}

	hasName := false
	for _, f := range r.Roster.Fields {
		if !rows.IsField(rows.Field(f.Field)) {
			return fmt.Errorf("roster.fields: unknown field %q", f.Field)
		}
		if len(f.Keywords) == 0 {
			return fmt.Errorf("roster.fields: %s has no keywords", f.Field)
		}
		if rows.Field(f.Field) == rows.FieldName {
			hasName = true
		}
	}
	if !hasName {
		return fmt.Errorf("roster.fields must map the name field")
	}

	// Compile once here so a bad pattern fails at load, not mid-run.
	if _, err := classify.New(r.ClassifierConfig()); err != nil {
		return err
	}
	return nil
}

// ClassifierConfig converts the classifier tables into a classify.Config
func (r *Rules) ClassifierConfig() classify.Config {
	return classify.Config{
		MinLength:      r.Classifier.MinLength,
		Allow:          r.Classifier.Allow,
		Openers:        r.Classifier.Openers,
		OpenerPatterns: r.Classifier.OpenerPatterns,
		Phrases:        r.Classifier.Phrases,
	}
}

// Schema converts the roster tables into a rows.Schema
func (r *Rules) Schema() rows.Schema {
	fields := make([]rows.FieldSpec, 0, len(r.Roster.Fields))
	for _, f := range r.Roster.Fields {
		fields = append(fields, rows.FieldSpec{
			Field:    rows.Field(f.Field),
			Keywords: f.Keywords,
			Required: f.Required,
		})
	}
	return rows.Schema{
		HeaderKeywords: r.Roster.HeaderKeywords,
		Fields:         fields,
		ScanLimit:      r.Roster.ScanLimit,
	}
}

// Synonyms returns the category synonym table
func (r *Rules) Synonyms() map[string]string {
	return r.Categories.Synonyms
}
