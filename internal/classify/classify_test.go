package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/club-sync/internal/classify"
	"github.com/pfrederiksen/club-sync/internal/heuristics"
)

func TestClassify_DefaultRules(t *testing.T) {
	c, err := classify.New(heuristics.Default().ClassifierConfig())
	require.NoError(t, err)

	tests := []struct {
		name       string
		input      string
		legitimate bool
		rule       classify.Rule
	}{
		{name: "section heading", input: "Section 1. Purpose", legitimate: false, rule: classify.RuleOpener},
		{name: "allow-listed acronym", input: "ROC", legitimate: true, rule: classify.RuleAllowList},
		{name: "too short", input: "AB", legitimate: false, rule: classify.RuleTooShort},
		{name: "ordinary club", input: "Hiking Club Manoa", legitimate: true, rule: classify.RuleDefault},
		{name: "purpose sentence", input: "To foster community", legitimate: false, rule: classify.RuleOpener},
		{name: "our opener", input: "Our members meet weekly", legitimate: false, rule: classify.RuleOpener},
		{name: "numbered list item", input: "2) Elect officers annually", legitimate: false, rule: classify.RuleOpener},
		{name: "lettered list item", input: "b. Maintain records", legitimate: false, rule: classify.RuleOpener},
		{name: "bullet glyph", input: "• Weekly meetings", legitimate: false, rule: classify.RuleOpener},
		{name: "mid-sentence phrase", input: "Officers shall serve one year", legitimate: false, rule: classify.RulePhrase},
		{name: "allow-list wins over opener", input: "ROC Section Leaders", legitimate: true, rule: classify.RuleAllowList},
		{name: "allow-list needs whole word", input: "Section 1. Procedure", legitimate: false, rule: classify.RuleOpener},
		{name: "toastmasters is not an opener", input: "Toastmasters", legitimate: true, rule: classify.RuleDefault},
		{name: "whitespace collapsed before length", input: "  AB  ", legitimate: false, rule: classify.RuleTooShort},
		{name: "allow-list with punctuation", input: "A.S.U.H.", legitimate: true, rule: classify.RuleAllowList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.input, "")
			assert.Equal(t, tt.legitimate, v.Legitimate, "verdict %s", v)
			assert.Equal(t, tt.rule, v.Rule)
			assert.Equal(t, tt.legitimate, c.IsLegitimate(tt.input))
		})
	}
}

func TestClassify_CustomConfig(t *testing.T) {
	c := classify.MustNew(classify.Config{
		MinLength: 5,
		Allow:     []string{"Our Lady Choir"},
		Openers:   []string{"Our "},
		Phrases:   []string{"blah"},
	})

	assert.True(t, c.IsLegitimate("our lady choir"))
	assert.False(t, c.IsLegitimate("Our members"))
	assert.False(t, c.IsLegitimate("Chess"[:4]))
	assert.False(t, c.IsLegitimate("blah blah club"))
	assert.True(t, c.IsLegitimate("Chess Club"))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := classify.New(classify.Config{OpenerPatterns: []string{"("}})
	assert.Error(t, err)
}

func TestVerdict_String(t *testing.T) {
	assert.Equal(t, `fragment (opener: "to ")`, classify.Verdict{Rule: classify.RuleOpener, Match: "to "}.String())
	assert.Equal(t, "legitimate (default)", classify.Verdict{Legitimate: true, Rule: classify.RuleDefault}.String())
}

func TestClassify_PurposeIgnored(t *testing.T) {
	c := classify.MustNew(heuristics.Default().ClassifierConfig())

	for _, name := range []string{"Hiking Club Manoa", "Section 1. Purpose", "AB"} {
		bare := c.Classify(name, "")
		withPurpose := c.Classify(name, "Members of the club shall hike. To foster community.")
		assert.Equal(t, bare, withPurpose, name)
	}
}
