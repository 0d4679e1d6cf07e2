package entity

import (
	"regexp"
	"strings"
	"time"
)

// dateLayouts are tried in order by ParseDate
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"Monday, January 2, 2006 3:04 PM",
	"Monday, January 2, 2006",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3:04pm",
	"January 2, 2006",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006",
	"Jan 02 2006",
	"Jan 2 2006",
	"01/02/2006 3:04 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1.2.06",
	"01.02.06",
}

// yearlessLayouts get the reference year attached
var yearlessLayouts = []string{
	"Jan 02",
	"Jan 2",
	"January 2",
}

var ordinalSuffix = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)

// ParseDate attempts to parse scraped date text into a time.Time.
// Returns nil if parsing fails. Formats without a year use the year of now.
// Supports ISO dates, "March 13, 2026 6:00 PM", "Mar 13 2026", "4.4.26",
// "02/15/26" and "Jan 24".
func ParseDate(dateText string, now time.Time) *time.Time {
	text := strings.TrimSpace(dateText)
	if text == "" {
		return nil
	}
	text = ordinalSuffix.ReplaceAllString(text, "$1")
	text = strings.Join(strings.Fields(text), " ")

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}

	for _, layout := range yearlessLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &t
		}
	}

	// Could not parse
	return nil
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2})?`),
	regexp.MustCompile(`(?i)(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}(?:\s+\d{1,2}:\d{2}\s*[AaPp][Mm])?`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4}`),
	regexp.MustCompile(`\d{1,2}\.\d{1,2}\.\d{2,4}`),
	regexp.MustCompile(`(?i)(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2}`),
}

// ExtractDate finds the first date-like substring of text.
// Looks for patterns like "2026-04-04", "April 4, 2026", "02/15/26", "4.4.26", "Jan 24".
func ExtractDate(text string) string {
	for _, p := range datePatterns {
		if match := p.FindString(text); match != "" {
			return strings.TrimSpace(match)
		}
	}
	return ""
}
