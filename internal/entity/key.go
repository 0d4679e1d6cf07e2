package entity

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// FoldName normalizes a display name for case-insensitive comparison:
// surrounding space trimmed, inner runs of whitespace collapsed, case folded.
func FoldName(name string) string {
	return folder.String(strings.Join(strings.Fields(name), " "))
}

// looseSeparators are the only punctuation LooseKey ignores. Symbols that
// tell names apart ("C++", "C#", "Club #1", "Arts & Crafts") are kept.
var looseSeparators = strings.NewReplacer(".", "", ",", "", "-", " ", "_", " ")

// LooseKey is a coarser form of FoldName used by the dedup pass. Periods and
// commas are dropped and hyphens and underscores read as spaces, so
// "Hiking Club, Manoa", "hiking-club manoa" and "A.S.U.H." / "ASUH" collide.
func LooseKey(name string) string {
	return FoldName(looseSeparators.Replace(name))
}

// ClubKey returns the natural key of a club
func ClubKey(name string) string {
	return FoldName(name)
}

// EventKey creates a stable identifier from an event's title and start time.
// The key stays the same across re-scrapes as long as both are unchanged.
func EventKey(title string, start *time.Time) string {
	when := ""
	if start != nil && !start.IsZero() {
		when = start.UTC().Format(time.RFC3339)
	}

	h := sha1.New()
	h.Write([]byte(FoldName(title) + "|" + when))
	return fmt.Sprintf("%x", h.Sum(nil))
}
