package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

var stamp = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func at(year int, month time.Month, day, hour int) *time.Time {
	t := time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func approved(title string, start *time.Time) entity.Event {
	return entity.Event{
		Title:      title,
		StartTime:  start,
		NaturalKey: entity.EventKey(title, start),
		Status:     entity.StatusApproved,
		CreatedAt:  stamp,
		UpdatedAt:  stamp,
	}
}

func TestGenerateICS(t *testing.T) {
	evt := approved("Lei Making Night", at(2026, time.April, 4, 18))
	evt.Description = "Join us for lei making."
	evt.Location = "Campus Center 310, Room B"
	evt.Sponsor = "Hawaiian Student Association"
	evt.CategoryLabel = "Cultural/Ethnic"
	evt.SourceURL = "https://events.example.edu/e/42"

	ics := GenerateICS([]entity.Event{evt}, Options{Name: "UH Events", Domain: "events.example.edu"}, stamp)

	// Check required ICS fields
	requiredFields := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//club-sync//club-sync//EN",
		"X-WR-CALNAME:UH Events",
		"BEGIN:VEVENT",
		"UID:" + evt.NaturalKey + "@events.example.edu",
		"DTSTAMP:20260110T120000Z",
		"DTSTART:20260404T180000Z",
		"DTEND:20260404T200000Z",
		"SUMMARY:Lei Making Night",
		"DESCRIPTION:Sponsor: Hawaiian Student Association\\nJoin us for lei making.",
		"LOCATION:Campus Center 310\\, Room B", // Comma is escaped
		"CATEGORIES:Cultural/Ethnic",
		"URL:https://events.example.edu/e/42",
		"STATUS:CONFIRMED",
		"END:VEVENT",
		"END:VCALENDAR",
	}

	for _, field := range requiredFields {
		if !strings.Contains(ics, field) {
			t.Errorf("ICS missing required field: %s", field)
		}
	}

	// Check that lines end with \r\n
	for _, line := range strings.Split(strings.TrimSuffix(ics, "\r\n"), "\r\n") {
		if strings.Contains(line, "\n") {
			t.Errorf("line %q contains a bare newline", line)
		}
	}
}

func TestGenerateICS_SkipsUndatedAndPending(t *testing.T) {
	pending := approved("Draft Event", at(2026, time.May, 1, 9))
	pending.Status = entity.StatusPending

	events := []entity.Event{
		approved("Event 1", at(2026, time.March, 15, 9)),
		approved("Undated", nil),
		pending,
		approved("Event 2", at(2026, time.April, 20, 9)),
	}

	ics := GenerateICS(events, Options{}, stamp)

	if n := strings.Count(ics, "BEGIN:VEVENT"); n != 2 {
		t.Errorf("Expected 2 BEGIN:VEVENT, got %d", n)
	}
	if strings.Contains(ics, "Undated") || strings.Contains(ics, "Draft Event") {
		t.Error("undated and pending events should be left out")
	}
	if !strings.Contains(ics, "X-WR-CALNAME:"+DefaultName) {
		t.Error("Missing default calendar name")
	}
}

func TestGenerateICS_Empty(t *testing.T) {
	ics := GenerateICS(nil, Options{}, stamp)

	if !strings.HasPrefix(ics, "BEGIN:VCALENDAR\r\n") || !strings.HasSuffix(ics, "END:VCALENDAR\r\n") {
		t.Errorf("empty feed should still be a calendar, got %q", ics)
	}
	if strings.Contains(ics, "BEGIN:VEVENT") {
		t.Error("empty feed should have no events")
	}
}

func TestGenerateICS_SpecialCharacters(t *testing.T) {
	evt := approved("Test Event; With, Special\\Characters\nAnd Newlines", at(2026, time.April, 20, 9))

	ics := GenerateICS([]entity.Event{evt}, Options{}, stamp)

	want := `SUMMARY:Test Event\; With\, Special\\Characters\nAnd Newlines`
	if !strings.Contains(ics, want) {
		t.Errorf("ICS should contain %q", want)
	}
}

func TestWriteLine_Folding(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"ascii", "DESCRIPTION:" + strings.Repeat("a", 200)},
		{"multibyte", "DESCRIPTION:" + strings.Repeat("ʻōlelo ", 40)},
		{"short", "SUMMARY:Hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			writeLine(&b, tt.line)

			lines := strings.Split(strings.TrimSuffix(b.String(), "\r\n"), "\r\n")
			for i, l := range lines {
				if len(l) > maxLineOctets {
					t.Errorf("line %d is %d octets", i, len(l))
				}
				if i > 0 && !strings.HasPrefix(l, " ") {
					t.Errorf("continuation line %d should start with a space", i)
				}
			}

			unfolded := strings.ReplaceAll(strings.TrimSuffix(b.String(), "\r\n"), "\r\n ", "")
			if unfolded != tt.line {
				t.Errorf("unfolded line differs from input")
			}
		})
	}
}
