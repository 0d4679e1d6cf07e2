// Package calendar renders stored events as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pfrederiksen/club-sync/internal/entity"
)

// Defaults
const (
	DefaultName     = "Campus Events"
	DefaultDomain   = "club-sync"
	DefaultDuration = 2 * time.Hour
	maxLineOctets   = 75
)

// Options configures the feed
type Options struct {
	Name     string        // X-WR-CALNAME
	Domain   string        // right-hand side of each UID
	Duration time.Duration // assumed length of every event
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = DefaultName
	}
	if o.Domain == "" {
		o.Domain = DefaultDomain
	}
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	return o
}

// GenerateICS generates an iCalendar document for events. Events without a
// start time or not yet approved are left out. now stamps every entry.
func GenerateICS(events []entity.Event, opts Options, now time.Time) string {
	opts = opts.withDefaults()

	var ics strings.Builder
	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//club-sync//club-sync//EN\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")
	writeLine(&ics, "X-WR-CALNAME:"+escapeICS(opts.Name))

	for i := range events {
		evt := &events[i]
		if evt.StartTime == nil || evt.Status != entity.StatusApproved {
			continue
		}
		writeEvent(&ics, evt, opts, now)
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

func writeEvent(ics *strings.Builder, evt *entity.Event, opts Options, now time.Time) {
	start := evt.StartTime.UTC()

	ics.WriteString("BEGIN:VEVENT\r\n")

	// UID - stable across re-scrapes
	writeLine(ics, fmt.Sprintf("UID:%s@%s", evt.NaturalKey, opts.Domain))
	writeLine(ics, "DTSTAMP:"+formatICSTime(now))
	writeLine(ics, "DTSTART:"+formatICSTime(start))
	writeLine(ics, "DTEND:"+formatICSTime(start.Add(opts.Duration)))
	writeLine(ics, "SUMMARY:"+escapeICS(evt.Title))

	description := evt.Description
	if evt.Sponsor != "" {
		description = fmt.Sprintf("Sponsor: %s\n%s", evt.Sponsor, description)
	}
	if evt.TimeText != "" {
		description = fmt.Sprintf("When: %s\n%s", evt.TimeText, description)
	}
	if description != "" {
		writeLine(ics, "DESCRIPTION:"+escapeICS(description))
	}
	if evt.Location != "" {
		writeLine(ics, "LOCATION:"+escapeICS(evt.Location))
	}
	if evt.CategoryLabel != "" {
		writeLine(ics, "CATEGORIES:"+escapeICS(evt.CategoryLabel))
	}
	if evt.SourceURL != "" {
		writeLine(ics, "URL:"+evt.SourceURL)
	}

	ics.WriteString("STATUS:CONFIRMED\r\n")

	ics.WriteString("SEQUENCE:0\r\n")
	writeLine(ics, "LAST-MODIFIED:"+formatICSTime(evt.UpdatedAt))
	ics.WriteString("TRANSP:OPAQUE\r\n")
	ics.WriteString("END:VEVENT\r\n")
}

// writeLine folds content lines longer than 75 octets, never splitting a
// UTF-8 sequence
func writeLine(ics *strings.Builder, line string) {
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		ics.WriteString(line[:cut])
		ics.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineOctets - 1 // continuation lines start with a space
	}
	ics.WriteString(line)
	ics.WriteString("\r\n")
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// Replace special characters according to RFC 5545
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
