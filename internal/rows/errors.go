package rows

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminatedQuote is returned by Split when a quoted span never closes
var ErrUnterminatedQuote = errors.New("unterminated quoted field")

// HeaderNotFoundError means none of the scanned lines carried a header keyword
type HeaderNotFoundError struct {
	Scanned  int
	Keywords []string
	Preview  []string
}

func (e *HeaderNotFoundError) Error() string {
	return fmt.Sprintf("header not found in first %d lines (keywords: %s)", e.Scanned, strings.Join(e.Keywords, ", "))
}

// Diagnostics lists the scanned lines, truncated
func (e *HeaderNotFoundError) Diagnostics() string {
	var b strings.Builder
	for i, line := range e.Preview {
		fmt.Fprintf(&b, "line %d: %s\n", i+1, truncate(line, 120))
	}
	return strings.TrimRight(b.String(), "\n")
}

// MissingColumnError means a required field has no matching header column
type MissingColumnError struct {
	Field  Field
	Header []string
	Line   int
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q missing from header on line %d", e.Field, e.Line)
}

// Diagnostics shows the header that was found
func (e *MissingColumnError) Diagnostics() string {
	return "header: " + strings.Join(e.Header, " | ")
}

// ParseError is a per-record failure; the reader skips the line and counts it
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
