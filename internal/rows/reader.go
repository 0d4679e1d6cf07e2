// Package rows turns a raw delimited text block into typed SourceRow values.
//
// The header row is not assumed to be first: a configurable number of leading
// lines is scanned and the first containing a header keyword is taken. Column
// order is resolved from that header by keyword, so sources that shuffle
// their columns still decode.
package rows

import (
	"bufio"
	"io"
	"iter"
	"strings"
)

const maxLineBytes = 1 << 20

// maxKeptParseErrors bounds the per-record errors retained for diagnostics
const maxKeptParseErrors = 50

// SourceRow is one decoded data line. Optional values are nil when the
// column is absent from the header or the cell is missing from the line.
type SourceRow struct {
	Line         int // 1-based line number in the source text
	Fields       []string
	Name         *string
	Category     *string
	ContactName  *string
	ContactEmail *string
	Purpose      *string
}

// Value returns the field value, or "" when nil
func (r SourceRow) Value(f Field) string {
	var p *string
	switch f {
	case FieldName:
		p = r.Name
	case FieldCategory:
		p = r.Category
	case FieldContactName:
		p = r.ContactName
	case FieldContactEmail:
		p = r.ContactEmail
	case FieldPurpose:
		p = r.Purpose
	}
	if p == nil {
		return ""
	}
	return *p
}

// Stats counts what the reader has consumed after the header
type Stats struct {
	Rows      int `json:"rows"`
	Blank     int `json:"blank"`
	Malformed int `json:"malformed"`
}

// Reader is a single-use, forward-only iterator over SourceRows
type Reader struct {
	schema      Schema
	scanner     *bufio.Scanner
	line        int
	headerIndex int
	header      []string
	columns     Columns
	row         SourceRow
	stats       Stats
	parseErrors []*ParseError
	err         error
	done        bool
}

// NewReader locates the header and resolves columns. It fails with
// *HeaderNotFoundError or *MissingColumnError; both are input errors that
// should abort the run.
func NewReader(r io.Reader, schema Schema) (*Reader, error) {
	schema = schema.withDefaults()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	rd := &Reader{schema: schema, scanner: sc, headerIndex: -1}

	var preview []string
	for len(preview) < schema.ScanLimit && sc.Scan() {
		rd.line++
		text := strings.TrimRight(sc.Text(), "\r")
		if rd.line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		preview = append(preview, text)

		if !schema.isHeader(text) {
			continue
		}

		header, err := Split(text, schema.Delimiter, schema.Quote)
		if err != nil {
			return nil, &ParseError{Line: rd.line, Err: err}
		}
		cols, err := schema.resolve(header, rd.line)
		if err != nil {
			return nil, err
		}

		rd.headerIndex = rd.line - 1
		rd.header = header
		rd.columns = cols
		return rd, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return nil, &HeaderNotFoundError{
		Scanned:  len(preview),
		Keywords: schema.HeaderKeywords,
		Preview:  preview,
	}
}

// Parse is NewReader over an in-memory block
func Parse(text string, schema Schema) (*Reader, error) {
	return NewReader(strings.NewReader(text), schema)
}

// HeaderIndex is the 0-based index of the header line
func (r *Reader) HeaderIndex() int {
	return r.headerIndex
}

// Header returns the raw header cells
func (r *Reader) Header() []string {
	return r.header
}

// Columns returns the resolved field-to-column mapping
func (r *Reader) Columns() Columns {
	return r.columns
}

// Next advances to the next data row, skipping blank and malformed lines
func (r *Reader) Next() bool {
	if r.done {
		return false
	}

	for r.scanner.Scan() {
		r.line++
		text := strings.TrimRight(r.scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			r.stats.Blank++
			continue
		}

		fields, err := Split(text, r.schema.Delimiter, r.schema.Quote)
		if err != nil {
			r.stats.Malformed++
			if len(r.parseErrors) < maxKeptParseErrors {
				r.parseErrors = append(r.parseErrors, &ParseError{Line: r.line, Err: err})
			}
			continue
		}
		if allBlank(fields) {
			r.stats.Blank++
			continue
		}

		r.row = r.build(fields)
		r.stats.Rows++
		return true
	}

	r.done = true
	r.err = r.scanner.Err()
	return false
}

// Row returns the row produced by the last successful Next
func (r *Reader) Row() SourceRow {
	return r.row
}

// Err returns the first I/O error encountered. Malformed lines are not errors.
func (r *Reader) Err() error {
	return r.err
}

// Stats returns the running counts
func (r *Reader) Stats() Stats {
	return r.stats
}

// ParseErrors returns the retained per-record failures
func (r *Reader) ParseErrors() []*ParseError {
	return r.parseErrors
}

// All adapts the reader to a range-over-func sequence. Like the reader
// itself it can be consumed only once.
func (r *Reader) All() iter.Seq[SourceRow] {
	return func(yield func(SourceRow) bool) {
		for r.Next() {
			if !yield(r.Row()) {
				return
			}
		}
	}
}

func (r *Reader) build(fields []string) SourceRow {
	row := SourceRow{Line: r.line, Fields: fields}
	row.Name = r.cell(fields, FieldName)
	row.Category = r.cell(fields, FieldCategory)
	row.ContactName = r.cell(fields, FieldContactName)
	row.ContactEmail = r.cell(fields, FieldContactEmail)
	row.Purpose = r.cell(fields, FieldPurpose)
	return row
}

func (r *Reader) cell(fields []string, f Field) *string {
	idx, ok := r.columns[f]
	if !ok || idx >= len(fields) {
		return nil
	}
	v := strings.TrimSpace(fields[idx])
	return &v
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
