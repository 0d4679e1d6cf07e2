package rows

import "strings"

// Field identifies a target attribute of a SourceRow
type Field string

const (
	FieldName         Field = "name"
	FieldCategory     Field = "category"
	FieldContactName  Field = "contact_name"
	FieldContactEmail Field = "contact_email"
	FieldPurpose      Field = "purpose"
)

var knownFields = map[Field]bool{
	FieldName:         true,
	FieldCategory:     true,
	FieldContactName:  true,
	FieldContactEmail: true,
	FieldPurpose:      true,
}

// IsField reports whether f is one of the known SourceRow fields
func IsField(f Field) bool {
	return knownFields[f]
}

// DefaultScanLimit is how many leading lines are searched for the header
const DefaultScanLimit = 20

// FieldSpec maps one field to the header keywords that identify its column.
// Keywords are tried in order; the first unclaimed column containing the
// keyword (case-insensitive) is taken.
type FieldSpec struct {
	Field    Field
	Keywords []string
	Required bool
}

// Schema describes how to locate and decode a tabular block
type Schema struct {
	HeaderKeywords []string
	Fields         []FieldSpec // resolved in order, more specific fields first
	Delimiter      rune        // default ','
	Quote          rune        // default '"'
	ScanLimit      int         // default DefaultScanLimit
}

func (s Schema) withDefaults() Schema {
	if s.Delimiter == 0 {
		s.Delimiter = ','
	}
	if s.Quote == 0 {
		s.Quote = '"'
	}
	if s.ScanLimit <= 0 {
		s.ScanLimit = DefaultScanLimit
	}
	return s
}

// isHeader reports whether line contains any of the header keywords
func (s Schema) isHeader(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range s.HeaderKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Columns is the resolved field-to-column-index mapping
type Columns map[Field]int

// resolve maps schema fields onto header columns
func (s Schema) resolve(header []string, headerLine int) (Columns, error) {
	lowered := make([]string, len(header))
	for i, h := range header {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	claimed := make([]bool, len(header))
	cols := Columns{}

	for _, spec := range s.Fields {
		idx := -1
		for _, kw := range spec.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			for i, h := range lowered {
				if !claimed[i] && strings.Contains(h, kw) {
					idx = i
					break
				}
			}
			if idx >= 0 {
				break
			}
		}

		if idx < 0 {
			if spec.Required {
				return nil, &MissingColumnError{Field: spec.Field, Header: header, Line: headerLine}
			}
			continue
		}
		claimed[idx] = true
		cols[spec.Field] = idx
	}

	return cols, nil
}
