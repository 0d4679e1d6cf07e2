package rows

import "strings"

// Split breaks one line into fields. Delimiters inside a quoted span are
// literal, a doubled quote inside a quoted span is a literal quote, and a
// quoted span left open at end of line is an error.
func Split(line string, delim, quote rune) ([]string, error) {
	var (
		fields  []string
		field   strings.Builder
		inQuote bool
	)

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inQuote && r == quote:
			if i+1 < len(runes) && runes[i+1] == quote {
				field.WriteRune(quote)
				i++
				continue
			}
			inQuote = false
		case inQuote:
			field.WriteRune(r)
		case r == quote:
			inQuote = true
		case r == delim:
			fields = append(fields, field.String())
			field.Reset()
		default:
			field.WriteRune(r)
		}
	}

	if inQuote {
		return nil, ErrUnterminatedQuote
	}
	return append(fields, field.String()), nil
}
