package ingest

import (
	"fmt"
	"strings"
)

// Unescape decodes one quoted literal. The field must start and end with '"'
// and every '"' in between must be doubled. The content is returned with the
// doubled quotes collapsed.
func Unescape(field string) (string, error) {
	if len(field) < 2 || field[0] != '"' || field[len(field)-1] != '"' {
		return "", fmt.Errorf("%w: the string %q is not enclosed in quotes", ErrQuoteFormat, field)
	}

	body := field[1 : len(field)-1]

	// Fast path: nothing to collapse
	if strings.IndexByte(body, '"') < 0 {
		return body, nil
	}

	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != '"' {
			b.WriteByte(body[i])
			continue
		}
		if i+1 >= len(body) || body[i+1] != '"' {
			return "", fmt.Errorf("%w: the string %q contains an unpaired quote", ErrQuoteFormat, field)
		}
		b.WriteByte('"')
		i++
	}
	return b.String(), nil
}

// Quote encodes s as a literal that Unescape accepts
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func unescapeAll(fields []string) ([]string, error) {
	out := make([]string, len(fields))
	for i, f := range fields {
		s, err := Unescape(f)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
