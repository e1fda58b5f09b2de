package certificate

import "strings"

// Sanitize drops every rune outside printable ASCII, keeping tab, newline and
// carriage return. The core PDF fonts only cover single-byte encodings, so
// anything else would corrupt the document.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r >= 0x20 && r <= 0x7e:
			return r
		}
		return -1
	}, s)
}
