package webtpl

import "strings"

var htmlReplacer = strings.NewReplacer(
	`"`, "&quot;",
	"<", "&lt;",
	">", "&gt;",
	"&", "&amp;",
)

// EscapeHTML replaces the characters " < > & with their HTML entities.
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

// DecodeFormValue decodes a form-encoded value: '+' becomes a space, %XX
// becomes the byte it encodes, carriage returns are dropped and trailing line
// breaks are trimmed. A '%' not followed by two hex digits is kept as is.
func DecodeFormValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '+':
			b.WriteByte(' ')
		case '%':
			if i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
				b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
				i += 2
			} else {
				b.WriteByte(c)
			}
		case '\r':
		default:
			b.WriteByte(c)
		}
	}
	return strings.TrimRight(b.String(), "\r\n")
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}
