package util

import "strings"

// EscapeString quotes s for a GNU as .string directive. Non-printable bytes use
// three-digit octal escapes: a \x escape would swallow any hex digits that follow.
func EscapeString(s string) string {
	sb := strings.Builder{}

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case c == '"' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString("\\n")
		case c == '\t':
			sb.WriteString("\\t")
		case c >= 0x20 && c < 0x7f:
			sb.WriteByte(c)
		default:
			sb.Write([]byte{'\\', '0' + c>>6, '0' + c>>3&7, '0' + c&7})
		}
	}

	return sb.String()
}
