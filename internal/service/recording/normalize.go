package recording

import (
	"strings"
	"unicode"
)

// NormalizeEmail returns the dedup key for an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeQuestion lower-cases, drops punctuation and collapses whitespace so
// that "What is 42?" and "what  is 42" share a key.
func NormalizeQuestion(question string) string {
	var b strings.Builder
	b.Grow(len(question))

	pendingSpace := false
	for _, r := range strings.ToLower(question) {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = b.Len() > 0
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
