// Package phone normalizes free-form phone numbers into an E.164-like form.
package phone

import "strings"

// Normalize strips everything but digits and "+" and prefixes the result with
// a country code. Ten-digit numbers are assumed to be North American.
// Returns "" when no digits remain.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(raw, "+"):
		return "+" + digits
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits
	case len(digits) == 10:
		return "+1" + digits
	default:
		return "+" + digits
	}
}
