package util

import (
	"fmt"
	"regexp"
)

// MinPhoneDigits is the shortest accepted canonical phone number.
const MinPhoneDigits = 6

var nonDigitRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizePhone strips everything but digits from a phone number or
// WhatsApp address ("whatsapp:+971 50..." becomes "97150...") and rejects
// results shorter than MinPhoneDigits.
func CanonicalizePhone(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := nonDigitRegex.ReplaceAllString(raw, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", raw)
	}
	if len(canonical) < MinPhoneDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneDigits)
	}
	return canonical, nil
}
