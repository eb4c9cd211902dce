package util

import (
	"regexp"
)

var (
	uuidRegex  = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	phoneRegex = regexp.MustCompile(`^\+\d{7,15}$`)
	pinRegex   = regexp.MustCompile(`^\d{4}$`)
)

func IsValidUUID(s string) bool {
	if s == "" {
		return false
	}
	return uuidRegex.MatchString(s)
}

// IsValidPhone checks E.164 format: + followed by 7 to 15 digits.
func IsValidPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

// IsValidPin checks for exactly 4 digits.
func IsValidPin(s string) bool {
	return pinRegex.MatchString(s)
}
