// Package validator provides field-level validation for passenger details
// collected over the messaging channel.
package validator

import (
	"regexp"
	"time"
)

const dateLayout = "2006-01-02"

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRegex = regexp.MustCompile(`^[0-9]+$`)
)

// ValidDate reports whether the input is a strict YYYY-MM-DD calendar date.
// Inputs that parse but do not round-trip (e.g. "2025-2-1") are rejected.
func ValidDate(input string) bool {
	t, err := time.Parse(dateLayout, input)
	if err != nil {
		return false
	}
	return t.Format(dateLayout) == input
}

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(input string) (time.Time, bool) {
	if !ValidDate(input) {
		return time.Time{}, false
	}
	t, _ := time.Parse(dateLayout, input)
	return t, true
}

// ValidEmail reports whether the input has a basic local@domain.tld shape.
func ValidEmail(input string) bool {
	return emailRegex.MatchString(input)
}

// ValidPhone reports whether the input is all digits and at least 8 long.
func ValidPhone(input string) bool {
	return len(input) >= 8 && phoneRegex.MatchString(input)
}
