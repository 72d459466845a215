package logger

import (
	"regexp"
	"strings"
)

// phoneRegex matches international phone numbers with 8+ digits, with or
// without a leading + and common separators.
var phoneRegex = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)

// RedactPhone masks a phone number for safe logging, keeping the country
// prefix and the last two digits: "+15551234567" → "+1555***67".
// Inputs too short to be real numbers are fully masked.
func RedactPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	if len(digits) < 8 {
		return "***"
	}
	prefix := ""
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
	}
	return prefix + digits[:4] + "***" + digits[len(digits)-2:]
}

// RedactText masks every phone-number-shaped run in free text. Channel
// error strings often echo the recipient back, so anything built from
// them goes through here before logging.
func RedactText(s string) string {
	return phoneRegex.ReplaceAllStringFunc(s, RedactPhone)
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	// Redact fields that carry recipient or account numbers
	if strings.Contains(key, "phone") || strings.Contains(key, "recipient") {
		return RedactText(val)
	}
	// Redact any embedded numbers in generic fields only when they look
	// like full international numbers (avoid mangling ids and counts)
	if strings.Contains(val, "+") {
		return RedactText(val)
	}
	return val
}
