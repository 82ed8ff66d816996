package logger

import "strings"

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone masks all but the last 2 digits of a phone number.
// "+14155551234" → "**********34"
func RedactPhone(phone string) string {
	if len(phone) <= 2 {
		return strings.Repeat("*", len(phone))
	}
	keep := phone[len(phone)-2:]
	return strings.Repeat("*", len(phone)-2) + keep
}

// RedactLinkedIn masks the last path segment of a LinkedIn profile URL.
// "https://linkedin.com/in/janedoe" → "https://linkedin.com/in/***"
func RedactLinkedIn(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 || idx == len(url)-1 {
		return "***"
	}
	return url[:idx+1] + "***"
}
