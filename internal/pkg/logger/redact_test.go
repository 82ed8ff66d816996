package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	cases := map[string]string{
		"john.doe@example.com": "jo***@example.com",
		"ab@example.com":       "***@example.com",
		"a@example.com":        "***@example.com",
		"not-an-email":         "***@***",
	}
	for in, want := range cases {
		assert.Equalf(t, want, RedactEmail(in), "RedactEmail(%q)", in)
	}
}

func TestRedactPhone(t *testing.T) {
	assert.Equal(t, "**********34", RedactPhone("+14155551234"))
	assert.Equal(t, "*", RedactPhone("1"))
}

func TestRedactLinkedIn(t *testing.T) {
	assert.Equal(t, "https://linkedin.com/in/***", RedactLinkedIn("https://linkedin.com/in/janedoe"))
	assert.Equal(t, "***", RedactLinkedIn("garbage"))
}

func TestRedactPIIValueFieldMatch(t *testing.T) {
	assert.Equal(t, "**********34", redactPIIValue("contact_phone", "+14155551234"))
	assert.Equal(t, "https://linkedin.com/in/***", redactPIIValue("linkedin_url", "https://linkedin.com/in/janedoe"))
}
