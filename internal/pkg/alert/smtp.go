package alert

import (
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSink delivers alerts as plain-text email. Configuration mirrors the
// minimal host/port/from/to shape used elsewhere for outbound SMTP; no auth
// is attempted here since internal relays are typically IP-allowlisted.
type SMTPSink struct {
	Host string
	Port int
	From string
	To   []string
}

func (s SMTPSink) Send(a Alert) error {
	if s.Host == "" || len(s.To) == 0 {
		return fmt.Errorf("smtp sink not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", a.Body)
	for k, v := range a.Fields {
		fmt.Fprintf(&b, "%s: %s\n", k, v)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: [%s] %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.From, strings.Join(s.To, ","), strings.ToUpper(string(a.Severity)), a.Subject, b.String())

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	return smtp.SendMail(addr, nil, s.From, s.To, []byte(msg))
}
