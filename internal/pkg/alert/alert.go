// Package alert carries operational signals that need a human, not a log
// line: suppression index fail-open, backpressure halts, repeated webhook
// delivery failures. It is deliberately decoupled from any one transport so
// callers can wire a Sink without the alert-producing code knowing about
// SMTP, Slack, or PagerDuty.
package alert

import (
	"fmt"
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/pkg/logger"
)

// Severity classifies how urgently an alert needs a human response.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single operational signal.
type Alert struct {
	Severity  Severity
	Subject   string
	Body      string
	Fields    map[string]string
	CreatedAt time.Time
}

// Sink delivers an Alert somewhere a human will see it.
type Sink interface {
	Send(a Alert) error
}

// LogSink writes alerts through the structured logger. It is the default
// sink and never fails, making it a safe fallback for any other Sink.
type LogSink struct{}

func (LogSink) Send(a Alert) error {
	fields := []interface{}{"severity", string(a.Severity), "subject", a.Subject}
	for k, v := range a.Fields {
		fields = append(fields, k, v)
	}
	if a.Severity == SeverityCritical {
		logger.Error(a.Body, fields...)
	} else {
		logger.Warn(a.Body, fields...)
	}
	return nil
}

// MultiSink fans an alert out to every sink, collecting (not short
// circuiting on) errors.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Send(a Alert) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.Send(a); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("alert sink failed: %w", err)
		}
	}
	return firstErr
}

var defaultSink Sink = LogSink{}

// SetDefault swaps the process-wide default sink, used by the package-level
// helpers below.
func SetDefault(s Sink) { defaultSink = s }

// Warn emits a warning-severity alert through the default sink.
func Warn(subject, body string, fields map[string]string) {
	_ = defaultSink.Send(Alert{Severity: SeverityWarning, Subject: subject, Body: body, Fields: fields, CreatedAt: time.Now()})
}

// Critical emits a critical-severity alert through the default sink.
func Critical(subject, body string, fields map[string]string) {
	_ = defaultSink.Send(Alert{Severity: SeverityCritical, Subject: subject, Body: body, Fields: fields, CreatedAt: time.Now()})
}
