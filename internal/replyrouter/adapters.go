package replyrouter

import (
	"time"

	"github.com/keiracom/agencyos-dispatch/internal/pkg/alert"
)

// AlertAdapter adapts the shared alert.Sink to the Router's narrower
// AlertSink contract, so cmd/ wiring only needs one alert sink for the
// whole process instead of one per consuming package.
type AlertAdapter struct {
	Sink alert.Sink
}

// Alert satisfies AlertSink.
func (a AlertAdapter) Alert(subject, body string, fields map[string]string) {
	_ = a.Sink.Send(alert.Alert{
		Severity:  alert.SeverityWarning,
		Subject:   subject,
		Body:      body,
		Fields:    fields,
		CreatedAt: time.Now(),
	})
}
