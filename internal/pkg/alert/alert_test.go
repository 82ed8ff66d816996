package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	alerts []Alert
}

func (r *recordingSink) Send(a Alert) error {
	r.alerts = append(r.alerts, a)
	return nil
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{Sinks: []Sink{a, b}}

	err := m.Send(Alert{Severity: SeverityWarning, Subject: "test"})
	require.NoError(t, err)
	assert.Len(t, a.alerts, 1)
	assert.Len(t, b.alerts, 1)
}

func TestLogSinkNeverErrors(t *testing.T) {
	err := (LogSink{}).Send(Alert{Severity: SeverityCritical, Subject: "x", Body: "y"})
	assert.NoError(t, err)
}

func TestSMTPSinkRequiresConfig(t *testing.T) {
	s := SMTPSink{}
	err := s.Send(Alert{Subject: "x"})
	assert.Error(t, err)
}
