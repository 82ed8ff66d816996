package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
	"github.com/keiracom/agencyos-dispatch/internal/pkg/httpretry"
)

func TestSend_ReturnsCallID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"call_id":"call-987"}`))
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 1), srv.URL, "key")
	result, err := d.Send(context.Background(), domain.Resource{ProviderID: "+15551234567"}, channels.Address("+15557654321"), channels.Content{TemplateRef: "intro-script"})
	require.NoError(t, err)
	assert.Equal(t, "call-987", result.ProviderMsgID)
}

func TestSend_ClassifiesPermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 1), srv.URL, "key")
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "+15551234567"}, channels.Address("+15557654321"), channels.Content{TemplateRef: "x"})
	assert.ErrorIs(t, err, channels.ErrPermanent)
}
