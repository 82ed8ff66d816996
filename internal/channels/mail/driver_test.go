package mail

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

func TestSend_ReturnsJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"job_id":"job-1"}`))
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 1), srv.URL, "key")
	result, err := d.Send(context.Background(), domain.Resource{ProviderID: "sender-ref-1"}, channels.Address("addr-ref-1"), channels.Content{TemplateRef: "postcard-v1"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.ProviderMsgID)
}

func TestSend_ClassifiesTransientOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 1), srv.URL, "key")
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "sender-ref-1"}, channels.Address("addr-ref-1"), channels.Content{TemplateRef: "postcard-v1"})
	assert.ErrorIs(t, err, channels.ErrTransient)
}
