package sms

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

func TestSend_ReturnsProviderMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"sms-123"}`))
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 3), srv.URL, "key", "")
	result, err := d.Send(context.Background(), domain.Resource{ProviderID: "+15551234567"}, channels.Address("+15557654321"), channels.Content{Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "sms-123", result.ProviderMsgID)
}

func TestSend_ClassifiesPermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid number"}`))
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 0), srv.URL, "key", "")
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "+15551234567"}, channels.Address("bad"), channels.Content{Body: "hi"})
	assert.ErrorIs(t, err, channels.ErrPermanent)
}

func TestSend_ClassifiesTransientOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := New(httpretry.NewRetryClient(srv.Client(), 0), srv.URL, "key", "")
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "+15551234567"}, channels.Address("+15557654321"), channels.Content{Body: "hi"})
	assert.ErrorIs(t, err, channels.ErrTransient)
}

func TestSend_RejectsNumberOnDoNotCallRegistry(t *testing.T) {
	sendCalled := false
	dncr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"registered":true}`))
	}))
	defer dncr.Close()
	send := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendCalled = true
		w.Write([]byte(`{"message_id":"sms-1"}`))
	}))
	defer send.Close()

	d := New(httpretry.NewRetryClient(send.Client(), 0), send.URL, "key", dncr.URL)
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "+15551234567"}, channels.Address("+15557654321"), channels.Content{Body: "hi"})
	assert.ErrorIs(t, err, channels.ErrRejectedDNCR)
	assert.False(t, sendCalled, "expected send provider not to be called once DNCR rejects")
}

func TestIngest_ParsesInboundReply(t *testing.T) {
	d := New(nil, "", "", "")
	payload := []byte(`{"MessageSid":"sms-99","From":"+15557654321","Body":"stop texting me"}`)
	ev, ok, err := d.Ingest(payload)
	require.NoError(t, err)
	require.True(t, ok, "expected ok=true for a reply payload")
	assert.Equal(t, "reply", ev.Kind)
	assert.Equal(t, "+15557654321", ev.LeadRef)
	assert.Equal(t, "sms-99", ev.ProviderMsgID)
}

func TestIngest_IgnoresDeliveredStatusCallback(t *testing.T) {
	d := New(nil, "", "", "")
	payload := []byte(`{"MessageSid":"sms-100","MessageStatus":"delivered"}`)
	_, ok, err := d.Ingest(payload)
	require.NoError(t, err)
	assert.False(t, ok, "expected delivered status callback to be ignored")
}
