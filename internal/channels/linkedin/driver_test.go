package linkedin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

type fakeSeats struct {
	err error
}

func (f *fakeSeats) TokenSourceFor(ctx context.Context, seatID string) (oauth2.TokenSource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}), nil
}

func TestSend_ReturnsProviderMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"message_id":"li-1"}`))
	}))
	defer srv.Close()

	d := New(&fakeSeats{}, srv.URL)
	result, err := d.Send(context.Background(), domain.Resource{ProviderID: "seat-1"}, channels.Address("https://linkedin.com/in/lead"), channels.Content{Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "li-1", result.ProviderMsgID)
}

func TestSend_SeatAuthFailureIsTransient(t *testing.T) {
	d := New(&fakeSeats{err: errors.New("seat reauth required")}, "https://api.linkedin.com")
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "seat-1"}, channels.Address("https://linkedin.com/in/lead"), channels.Content{Body: "hi"})
	assert.ErrorIs(t, err, channels.ErrTransient)
}

func TestSend_ClassifiesPermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d := New(&fakeSeats{}, srv.URL)
	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "seat-1"}, channels.Address("https://linkedin.com/in/lead"), channels.Content{Body: "hi"})
	assert.ErrorIs(t, err, channels.ErrPermanent)
}
