package email

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keiracom/agencyos-dispatch/internal/channels"
	"github.com/keiracom/agencyos-dispatch/internal/domain"
)

type fakeSender struct {
	out      *sesv2.SendEmailOutput
	err      error
	gotInput *sesv2.SendEmailInput
}

func (f *fakeSender) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.gotInput = params
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestSend_InjectsTrackingPixelAndReturnsProviderMessageID(t *testing.T) {
	fs := &fakeSender{out: &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}}
	d := &Driver{client: fs, trackingURL: "https://track.example.com", signingKey: "secret"}

	resource := domain.Resource{ID: "res-1", ProviderID: "sender@tenantdomain.com"}
	result, err := d.Send(context.Background(), resource, channels.Address("lead@example.com"), channels.Content{
		Subject: "Hi", Body: "<html><body>hello</body></html>",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", result.ProviderMsgID)

	html := *fs.gotInput.Content.Simple.Body.Html.Data
	assert.Contains(t, html, "track.example.com/track/open")
}

func TestSend_ClassifiesPermanentVsTransientErrors(t *testing.T) {
	fs := &fakeSender{err: errors.New("MessageRejected: address bounced")}
	d := &Driver{client: fs, trackingURL: "https://track.example.com", signingKey: "secret"}

	_, err := d.Send(context.Background(), domain.Resource{ProviderID: "a@b.com"}, channels.Address("x@y.com"), channels.Content{})
	assert.ErrorIs(t, err, channels.ErrPermanent)

	fs.err = errors.New("InternalFailure: try again")
	_, err = d.Send(context.Background(), domain.Resource{ProviderID: "a@b.com"}, channels.Address("x@y.com"), channels.Content{})
	assert.ErrorIs(t, err, channels.ErrTransient)
}

func TestInjectTracking_AppendsWhenNoBodyTag(t *testing.T) {
	d := &Driver{trackingURL: "https://t.example.com", signingKey: "k"}
	out := d.injectTracking("<p>hi</p>", "msg-1", "lead@example.com")
	assert.Contains(t, out, "<p>hi</p>")
	assert.Contains(t, out, "t.example.com")
}
