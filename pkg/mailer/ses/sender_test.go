package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

type fakeAPI struct {
	input *sesv2.SendEmailInput
	out   *sesv2.SendEmailOutput
	err   error
}

func (f *fakeAPI) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestSender_Send(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{out: &sesv2.SendEmailOutput{MessageId: aws.String("ses-123")}}
	s := NewWithAPI(api, Config{SenderEmail: "noreply@example.com", SenderName: "Example", ConfigurationSet: "tracking"})

	id, err := s.Send(context.Background(), &mailer.Email{
		To:      []string{"jane@example.com"},
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
		Text:    "Hi",
		ReplyTo: "support@example.com",
		Tags:    mailer.Tags{"log_id": "rec-1", "transactional": struct{}{}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-123", id)

	in := api.input
	require.NotNil(t, in)
	assert.Equal(t, "Example <noreply@example.com>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"jane@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hello", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "Hi", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, []string{"support@example.com"}, in.ReplyToAddresses)
	assert.Equal(t, "tracking", aws.ToString(in.ConfigurationSetName))
	require.Len(t, in.EmailTags, 2)
	assert.Equal(t, "log_id", aws.ToString(in.EmailTags[0].Name))
	assert.Equal(t, "rec-1", aws.ToString(in.EmailTags[0].Value))
	assert.Equal(t, "true", aws.ToString(in.EmailTags[1].Value))
}

func TestSender_Send_Attachments(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	s := NewWithAPI(api, Config{})

	_, err := s.Send(context.Background(), &mailer.Email{
		To:          []string{"jane@example.com"},
		Attachments: []mailer.Attachment{{Filename: "a.txt"}},
	})
	require.ErrorIs(t, err, ErrAttachmentsUnsupported)
	assert.True(t, mailer.IsFatal(err))
	assert.Nil(t, api.input)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{name: "message rejected", err: &smithy.GenericAPIError{Code: "MessageRejected", Fault: smithy.FaultClient}, fatal: true},
		{name: "unverified domain", err: &types.MailFromDomainNotVerifiedException{Message: aws.String("not verified")}, fatal: true},
		{name: "throttled", err: &types.TooManyRequestsException{Message: aws.String("slow down")}},
		{name: "quota", err: &types.LimitExceededException{Message: aws.String("daily quota")}},
		{name: "server fault", err: &smithy.GenericAPIError{Code: "InternalFailure", Fault: smithy.FaultServer}},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "unknown", err: errors.New("eof")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := classify(tt.err)
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.fatal, mailer.IsFatal(err))
		})
	}
}
