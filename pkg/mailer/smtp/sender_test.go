package smtp

import (
	"bytes"
	"context"
	"errors"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func render(t *testing.T, m *gomail.Message) string {
	t.Helper()

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestSender_Send(t *testing.T) {
	t.Parallel()

	d := &fakeDialer{}
	s := NewWithDialer(d, Config{SenderEmail: "ops@example.com", SenderName: "Ops"})

	id, err := s.Send(context.Background(), &mailer.Email{
		To:      []string{"jane@example.com"},
		Subject: "Delivery failed",
		Text:    "plain body",
		HTML:    "<p>html body</p>",
		Tags:    mailer.Tags{"log_id": "rec-1", "critical": struct{}{}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, d.sent, 1)

	raw := render(t, d.sent[0])
	assert.Contains(t, raw, "From: \"Ops\" <ops@example.com>")
	assert.Contains(t, raw, "To: jane@example.com")
	assert.Contains(t, raw, "Subject: Delivery failed")
	assert.Contains(t, raw, "Message-ID: <"+id+"@example.com>")
	assert.Contains(t, raw, TagsHeader+": critical; log_id=rec-1")
	assert.Contains(t, raw, "plain body")
	assert.Contains(t, raw, "html body")
}

func TestSender_Send_Errors(t *testing.T) {
	t.Parallel()

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		d := &fakeDialer{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewWithDialer(d, Config{}).Send(ctx, &mailer.Email{To: []string{"a@example.com"}})
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, mailer.IsTransient(err))
		assert.Empty(t, d.sent)
	})

	t.Run("mailbox unavailable is fatal", func(t *testing.T) {
		t.Parallel()

		d := &fakeDialer{err: &textproto.Error{Code: 550, Msg: "5.1.1 user unknown"}}
		_, err := NewWithDialer(d, Config{}).Send(context.Background(), &mailer.Email{To: []string{"a@example.com"}, HTML: "x"})
		assert.True(t, mailer.IsFatal(err))
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{name: "greylisted", err: &textproto.Error{Code: 451, Msg: "try again later"}},
		{name: "rejected", err: &textproto.Error{Code: 554, Msg: "rejected"}, fatal: true},
		{name: "flattened 5xx", err: errors.New("gomail: could not send email 1: 550 mailbox unavailable"), fatal: true},
		{name: "flattened 4xx", err: errors.New("gomail: could not send email 1: 421 too busy")},
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

func TestEncodeTags(t *testing.T) {
	t.Parallel()

	assert.Empty(t, encodeTags(nil))
	assert.Equal(t, "a; b=2", encodeTags(mailer.Tags{"b": 2, "a": struct{}{}}))
	assert.Equal(t, "example.com", messageDomain("x@example.com"))
	assert.Equal(t, "localhost", messageDomain(""))
}
