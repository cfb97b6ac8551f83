package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/pkg/mailer"
)

type recordingPublisher struct {
	err    error
	events []Event
	mu     sync.Mutex
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, subject, body string) error {
	return m.Called(ctx, subject, body).Error(0)
}

type fakeWriter struct {
	err    error
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newCounter(t *testing.T) *FailureCounter {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewFailureCounter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
}

func createRecord(t *testing.T, store email.Store, status email.Status) *email.Record {
	t.Helper()
	rec := &email.Record{
		ID:             uuid.New(),
		RecipientEmail: "jane@example.com",
		EventName:      "password.reset",
		Status:         status,
	}
	_, err := store.Create(context.Background(), rec)
	require.NoError(t, err)
	return rec
}

func TestEscalator_Escalate(t *testing.T) {
	t.Parallel()

	t.Run("marks record failed and notifies for critical events", func(t *testing.T) {
		t.Parallel()

		store := email.NewMemoryStore()
		rec := createRecord(t, store, email.StatusSending)
		pub := &recordingPublisher{}
		notifier := &mockNotifier{}
		notifier.On("Notify", mock.Anything, "[courier] password.reset failed: fatal", mock.MatchedBy(func(body string) bool {
			return strings.Contains(body, "mailbox unavailable")
		})).Return(nil).Once()
		m := metrics.New()

		esc := New(store, Config{CriticalEvents: []string{"password.reset"}},
			WithPublisher(pub), WithNotifier(notifier), WithMetrics(m))

		err := esc.Escalate(context.Background(), Failure{
			RecordID:  rec.ID,
			Event:     "password.reset",
			Recipient: "jane@example.com",
			Reason:    ReasonFatal,
			Attempt:   1,
			Err:       errors.New("550 mailbox unavailable"),
		})
		require.NoError(t, err)

		got, err := store.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, email.StatusFailed, got.Status)
		assert.Equal(t, "550 mailbox unavailable", got.Error)
		assert.Equal(t, ReasonFatal, got.Metadata["failure_reason"])
		assert.Len(t, got.Metadata[email.MetaAttempts], 1)

		require.Len(t, pub.events, 1)
		assert.Equal(t, EventTypeFailed, pub.events[0].Type)
		assert.Equal(t, rec.ID.String(), pub.events[0].RecordID)
		notifier.AssertExpectations(t)
	})

	t.Run("non critical events do not notify", func(t *testing.T) {
		t.Parallel()

		store := email.NewMemoryStore()
		rec := createRecord(t, store, email.StatusQueued)
		notifier := &mockNotifier{}

		esc := New(store, Config{CriticalEvents: []string{"user.invited"}}, WithNotifier(notifier))
		require.NoError(t, esc.Escalate(context.Background(), Failure{
			RecordID: rec.ID, Event: "password.reset", Reason: ReasonExhausted,
		}))
		notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("record that moved on is not escalated", func(t *testing.T) {
		t.Parallel()

		store := email.NewMemoryStore()
		rec := createRecord(t, store, email.StatusSent)
		pub := &recordingPublisher{}

		esc := New(store, Config{}, WithPublisher(pub))
		require.NoError(t, esc.Escalate(context.Background(), Failure{
			RecordID: rec.ID, Event: "password.reset", Reason: ReasonAbandoned,
		}))

		got, err := store.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, email.StatusSent, got.Status)
		assert.Empty(t, pub.events)
	})

	t.Run("failure without record still publishes", func(t *testing.T) {
		t.Parallel()

		pub := &recordingPublisher{}
		esc := New(email.NewMemoryStore(), Config{}, WithPublisher(pub))

		require.NoError(t, esc.Escalate(context.Background(), Failure{
			Event: "unknown.event", Reason: ReasonConfiguration, Err: errors.New("unknown event"),
		}))
		require.Len(t, pub.events, 1)
		assert.Empty(t, pub.events[0].RecordID)
		assert.False(t, pub.events[0].OccurredAt.IsZero())
	})

	t.Run("side effect errors are returned", func(t *testing.T) {
		t.Parallel()

		store := email.NewMemoryStore()
		rec := createRecord(t, store, email.StatusSending)
		pub := &recordingPublisher{err: errors.New("broker down")}

		esc := New(store, Config{}, WithPublisher(pub))
		err := esc.Escalate(context.Background(), Failure{RecordID: rec.ID, Event: "password.reset", Reason: ReasonFatal})
		require.ErrorContains(t, err, "broker down")

		got, err := store.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, email.StatusFailed, got.Status)
	})
}

func TestEscalator_Threshold(t *testing.T) {
	t.Parallel()

	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, "[courier] 3 email failures this hour", mock.Anything).Return(nil).Once()

	esc := New(email.NewMemoryStore(), Config{HourlyThreshold: 3},
		WithCounter(newCounter(t)), WithNotifier(notifier))

	at := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	for i := range 5 {
		err := esc.Escalate(context.Background(), Failure{
			Event: "request.submitted", Reason: ReasonExhausted, At: at.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	notifier.AssertExpectations(t)
}

func TestFailureCounter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	counter := newCounter(t)
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)

	c, err := counter.Incr(ctx, "a", at)
	require.NoError(t, err)
	assert.Equal(t, Count{Hour: "2026030110", Global: 1, Event: 1}, c)

	c, err = counter.Incr(ctx, "b", at)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Global)
	assert.Equal(t, int64(1), c.Event)

	c, err = counter.Incr(ctx, "a", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, Count{Hour: "2026030111", Global: 1, Event: 1}, c)

	ok, err := counter.ClaimAlert(ctx, "2026030110")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = counter.ClaimAlert(ctx, "2026030110")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKafkaPublisher(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), NewEvent(Failure{
		RecordID: uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Event:    "password.reset",
		Reason:   ReasonFatal,
		Err:      errors.New("rejected"),
		At:       at,
		Attempt:  2,
	}))
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("password.reset"), msg.Key)

	var e Event
	require.NoError(t, json.Unmarshal(msg.Value, &e))
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", e.RecordID)
	assert.Equal(t, "rejected", e.Error)
	assert.Equal(t, 2, e.Attempt)
	assert.Equal(t, at, e.OccurredAt)

	w.err = errors.New("leader not available")
	require.Error(t, p.Publish(context.Background(), Event{}))

	require.NoError(t, p.Shutdown()(context.Background()))
	assert.True(t, w.closed)
}

func TestNewKafkaPublisher(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(KafkaConfig{})
	require.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", SASLMechanism: "GSSAPI"})
	require.ErrorContains(t, err, "unsupported")

	p, err := NewKafkaPublisher(KafkaConfig{
		Brokers:       []string{"localhost:9092"},
		Topic:         "t",
		SASLMechanism: "scram-sha-512",
		SASLUsername:  "u",
		SASLPassword:  "p",
		TLS:           true,
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestMailNotifier(t *testing.T) {
	t.Parallel()

	var sent *mailer.Email
	sender := mailer.SenderFunc(func(_ context.Context, e *mailer.Email) (string, error) {
		sent = e
		return "id", nil
	})

	n := NewMailNotifier(sender, []string{"ops@example.com"})
	require.NoError(t, n.Notify(context.Background(), "subject", "a < b"))
	require.NotNil(t, sent)
	assert.Equal(t, []string{"ops@example.com"}, sent.To)
	assert.Equal(t, "a < b", sent.Text)
	assert.Equal(t, "<pre>a &lt; b</pre>", sent.HTML)

	err := NewMailNotifier(sender, nil).Notify(context.Background(), "s", "b")
	require.ErrorIs(t, err, ErrNoOperators)
}

func TestConfig_IsCritical(t *testing.T) {
	t.Parallel()

	cfg := Config{CriticalEvents: []string{"password.reset"}}
	assert.True(t, cfg.IsCritical("password.reset"))
	assert.False(t, cfg.IsCritical("user.invited"))
	assert.False(t, KafkaConfig{}.Enabled())
}
