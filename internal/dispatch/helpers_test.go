package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/escalation"
	"github.com/dmitrymomot/courier/internal/templates"
	"github.com/dmitrymomot/courier/pkg/job"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/ratelimit"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type queuedSend struct {
	payload  SendPayload
	settings job.Settings
}

type fakeEnqueuer struct {
	err   error
	jobs  []queuedSend
	sends []job.Settings
	sent  []SentPayload
	mu    sync.Mutex
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, name string, payload any, opts ...job.EnqueueOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	switch name {
	case TaskName:
		settings := job.Describe(opts...)
		f.jobs = append(f.jobs, queuedSend{payload: payload.(SendPayload), settings: settings})
		f.sends = append(f.sends, settings)
	case SentTaskName:
		f.sent = append(f.sent, payload.(SentPayload))
	default:
		panic("unexpected task " + name)
	}
	return nil
}

func (f *fakeEnqueuer) next() (SendPayload, bool) {
	q, ok := f.nextJob()
	return q.payload, ok
}

func (f *fakeEnqueuer) nextJob() (queuedSend, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return queuedSend{}, false
	}
	q := f.jobs[0]
	f.jobs = f.jobs[1:]
	return q, true
}

func (f *fakeEnqueuer) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// enqueued returns the options of every send job enqueued so far.
func (f *fakeEnqueuer) enqueued() []job.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]job.Settings(nil), f.sends...)
}

func (f *fakeEnqueuer) sentHandoffs() []SentPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentPayload(nil), f.sent...)
}

// flakyStore fails the next failSent Apply calls that would mark a record sent.
type flakyStore struct {
	*email.MemoryStore
	mu       sync.Mutex
	failSent int
}

func (s *flakyStore) Apply(ctx context.Context, id uuid.UUID, u email.Update) (*email.Applied, error) {
	s.mu.Lock()
	fail := u.Status == email.StatusSent && s.failSent > 0
	if fail {
		s.failSent--
	}
	s.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.Apply(ctx, id, u)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, params mailer.SendParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

type recordingEscalator struct {
	next     Escalator
	failures []escalation.Failure
	mu       sync.Mutex
}

func (r *recordingEscalator) Escalate(ctx context.Context, f escalation.Failure) error {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
	return r.next.Escalate(ctx, f)
}

func (r *recordingEscalator) reasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.failures))
	for _, f := range r.failures {
		out = append(out, f.Reason)
	}
	return out
}

type harness struct {
	clock      *clock
	store      *email.MemoryStore
	enqueuer   *fakeEnqueuer
	mailer     *mockMailer
	escalator  *recordingEscalator
	dispatcher *Dispatcher
	task       *SendTask
}

func testConfig() Config {
	return Config{
		Backoff:         []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
		Queue:           "email",
		SweepSchedule:   "*/10 * * * *",
		MaxAttempts:     3,
		MaxAge:          time.Hour,
		ProviderTimeout: 5 * time.Second,
		SweepGrace:      15 * time.Minute,
		SweepBatch:      100,
		QueueWorkers:    1,
		JobMaxAttempts:  10,
	}
}

func testLimits() RateLimits {
	return RateLimits{
		Global: 600, GlobalWindow: time.Minute,
		Recipient: 10, RecipientWindow: time.Minute,
		Event: 300, EventWindow: time.Minute,
		RecipientEvent: 20, RecipientEventWindow: time.Hour,
	}
}

func newHarness(t *testing.T, cfg Config, limits RateLimits) *harness {
	t.Helper()

	registry, err := templates.Load("")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := email.NewMemoryStore(email.WithClock(c.Now))
	enq := &fakeEnqueuer{}
	m := &mockMailer{}
	esc := &recordingEscalator{next: escalation.New(store, escalation.Config{})}

	task := NewSendTask(SendTaskDeps{
		Registry:  registry,
		Limiter:   ratelimit.New(client, ratelimit.WithClock(c.Now)),
		Mailer:    m,
		Store:     store,
		Enqueuer:  enq,
		Escalator: esc,
		Now:       c.Now,
	}, cfg, limits)
	task.jitter = func(time.Duration) time.Duration { return 0 }

	return &harness{
		clock:      c,
		store:      store,
		enqueuer:   enq,
		mailer:     m,
		escalator:  esc,
		dispatcher: NewDispatcher(registry, enq, cfg, WithDispatcherClock(c.Now)),
		task:       task,
	}
}

func statusRequest(to string) Request {
	return Request{
		Event:     "request.status.changed",
		Recipient: Recipient{Email: to, Name: "Jane Doe"},
		Variables: map[string]any{
			"title":  "Q3 budget",
			"link":   "https://app.example.com/requests/42",
			"status": "approved",
		},
	}
}

func attempts(t *testing.T, rec *email.Record) []map[string]any {
	t.Helper()
	list, _ := rec.Metadata[email.MetaAttempts].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		require.True(t, ok)
		out = append(out, entry)
	}
	return out
}
