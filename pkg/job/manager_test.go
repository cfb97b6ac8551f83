package job

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type testTask struct {
	err      error
	info     Info
	payload  testPayload
	executed bool
}

func (t *testTask) Name() string { return "test_task" }

func (t *testTask) Handle(ctx context.Context, p testPayload) error {
	t.executed = true
	t.payload = p
	t.info, _ = InfoFromContext(ctx)
	return t.err
}

type sweepTask struct {
	calls int
}

func (t *sweepTask) Name() string     { return "sweep" }
func (t *sweepTask) Schedule() string { return "*/10 * * * *" }

func (t *sweepTask) Handle(context.Context) error {
	t.calls++
	return nil
}

func newTestWorker(opts ...Option) *taskWorker {
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &taskWorker{
		registry: cfg.registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestJob(name string, payload json.RawMessage) *river.Job[taskArgs] {
	return &river.Job[taskArgs]{
		JobRow: &rivertype.JobRow{ID: 42, Attempt: 2, MaxAttempts: 5},
		Args:   taskArgs{TaskName: name, Payload: payload},
	}
}

func TestNewManager_NilPool(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil)
	require.ErrorIs(t, err, ErrPoolRequired)

	_, err = NewEnqueuer(nil)
	require.ErrorIs(t, err, ErrPoolRequired)
}

func TestTaskArgs_Kind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "courier:task", taskArgs{}.Kind())
}

func TestTaskWorker_Work(t *testing.T) {
	t.Parallel()

	t.Run("runs registered task with job info", func(t *testing.T) {
		t.Parallel()

		task := &testTask{}
		w := newTestWorker(WithTask[testPayload](task))

		err := w.Work(context.Background(), newTestJob("test_task", json.RawMessage(`{"message":"hi","count":3}`)))
		require.NoError(t, err)
		assert.True(t, task.executed)
		assert.Equal(t, testPayload{Message: "hi", Count: 3}, task.payload)
		assert.Equal(t, Info{Task: "test_task", ID: 42, Attempt: 2, MaxAttempts: 5}, task.info)
	})

	t.Run("plain errors are returned for retry", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		w := newTestWorker(WithTask[testPayload](&testTask{err: boom}))

		err := w.Work(context.Background(), newTestJob("test_task", nil))
		require.ErrorIs(t, err, boom)
	})

	t.Run("permanent errors cancel the job", func(t *testing.T) {
		t.Parallel()

		w := newTestWorker(WithTask[testPayload](&testTask{err: Permanent(errors.New("invalid recipient"))}))

		err := w.Work(context.Background(), newTestJob("test_task", nil))
		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid recipient")
	})

	t.Run("unknown task is cancelled", func(t *testing.T) {
		t.Parallel()

		w := newTestWorker()

		err := w.Work(context.Background(), newTestJob("missing", nil))
		require.Error(t, err)
		assert.ErrorContains(t, err, "missing")
	})

	t.Run("invalid payload", func(t *testing.T) {
		t.Parallel()

		w := newTestWorker(WithTask[testPayload](&testTask{}))

		err := w.Work(context.Background(), newTestJob("test_task", json.RawMessage(`not json`)))
		require.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Permanent(nil))

	cause := errors.New("rejected")
	err := Permanent(cause)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(cause))
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := newConfig()
	for _, opt := range []Option{
		WithTask[testPayload](&testTask{}),
		WithScheduledTask(&sweepTask{}),
		WithQueue("email", 10),
		WithQueue("ignored", 0),
		WithMaxWorkers(50),
		WithMaxWorkers(-1),
		WithLogger(nil),
	} {
		opt(cfg)
	}

	_, ok := cfg.registry.get("test_task")
	assert.True(t, ok)
	require.Len(t, cfg.schedules, 1)
	assert.Equal(t, "sweep", cfg.schedules[0].name)
	assert.Equal(t, "*/10 * * * *", cfg.schedules[0].schedule)
	assert.Equal(t, map[string]int{"email": 10}, cfg.queues)
	assert.Equal(t, 50, cfg.maxWorkers)
	assert.Nil(t, cfg.logger)
}

func TestBuildPeriodicJobs(t *testing.T) {
	t.Parallel()

	t.Run("registers scheduled executor", func(t *testing.T) {
		t.Parallel()

		task := &sweepTask{}
		cfg := newConfig()
		WithScheduledTask(task)(cfg)

		jobs, err := buildPeriodicJobs(cfg)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)

		executor, ok := cfg.registry.get("sweep")
		require.True(t, ok)
		require.NoError(t, executor.Execute(context.Background(), json.RawMessage(`{"ignored":true}`)))
		assert.Equal(t, 1, task.calls)
	})

	t.Run("invalid cron expression", func(t *testing.T) {
		t.Parallel()

		cfg := newConfig()
		cfg.schedules = append(cfg.schedules, scheduleConfig{name: "bad", schedule: "every minute"})

		_, err := buildPeriodicJobs(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")
	})
}

func TestParseCronSchedule(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 10, 3, 0, 0, time.UTC)

	schedule, err := parseCronSchedule("*/10 * * * *")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 10, 0, 0, time.UTC), schedule.Next(base))

	for _, expr := range []string{"", "* * *", "61 * * * *", "@every 1m"} {
		_, err := parseCronSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	err := Healthcheck(nil)(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
	assert.ErrorIs(t, err, errNilManager)

	err = Healthcheck(&Manager{registry: newTaskRegistry()})(context.Background())
	require.ErrorIs(t, err, ErrUnhealthy)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestTaskRegistry(t *testing.T) {
	t.Parallel()

	r := newTaskRegistry()
	assert.Empty(t, r.names())

	require.NoError(t, r.register("b", newTaskWrapper[testPayload](&testTask{})))
	require.NoError(t, r.register("a", &scheduledTaskExecutor{handler: func(context.Context) error { return nil }}))
	assert.Equal(t, []string{"a", "b"}, r.names())

	_, ok := r.get("c")
	assert.False(t, ok)

	t.Run("duplicate name", func(t *testing.T) {
		t.Parallel()

		err := r.register("a", newTaskWrapper[testPayload](&testTask{}))
		assert.ErrorIs(t, err, ErrInvalidTask)
	})

	t.Run("empty name", func(t *testing.T) {
		t.Parallel()

		err := newTaskRegistry().register("", newTaskWrapper[testPayload](&testTask{}))
		assert.ErrorIs(t, err, ErrInvalidTask)
	})
}

func TestOptions_DuplicateTask(t *testing.T) {
	t.Parallel()

	cfg := newConfig()
	WithTask[testPayload](&testTask{})(cfg)
	WithTask[testPayload](&testTask{})(cfg)

	require.Len(t, cfg.errs, 1)
	assert.ErrorIs(t, cfg.errs[0], ErrInvalidTask)
}

func TestTaskWrapper_InvalidPayload(t *testing.T) {
	t.Parallel()

	err := newTaskWrapper[testPayload](&testTask{}).Execute(context.Background(), json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.True(t, IsPermanent(err))
}

func TestInfoLogExtractor(t *testing.T) {
	t.Parallel()

	extract := LogExtractor()

	_, ok := extract(context.Background())
	assert.False(t, ok)

	attr, ok := extract(WithInfo(context.Background(), Info{Task: "send_email", ID: 9, Attempt: 3}))
	require.True(t, ok)
	assert.Equal(t, "job", attr.Key)
	assert.Len(t, attr.Value.Group(), 3)
}
