package job

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyOptions(opts ...EnqueueOption) *enqueueConfig {
	cfg := &enqueueConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func TestEnqueueOptions(t *testing.T) {
	t.Parallel()

	t.Run("InQueue ignores empty name", func(t *testing.T) {
		t.Parallel()

		cfg := applyOptions(InQueue("email"), InQueue(""))
		assert.Equal(t, "email", cfg.queue)
	})

	t.Run("ScheduledAt stores exact time", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		cfg := applyOptions(ScheduledAt(at))
		require.NotNil(t, cfg.scheduledAt)
		assert.Equal(t, at, *cfg.scheduledAt)
	})

	t.Run("ScheduledIn is relative to now", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		cfg := applyOptions(ScheduledIn(5 * time.Minute))
		require.NotNil(t, cfg.scheduledAt)
		assert.WithinDuration(t, before.Add(5*time.Minute), *cfg.scheduledAt, time.Second)
	})

	t.Run("ScheduledIn with non-positive delay runs immediately", func(t *testing.T) {
		t.Parallel()

		cfg := applyOptions(ScheduledIn(time.Hour), ScheduledIn(0))
		assert.Nil(t, cfg.scheduledAt)
	})

	t.Run("MaxAttempts ignores non-positive values", func(t *testing.T) {
		t.Parallel()

		cfg := applyOptions(MaxAttempts(3), MaxAttempts(0), MaxAttempts(-1))
		assert.Equal(t, 3, cfg.maxAttempts)
	})

	t.Run("Tags append", func(t *testing.T) {
		t.Parallel()

		cfg := applyOptions(Tags("email"), Tags("retry", "attempt:2"))
		assert.Equal(t, []string{"email", "retry", "attempt:2"}, cfg.tags)
	})

	t.Run("uniqueness and priority", func(t *testing.T) {
		t.Parallel()

		cfg := applyOptions(UniqueFor(time.Hour), UniqueKey("rec:2"), Priority(2))
		assert.Equal(t, time.Hour, cfg.uniqueFor)
		assert.Equal(t, "rec:2", cfg.uniqueKey)
		assert.Equal(t, 2, cfg.priority)
	})
}

func TestBuildJobArgs(t *testing.T) {
	t.Parallel()

	type payload struct {
		RecordID string `json:"record_id"`
		Attempt  int    `json:"attempt"`
	}

	t.Run("nil payload", func(t *testing.T) {
		t.Parallel()

		args, opts, err := buildJobArgs("send_email", nil)
		require.NoError(t, err)
		assert.Equal(t, "send_email", args.TaskName)
		assert.Empty(t, args.Payload)
		assert.NotNil(t, opts)
	})

	t.Run("payload is JSON encoded", func(t *testing.T) {
		t.Parallel()

		args, _, err := buildJobArgs("send_email", payload{RecordID: "r1", Attempt: 2})
		require.NoError(t, err)

		var decoded payload
		require.NoError(t, json.Unmarshal(args.Payload, &decoded))
		assert.Equal(t, payload{RecordID: "r1", Attempt: 2}, decoded)
	})

	t.Run("unmarshalable payload", func(t *testing.T) {
		t.Parallel()

		_, _, err := buildJobArgs("send_email", make(chan int))
		require.Error(t, err)
	})

	t.Run("options map to insert opts", func(t *testing.T) {
		t.Parallel()

		at := time.Now().Add(time.Minute)
		_, opts, err := buildJobArgs("send_email", nil,
			InQueue("email"),
			ScheduledAt(at),
			MaxAttempts(4),
			Priority(2),
			Tags("transactional"),
		)
		require.NoError(t, err)
		assert.Equal(t, "email", opts.Queue)
		assert.Equal(t, at, opts.ScheduledAt)
		assert.Equal(t, 4, opts.MaxAttempts)
		assert.Equal(t, 2, opts.Priority)
		assert.Equal(t, []string{"transactional"}, opts.Tags)
	})

	t.Run("unique key enables args uniqueness", func(t *testing.T) {
		t.Parallel()

		args, opts, err := buildJobArgs("send_email", nil, UniqueFor(time.Hour), UniqueKey("rec:2"))
		require.NoError(t, err)
		assert.Equal(t, "rec:2", args.UniqueKey)
		assert.True(t, opts.UniqueOpts.ByArgs)
		assert.Equal(t, time.Hour, opts.UniqueOpts.ByPeriod)
	})

	t.Run("unique key without period is ignored", func(t *testing.T) {
		t.Parallel()

		args, opts, err := buildJobArgs("send_email", nil, UniqueKey("rec:2"))
		require.NoError(t, err)
		assert.Empty(t, args.UniqueKey)
		assert.False(t, opts.UniqueOpts.ByArgs)
	})
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	s := Describe(
		InQueue("email"),
		UniqueKey("rec:2:0"),
		UniqueFor(time.Hour),
		ScheduledIn(5*time.Minute),
		MaxAttempts(10),
		Priority(1),
		Tags("email"),
	)
	assert.Equal(t, "email", s.Queue)
	assert.Equal(t, "rec:2:0", s.UniqueKey)
	assert.Equal(t, time.Hour, s.UniqueFor)
	assert.Equal(t, 5*time.Minute, s.Delay)
	require.NotNil(t, s.ScheduledAt)
	assert.Equal(t, 10, s.MaxAttempts)
	assert.Equal(t, 1, s.Priority)
	assert.Equal(t, []string{"email"}, s.Tags)

	t.Run("immediate", func(t *testing.T) {
		t.Parallel()

		s := Describe(ScheduledIn(time.Minute), ScheduledIn(0))
		assert.Zero(t, s.Delay)
		assert.Nil(t, s.ScheduledAt)
	})

	t.Run("absolute time clears the delay", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		s := Describe(ScheduledIn(time.Minute), ScheduledAt(at))
		assert.Zero(t, s.Delay)
		require.NotNil(t, s.ScheduledAt)
		assert.Equal(t, at, *s.ScheduledAt)
	})
}
