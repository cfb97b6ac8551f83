package job

import "time"

// enqueueConfig holds options for enqueueing a job.
type enqueueConfig struct {
	scheduledAt *time.Time
	queue       string
	uniqueKey   string
	tags        []string
	maxAttempts int
	uniqueFor   time.Duration
	delay       time.Duration
	priority    int
}

// EnqueueOption configures job enqueueing.
type EnqueueOption func(*enqueueConfig)

// InQueue routes the job to a named queue. Empty names keep the default queue.
func InQueue(name string) EnqueueOption {
	return func(c *enqueueConfig) {
		if name != "" {
			c.queue = name
		}
	}
}

// ScheduledAt delays the job until t.
func ScheduledAt(t time.Time) EnqueueOption {
	return func(c *enqueueConfig) {
		c.scheduledAt = &t
		c.delay = 0
	}
}

// ScheduledIn delays the job by d from now. Non-positive durations run it immediately.
//
//	enq.Enqueue(ctx, "send_email", payload, job.ScheduledIn(5*time.Minute))
func ScheduledIn(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		if d <= 0 {
			c.scheduledAt = nil
			c.delay = 0
			return
		}
		t := time.Now().Add(d)
		c.scheduledAt = &t
		c.delay = d
	}
}

// MaxAttempts caps how many times River runs the job when the handler errors.
// Defaults to River's default (25 attempts).
func MaxAttempts(n int) EnqueueOption {
	return func(c *enqueueConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// UniqueFor skips the insert when a job with the same task name and unique key
// was inserted within d.
func UniqueFor(d time.Duration) EnqueueOption {
	return func(c *enqueueConfig) {
		c.uniqueFor = d
	}
}

// UniqueKey sets the deduplication key used together with UniqueFor.
//
//	enq.Enqueue(ctx, "send_email", payload,
//	    job.UniqueFor(24*time.Hour),
//	    job.UniqueKey(recordID+":2"))
func UniqueKey(key string) EnqueueOption {
	return func(c *enqueueConfig) {
		c.uniqueKey = key
	}
}

// Priority sets the job priority (lower numbers run first, 1 to 4).
func Priority(p int) EnqueueOption {
	return func(c *enqueueConfig) {
		c.priority = p
	}
}

// Tags adds metadata tags to the job.
func Tags(tags ...string) EnqueueOption {
	return func(c *enqueueConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// Settings is the resolved form of a set of enqueue options.
type Settings struct {
	ScheduledAt *time.Time
	Queue       string
	UniqueKey   string
	Tags        []string
	// Delay is the ScheduledIn duration, zero when the job runs immediately
	// or was scheduled with ScheduledAt.
	Delay       time.Duration
	UniqueFor   time.Duration
	MaxAttempts int
	Priority    int
}

// Describe applies opts and reports what they resolve to. Callers that wrap
// an enqueuer use it to check routing and scheduling without a database.
func Describe(opts ...EnqueueOption) Settings {
	c := &enqueueConfig{}
	for _, opt := range opts {
		opt(c)
	}
	return Settings{
		ScheduledAt: c.scheduledAt,
		Queue:       c.queue,
		UniqueKey:   c.uniqueKey,
		Tags:        c.tags,
		Delay:       c.delay,
		UniqueFor:   c.uniqueFor,
		MaxAttempts: c.maxAttempts,
		Priority:    c.priority,
	}
}
