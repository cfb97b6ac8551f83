package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterTTL = 2 * time.Hour

// FailureCounter keeps rolling hourly failure counts in Redis.
type FailureCounter struct {
	client redis.Cmdable
	prefix string
}

func NewFailureCounter(client redis.Cmdable, prefix string) *FailureCounter {
	if prefix == "" {
		prefix = "courier:failures"
	}
	return &FailureCounter{client: client, prefix: prefix}
}

// Count is the state of the counters after an increment.
type Count struct {
	Hour   string
	Global int64
	Event  int64
}

// Incr counts one failure of event in the hour containing at.
func (c *FailureCounter) Incr(ctx context.Context, event string, at time.Time) (Count, error) {
	hour := hourBucket(at)

	pipe := c.client.TxPipeline()
	global := pipe.Incr(ctx, c.key(hour, "global"))
	pipe.Expire(ctx, c.key(hour, "global"), counterTTL)
	perEvent := pipe.Incr(ctx, c.key(hour, "event:"+event))
	pipe.Expire(ctx, c.key(hour, "event:"+event), counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return Count{}, fmt.Errorf("escalation: count failure: %w", err)
	}

	return Count{Hour: hour, Global: global.Val(), Event: perEvent.Val()}, nil
}

// ClaimAlert reports true exactly once per hour bucket, for the first caller.
func (c *FailureCounter) ClaimAlert(ctx context.Context, hour string) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.key(hour, "alerted"), 1, counterTTL).Result()
	if err != nil {
		return false, fmt.Errorf("escalation: claim alert: %w", err)
	}
	return ok, nil
}

func (c *FailureCounter) key(hour, name string) string {
	return c.prefix + ":" + hour + ":" + name
}

func hourBucket(t time.Time) string {
	return t.UTC().Format("2006010215")
}
