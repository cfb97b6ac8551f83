// Package job runs background work on River, the Postgres-native job queue.
//
// Every task shares a single River job kind ("courier:task") whose arguments carry
// the task name and a JSON payload. Tasks are plain structs discovered by structural
// typing, so task packages never import River:
//
//	type SendEmail struct{ ... }
//
//	func (t *SendEmail) Name() string { return "send_email" }
//
//	func (t *SendEmail) Handle(ctx context.Context, p SendEmailPayload) error { ... }
//
// Register tasks and queues when building the manager:
//
//	manager, err := job.NewManager(pool,
//	    job.WithTask[dispatch.SendPayload](dispatch.NewSendTask(...)),
//	    job.WithScheduledTask(dispatch.NewSweeper(...)),
//	    job.WithQueue("email", 20),
//	    job.WithLogger(log),
//	)
//
// Processes that only produce work use [NewEnqueuer], which opens River in
// insert-only mode.
//
// # Retries
//
// A handler error makes River retry the job with its own backoff, bounded by
// [MaxAttempts]. Wrap an error with [Permanent] to cancel the job instead: River
// records it and never runs it again. Tasks that need exact retry schedules can
// carry their own attempt state in the payload and re-enqueue themselves with
// [ScheduledIn]; [UniqueKey] with [UniqueFor] keeps such re-enqueues idempotent.
//
// # Logging
//
// The worker stores an [Info] value in the handler context. [LogExtractor] turns it
// into job_id/task/attempt log attributes for pkg/logger.
//
// # Database Migrations
//
// River needs its own tables. [Migrate] applies them; `courier migrate` runs it
// after the service schema:
//
//	versions, err := job.Migrate(ctx, pool, log)
package job
