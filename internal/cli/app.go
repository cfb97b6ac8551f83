package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/courier/internal/config"
	"github.com/dmitrymomot/courier/internal/dispatch"
	"github.com/dmitrymomot/courier/internal/email"
	"github.com/dmitrymomot/courier/internal/escalation"
	"github.com/dmitrymomot/courier/internal/metrics"
	"github.com/dmitrymomot/courier/internal/server"
	"github.com/dmitrymomot/courier/internal/templates"
	"github.com/dmitrymomot/courier/internal/webhook"
	"github.com/dmitrymomot/courier/pkg/db"
	"github.com/dmitrymomot/courier/pkg/health"
	"github.com/dmitrymomot/courier/pkg/job"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/resend"
	"github.com/dmitrymomot/courier/pkg/mailer/ses"
	"github.com/dmitrymomot/courier/pkg/mailer/smtp"
	"github.com/dmitrymomot/courier/pkg/ratelimit"
	"github.com/dmitrymomot/courier/pkg/redis"
	"github.com/dmitrymomot/courier/pkg/storage"
)

// app holds the shared dependencies of every long-running command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	pool     *pgxpool.Pool
	redis    *goredis.Client
	metrics  *metrics.Metrics
	registry *templates.Registry
	store    email.Store
	checks   health.Checks
	// hooks run on shutdown in reverse registration order.
	hooks []func(context.Context) error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.NewWithSentry(cfg.Log, cfg.Sentry, server.RequestIDExtractor(), job.LogExtractor())
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	a.onShutdown(logger.FlushSentry())

	a.registry, err = templates.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	a.pool, err = db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a.onShutdown(db.Shutdown(a.pool))

	a.redis, err = redis.Open(ctx, cfg.Redis)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.onShutdown(redis.Shutdown(a.redis))

	a.store = email.NewPostgresStore(a.pool)
	a.checks = health.Checks{
		"database": db.Healthcheck(a.pool),
		"redis":    redis.Healthcheck(a.redis),
	}

	log.Info("courier configured",
		slog.String("mailer", cfg.Mailer.Provider),
		slog.Any("events", a.registry.Events()),
	)
	return a, nil
}

func (a *app) onShutdown(hook func(context.Context) error) {
	a.hooks = append(a.hooks, hook)
}

// shutdownHooks returns the hooks in teardown order.
func (a *app) shutdownHooks() []func(context.Context) error {
	hooks := slices.Clone(a.hooks)
	slices.Reverse(hooks)
	return hooks
}

func (a *app) close(ctx context.Context) {
	for _, hook := range a.shutdownHooks() {
		if err := hook(ctx); err != nil {
			a.log.Error("shutdown hook failed", logger.Error(err))
		}
	}
}

func (a *app) dispatcher(enq dispatch.Enqueuer) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(a.registry, enq, a.cfg.Send,
		dispatch.WithDispatcherMetrics(a.metrics),
		dispatch.WithDispatcherLogger(a.log),
	)
}

func (a *app) ingestor() (*webhook.Ingestor, error) {
	opts := []webhook.Option{webhook.WithMetrics(a.metrics), webhook.WithLogger(a.log)}
	if a.cfg.Archive.Enabled() {
		archive, err := storage.New(a.cfg.Archive)
		if err != nil {
			return nil, err
		}
		opts = append(opts, webhook.WithArchive(archive))
	}
	return webhook.NewIngestor(a.store, a.cfg.Webhook, opts...), nil
}

func (a *app) escalator() (*escalation.Escalator, error) {
	cfg := a.cfg.Escalation
	opts := []escalation.Option{
		escalation.WithCounter(escalation.NewFailureCounter(a.redis, "")),
		escalation.WithMetrics(a.metrics),
		escalation.WithLogger(a.log),
	}

	if cfg.Kafka.Enabled() {
		pub, err := escalation.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		a.onShutdown(pub.Shutdown())
		opts = append(opts, escalation.WithPublisher(pub))
	}
	if len(cfg.Operators) > 0 {
		opts = append(opts, escalation.WithNotifier(escalation.NewMailNotifier(smtp.New(cfg.AlertSMTP), cfg.Operators)))
	}
	return escalation.New(a.store, cfg, opts...), nil
}

// mailer builds the delivery client and checks that every catalog template renders.
func (a *app) mailer(ctx context.Context) (*mailer.Mailer, error) {
	var assets fs.FS = templates.Assets()
	if a.cfg.TemplatesDir != "" {
		assets = os.DirFS(a.cfg.TemplatesDir)
	}
	renderer := mailer.NewRendererWithConfig(assets, mailer.RendererConfig{TemplateDir: "emails", LayoutDir: "layouts"})
	if err := a.registry.Check(renderer, a.cfg.Mailer.DefaultLayout); err != nil {
		return nil, err
	}

	var sender mailer.Sender
	switch a.cfg.Mailer.Provider {
	case mailer.ProviderResend:
		sender = resend.New(a.cfg.Resend)
	case mailer.ProviderSES:
		s, err := ses.New(ctx, a.cfg.SES)
		if err != nil {
			return nil, err
		}
		sender = s
	case mailer.ProviderSMTP:
		sender = smtp.New(a.cfg.SMTP)
	default:
		return nil, fmt.Errorf("unknown mailer provider %q", a.cfg.Mailer.Provider)
	}
	return mailer.New(sender, renderer, a.cfg.Mailer), nil
}

// manager builds the worker side: the send task, the sweeper and River.
func (a *app) manager(ctx context.Context) (*job.Manager, error) {
	m, err := a.mailer(ctx)
	if err != nil {
		return nil, err
	}
	esc, err := a.escalator()
	if err != nil {
		return nil, err
	}

	// The send task re-enqueues retries through the manager it is registered
	// on, so it gets a forwarding enqueuer that is bound once the manager exists.
	enq := &lateEnqueuer{}
	task := dispatch.NewSendTask(dispatch.SendTaskDeps{
		Registry:  a.registry,
		Limiter:   ratelimit.New(a.redis),
		Mailer:    m,
		Store:     a.store,
		Enqueuer:  enq,
		Escalator: esc,
		Metrics:   a.metrics,
		Logger:    a.log,
	}, a.cfg.Send, a.cfg.RateLimits)

	opts := []job.Option{
		job.WithTask[dispatch.SendPayload](task),
		job.WithTask[dispatch.SentPayload](dispatch.NewRecordSentTask(a.store, a.log)),
		job.WithScheduledTask(dispatch.NewSweeper(a.store, esc, a.cfg.Send, a.log)),
		job.WithLogger(a.log),
	}
	for _, q := range a.cfg.Send.WorkerQueues() {
		opts = append(opts, job.WithQueue(q, a.cfg.Send.QueueWorkers))
	}
	manager, err := job.NewManager(a.pool, opts...)
	if err != nil {
		return nil, err
	}
	enq.Enqueuer = manager
	a.checks["jobs"] = job.Healthcheck(manager)
	return manager, nil
}

type lateEnqueuer struct {
	dispatch.Enqueuer
}

func (e *lateEnqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) error {
	if e.Enqueuer == nil {
		return errors.New("enqueuer is not ready")
	}
	return e.Enqueuer.Enqueue(ctx, name, payload, opts...)
}
