package db

import "time"

// Config holds Postgres pool settings.
type Config struct {
	ConnectionString string `env:"DATABASE_CONN_URL,required"`
	MigrationsTable  string `env:"DATABASE_MIGRATIONS_TABLE" envDefault:"courier_schema_migrations"`

	HealthCheckPeriod time.Duration `env:"DATABASE_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`

	// Startup attempts wait RetryInterval, 2*RetryInterval, ... between tries.
	RetryAttempts int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"5s"`

	// Workers and the webhook endpoint share the pool with River.
	MaxOpenConns int32 `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MinConns     int32 `env:"DATABASE_MIN_CONNS" envDefault:"2"`
}
