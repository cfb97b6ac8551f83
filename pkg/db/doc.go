// Package db opens pgx pools with startup retries, runs goose migrations and
// wraps transactions.
//
// Configuration comes from the environment:
//
//	DATABASE_CONN_URL           - PostgreSQL connection URL (required)
//	DATABASE_MIGRATIONS_TABLE   - goose version table (default: courier_schema_migrations)
//	DATABASE_MAX_OPEN_CONNS     - maximum open connections (default: 20)
//	DATABASE_MIN_CONNS          - minimum idle connections (default: 2)
//	DATABASE_HEALTHCHECK_PERIOD - pool health check interval (default: 1m)
//	DATABASE_MAX_CONN_IDLE_TIME - maximum connection idle time (default: 10m)
//	DATABASE_MAX_CONN_LIFETIME  - maximum connection lifetime (default: 30m)
//	DATABASE_RETRY_ATTEMPTS     - connection attempts at startup (default: 3)
//	DATABASE_RETRY_INTERVAL     - base wait between attempts (default: 5s)
//
// Usage:
//
//	pool, err := db.Connect(ctx, cfg.Database)
//	if err != nil {
//		return err
//	}
//	if err := db.Migrate(ctx, pool, migrations.FS, cfg.Database.MigrationsTable, log); err != nil {
//		return err
//	}
//
// River keeps its own tables; apply them with the River CLI.
package db
