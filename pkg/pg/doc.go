// Package pg provides utilities for interacting with PostgreSQL using the
// pgx/v5 driver: connection pooling with retry, goose schema migrations,
// a health-check probe, and common error predicates.
//
// Config is populated from environment variables via pkg/config. Connect
// opens a *pgxpool.Pool and retries until the database is reachable; Migrate
// brings the schema up to date before the application starts writing.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil { ... }
//
// The error predicates (IsNotFoundError, IsDuplicateKeyError) keep SQLSTATE
// knowledge out of the calling packages.
package pg
