// Package pg bootstraps the PostgreSQL layer on top of pgx/v5 and goose/v3.
//
// Config is populated from PG_* environment variables. Connect opens a
// *pgxpool.Pool and retries until the database answers a ping. Migrate runs the
// goose migrations embedded by the package that owns the schema:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, cfg, log); err != nil {
//	    return err
//	}
//
// Healthcheck returns a check for readiness endpoints, and the Is*Error helpers
// classify driver errors without importing pgconn in callers.
package pg
