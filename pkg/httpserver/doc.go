// Package httpserver runs an HTTP server with graceful shutdown.
//
// Run listens on Config.Addr and blocks until the context is cancelled or the
// process receives SIGINT or SIGTERM. It then drains in-flight requests within
// ShutdownTimeout and calls the registered closers in reverse order, so pools and
// clients opened before the server are released after it stops:
//
//	srv := httpserver.New(cfg, router,
//	    httpserver.WithLogger(log),
//	    httpserver.WithCloser("postgres", func(context.Context) error { pool.Close(); return nil }),
//	)
//	if err := srv.Run(ctx); err != nil {
//	    log.Error("server failed", logger.Error(err))
//	}
//
// LivenessHandler and ReadinessHandler back the usual health endpoints.
package httpserver
