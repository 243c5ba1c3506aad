// Package logger builds *slog.Logger instances from functional options.
//
// New selects a text or JSON handler, attaches static attributes, and wraps the
// handler with LogHandlerDecorator so that ContextExtractor callbacks can add
// request-scoped attributes (such as a request id) to every record:
//
//	log := logger.New(
//	    logger.WithEnvironment(cfg.Env, "twofactord"),
//	    logger.WithContextExtractors(requestid.LoggerExtractor()),
//	    logger.WithRedactedKeys("secret", "code"),
//	)
//	log.InfoContext(ctx, "two-factor enabled", logger.AccountID(id))
//
// WithRedactedKeys guarantees that attributes under the listed keys never reach
// the output, which keeps one-time codes and secrets out of the logs even when a
// caller attaches them by mistake.
//
// The attribute helpers in attr.go keep key names consistent across packages.
// Error and Errors return an empty attribute for nil errors, so they can be passed
// unconditionally.
package logger
