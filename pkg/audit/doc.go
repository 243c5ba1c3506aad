// Package audit records security-relevant actions as immutable events.
//
// A Logger stamps each event with an id, the time and request metadata pulled
// from the context, then hands it to a Storage:
//
//	log, err := audit.NewLogger(storage,
//		audit.WithRequestIDExtractor(requestID),
//	)
//	err = log.Log(ctx, accountID, "twofactor.enabled", audit.ResultSuccess,
//		audit.WithMetadata("method", "totp"),
//	)
//
// Events are read back newest first with Reader.Find. MemoryStorage serves tests
// and single-node deployments; Postgres storage lives next to the schema that
// owns the table.
package audit
