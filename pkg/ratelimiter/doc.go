// Package ratelimiter provides token bucket rate limiting with an in-memory store
// and HTTP middleware.
//
// A bucket holds up to Capacity tokens and regains RefillRate tokens every
// RefillInterval. Each request takes one token; a request that finds too few tokens
// is denied without consuming anything.
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	bucket, err := ratelimiter.NewBucket(store, cfg)
//	if err != nil {
//		return err
//	}
//	r.Use(ratelimiter.Middleware(bucket, ratelimiter.ClientIP))
//
// The middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset
// on every response and Retry-After on denied ones. WithLimitedHandler and
// WithErrorHandler replace the default plain-text responses.
package ratelimiter
