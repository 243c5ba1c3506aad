// Package redis connects to Redis through go-redis with retries and exposes a
// health check for readiness endpoints.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Config is populated from REDIS_* environment variables. Errors wrap package
// sentinels such as ErrRedisNotReady via errors.Join.
package redis
