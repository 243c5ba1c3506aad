// Package lockout throttles repeated failed verifications per key.
//
// A Guard counts failures inside a window that opens at the first failure. When
// the count reaches Threshold within Window the key is locked for Cooldown, and
// every check during the cooldown fails fast with ErrLockedOut without the caller
// evaluating the submitted secret at all. A success resets the key.
//
//	guard, _ := lockout.NewGuard(lockout.NewMemoryStore(), lockout.DefaultConfig())
//	attempt, _, err := guard.Reserve(ctx, key)
//	if err != nil {
//	    return err // ErrLockedOut
//	}
//	defer attempt.Release(ctx)
//	if !valid {
//	    decision, err := attempt.Fail(ctx)
//	    ...
//	}
//	_ = attempt.Succeed(ctx)
//
// Reserve counts attempts that are still being evaluated. While recorded
// failures plus reserved attempts reach Threshold, further reservations are
// refused, so concurrent requests cannot all pass a check before any of them
// records its failure. Check is the read-only view used for status reporting.
//
// Two stores are provided. MemoryStore is exact within one process. RedisStore
// evaluates the same transition in a Lua script so several replicas share one
// counter per key without lost updates.
package lockout
