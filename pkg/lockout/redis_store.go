package lockout

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// statePrelude loads and normalises the hash the way State.current does and
// defines fail() and save(). Times are unix milliseconds.
// KEYS[1] = state hash; ARGV = now, threshold, window, cooldown, reservation ttl.
const statePrelude = `
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local cooldown = tonumber(ARGV[4])
local reservation_ttl = tonumber(ARGV[5])

local st = redis.call('HMGET', KEYS[1], 'failures', 'window_start', 'locked_until', 'pending', 'pending_until')
local failures = tonumber(st[1]) or 0
local start = tonumber(st[2]) or 0
local locked = tonumber(st[3]) or 0
local pending = tonumber(st[4]) or 0
local pending_until = tonumber(st[5]) or 0

if pending_until <= now then
  pending = 0
  pending_until = 0
end
if locked <= now and (locked ~= 0 or start == 0 or now - start >= window) then
  failures = 0
  start = 0
  locked = 0
end

local function fail()
  if locked > now then
    return
  end
  if start == 0 then
    start = now
  end
  failures = failures + 1
  if failures >= threshold then
    locked = now + cooldown
  end
end

local function save()
  local ttl = 0
  if locked > now then
    ttl = locked - now
  elseif start ~= 0 then
    ttl = start + window - now
  end
  if pending > 0 and pending_until - now > ttl then
    ttl = pending_until - now
  end
  if ttl <= 0 then
    redis.call('DEL', KEYS[1])
    return
  end
  redis.call('HSET', KEYS[1], 'failures', failures, 'window_start', start, 'locked_until', locked,
    'pending', pending, 'pending_until', pending_until)
  redis.call('PEXPIRE', KEYS[1], ttl)
end
`

var recordFailureScript = redis.NewScript(statePrelude + `
fail()
save()
return {failures, start, locked, pending, pending_until}
`)

var reserveScript = redis.NewScript(statePrelude + `
local granted = 0
if locked <= now and failures + pending < threshold then
  pending = pending + 1
  pending_until = now + reservation_ttl
  granted = 1
end
save()
return {failures, start, locked, pending, pending_until, granted}
`)

// ARGV[6] = outcome: "failure", "success" or "release".
var settleScript = redis.NewScript(statePrelude + `
if pending > 0 then
  pending = pending - 1
end
if pending == 0 then
  pending_until = 0
end
if ARGV[6] == 'failure' then
  fail()
elseif ARGV[6] == 'success' then
  failures = 0
  start = 0
  locked = 0
end
save()
return {failures, start, locked, pending, pending_until}
`)

// RedisStore keeps attempt state in a Redis hash per key so every replica
// observes the same counter.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces the Redis keys. Defaults to "lockout:".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "lockout:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string, now time.Time, cfg Config) (State, error) {
	vals, err := s.client.HMGet(ctx, s.prefix+key, "failures", "window_start", "locked_until", "pending", "pending_until").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, err
	}
	return stateFromValues(vals).current(now, cfg), nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string, now time.Time, cfg Config) (State, error) {
	res, err := s.run(ctx, recordFailureScript, key, now, cfg)
	if err != nil {
		return State{}, err
	}
	return stateFromScript(res), nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, now time.Time, cfg Config) (State, bool, error) {
	res, err := s.run(ctx, reserveScript, key, now, cfg)
	if err != nil {
		return State{}, false, err
	}
	if len(res) != 6 {
		return State{}, false, errors.New("unexpected lockout script result")
	}
	return stateFromScript(res), res[5] == 1, nil
}

func (s *RedisStore) Settle(ctx context.Context, key string, now time.Time, cfg Config, outcome Outcome) (State, error) {
	res, err := s.run(ctx, settleScript, key, now, cfg, outcome.String())
	if err != nil {
		return State{}, err
	}
	return stateFromScript(res), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *RedisStore) run(ctx context.Context, script *redis.Script, key string, now time.Time, cfg Config, extra ...any) ([]int64, error) {
	args := append([]any{
		now.UnixMilli(),
		cfg.Threshold,
		cfg.Window.Milliseconds(),
		cfg.Cooldown.Milliseconds(),
		ReservationTTL.Milliseconds(),
	}, extra...)
	res, err := script.Run(ctx, s.client, []string{s.prefix + key}, args...).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 5 {
		return nil, errors.New("unexpected lockout script result")
	}
	return res, nil
}

func stateFromScript(res []int64) State {
	return State{
		Failures:     int(res[0]),
		WindowStart:  fromMillis(res[1]),
		LockedUntil:  fromMillis(res[2]),
		Pending:      int(res[3]),
		PendingUntil: fromMillis(res[4]),
	}
}

func stateFromValues(vals []any) State {
	get := func(i int) int64 {
		if i >= len(vals) {
			return 0
		}
		str, ok := vals[i].(string)
		if !ok {
			return 0
		}
		n, _ := strconv.ParseInt(str, 10, 64)
		return n
	}
	return State{
		Failures:     int(get(0)),
		WindowStart:  fromMillis(get(1)),
		LockedUntil:  fromMillis(get(2)),
		Pending:      int(get(3)),
		PendingUntil: fromMillis(get(4)),
	}
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
