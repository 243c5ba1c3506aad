package lockout

import "time"

// ReservationTTL bounds how long an unsettled reservation holds a slot. It only
// matters when a holder dies before settling.
const ReservationTTL = time.Minute

// busyRetryAfter is reported when a key is full of in-flight attempts.
const busyRetryAfter = time.Second

// State is the persisted attempt record of one key.
type State struct {
	Failures    int
	WindowStart time.Time
	LockedUntil time.Time

	// Pending counts reserved attempts that have not been settled yet.
	Pending      int
	PendingUntil time.Time
}

// LockedAt reports whether the key is locked at now.
func (s State) LockedAt(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// IsZero reports whether the record can be dropped.
func (s State) IsZero() bool {
	return s == State{}
}

// current drops an expired window, an expired lock or stale reservations.
func (s State) current(now time.Time, cfg Config) State {
	if s.PendingUntil.IsZero() || !now.Before(s.PendingUntil) {
		s.Pending = 0
		s.PendingUntil = time.Time{}
	}
	if s.LockedAt(now) {
		return s
	}
	if !s.LockedUntil.IsZero() || s.WindowStart.IsZero() || now.Sub(s.WindowStart) >= cfg.Window {
		return State{Pending: s.Pending, PendingUntil: s.PendingUntil}
	}
	return s
}

// withFailure applies one failure at now. A locked state is returned unchanged.
func (s State) withFailure(now time.Time, cfg Config) State {
	s = s.current(now, cfg)
	if s.LockedAt(now) {
		return s
	}
	if s.WindowStart.IsZero() {
		s.WindowStart = now
	}
	s.Failures++
	if s.Failures >= cfg.Threshold {
		s.LockedUntil = now.Add(cfg.Cooldown)
	}
	return s
}

// withReservation takes one attempt slot. It refuses while locked or while the
// recorded failures plus the attempts in flight could already reach the threshold.
func (s State) withReservation(now time.Time, cfg Config) (State, bool) {
	s = s.current(now, cfg)
	if s.LockedAt(now) || s.Failures+s.Pending >= cfg.Threshold {
		return s, false
	}
	s.Pending++
	s.PendingUntil = now.Add(ReservationTTL)
	return s, true
}

// settled releases one reservation and applies outcome.
func (s State) settled(now time.Time, cfg Config, outcome Outcome) State {
	s = s.current(now, cfg)
	if s.Pending > 0 {
		s.Pending--
	}
	if s.Pending == 0 {
		s.PendingUntil = time.Time{}
	}
	switch outcome {
	case OutcomeFailure:
		return s.withFailure(now, cfg)
	case OutcomeSuccess:
		return State{Pending: s.Pending, PendingUntil: s.PendingUntil}
	}
	return s
}

// ttl is how long the store has to keep the state around.
func (s State) ttl(now time.Time, cfg Config) time.Duration {
	var d time.Duration
	switch {
	case s.LockedAt(now):
		d = s.LockedUntil.Sub(now)
	case !s.WindowStart.IsZero():
		d = s.WindowStart.Add(cfg.Window).Sub(now)
	}
	if s.Pending > 0 {
		d = max(d, s.PendingUntil.Sub(now))
	}
	return d
}

// Decision describes a key after a check or a recorded failure.
type Decision struct {
	Locked      bool
	Failures    int
	Remaining   int // failures left before a lock
	LockedUntil time.Time
	RetryAfter  time.Duration
}

func decide(s State, now time.Time, cfg Config) Decision {
	s = s.current(now, cfg)
	d := Decision{
		Failures:  s.Failures,
		Remaining: max(cfg.Threshold-s.Failures, 0),
	}
	if s.LockedAt(now) {
		d.Locked = true
		d.Remaining = 0
		d.LockedUntil = s.LockedUntil
		d.RetryAfter = s.LockedUntil.Sub(now)
	}
	return d
}

// refused is the decision for a reservation that was not granted.
func refused(s State, now time.Time, cfg Config) Decision {
	d := decide(s, now, cfg)
	if !d.Locked {
		d.Locked = true
		d.Remaining = 0
		d.LockedUntil = now.Add(busyRetryAfter)
		d.RetryAfter = busyRetryAfter
	}
	return d
}
