package service

import "time"

// LockState mirrors the failure-accounting columns of an account.
type LockState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

func (s LockState) Locked(now time.Time) bool {
	return s.LockedUntil != nil && s.LockedUntil.After(now)
}

// NextLockState computes the state after one failed credential check. It is
// pure: the caller reads the current state, computes the next one, and
// applies it with a compare-and-swap on the attempt counter.
//
// A lock whose deadline already passed is stale: the failure that finds it
// restarts the count at one and drops the deadline. Reaching the threshold
// sets the new deadline in the same transition, so the locking failure
// itself reports as locked.
func NextLockState(prev LockState, threshold int, lockFor time.Duration, now time.Time) LockState {
	next := LockState{}
	if prev.LockedUntil != nil && !prev.LockedUntil.After(now) {
		next.FailedAttempts = 1
	} else {
		next.FailedAttempts = prev.FailedAttempts + 1
	}
	if next.FailedAttempts >= threshold {
		until := now.Add(lockFor)
		next.LockedUntil = &until
	}
	return next
}
