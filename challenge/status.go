/*
status.go - Effective status derivation from stored facts plus the clock

PURPOSE:
  Time-based state transitions (upcoming -> active, active -> completed) are
  never driven by a timer mutating rows. Instead, the effective status is a
  pure function of the persisted state, the challenge window, and "now".
  The same transition can therefore be observed by any number of concurrent
  readers without side effects, and applying it twice is trivially the same
  as applying it once.

STATE MODEL:
  Persisted State      Effective Status at time t
  ---------------      --------------------------
  abandoned            abandoned (permanent)
  completed            completed (permanent)
  current              upcoming   if t <  startDate
                       active     if startDate <= t <= endDate
                       completed  if t >  endDate

  Only abandonment is a user-triggered persisted transition. Completion is
  purely time-driven; reaching 100% progress early does NOT terminate the
  participation (the window stays open for further events). The engine may
  lazily persist the derived completion (see Engine.settleIfCompleted),
  which is idempotent.

SEE ALSO:
  - types.go: State and Status definitions
  - engine.go: Uses these checks on every operation
*/
package challenge

import "time"

// =============================================================================
// CHALLENGE STATUS
// =============================================================================

// StatusAt derives the challenge status from the clock.
func (c Challenge) StatusAt(now time.Time) ChallengeStatus {
	if c.Cancelled {
		return ChallengeCancelled
	}
	if now.Before(c.StartDate) {
		return ChallengeUpcoming
	}
	if now.After(c.EndDate) {
		return ChallengeCompleted
	}
	return ChallengeActive
}

// Joinable reports whether new participants may join at time now.
func (c Challenge) Joinable(now time.Time) bool {
	s := c.StatusAt(now)
	return s == ChallengeUpcoming || s == ChallengeActive
}

// DaysRemaining returns ceil(endDate - now) in days, floored at zero.
func (c Challenge) DaysRemaining(now time.Time) int {
	if !now.Before(c.EndDate) {
		return 0
	}
	remaining := c.EndDate.Sub(now)
	days := int(remaining.Hours() / 24)
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// InContributionWindow reports whether contributions are accepted at time
// now. The window is inclusive on both ends: a contribution at exactly
// endDate succeeds, one instant later it does not.
func (c Challenge) InContributionWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// =============================================================================
// PARTICIPATION STATUS
// =============================================================================

// EffectiveStatus derives the participation status at time now. Pure and
// idempotent; never mutates the participation.
func (p Participation) EffectiveStatus(c Challenge, now time.Time) Status {
	switch p.State {
	case StateAbandoned:
		return StatusAbandoned
	case StateCompleted:
		return StatusCompleted
	}
	if now.Before(c.StartDate) {
		return StatusUpcoming
	}
	if now.After(c.EndDate) {
		return StatusCompleted
	}
	return StatusActive
}

// EffectiveCompletedAt returns when the participation completed, if it has.
// For time-driven completion this is the challenge end date.
func (p Participation) EffectiveCompletedAt(c Challenge, now time.Time) *time.Time {
	if p.CompletedAt != nil {
		return p.CompletedAt
	}
	if p.State == StateCurrent && now.After(c.EndDate) {
		end := c.EndDate
		return &end
	}
	return nil
}
