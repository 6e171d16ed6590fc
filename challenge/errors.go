/*
errors.go - Centralized error types for the participation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every failure the engine can return is a typed business-rule violation;
  the engine never retries and never swallows an error.

ERROR CATEGORIES:
  1. Join errors - eligibility and invariant violations
  2. Ledger errors - contribution window and amount violations
  3. Lookup errors - missing challenges/participations

USAGE:
  The API layer classifies errors for HTTP mapping:

    if challenge.IsNotFound(err) { ... 404 ... }
    if errors.Is(err, challenge.ErrAlreadyInChallenge) { ... 409 ... }

  and renders a stable machine-readable code via ErrorCode(err).

SEE ALSO:
  - engine.go: Returns these errors
  - api/handlers.go: Maps them to HTTP responses
*/
package challenge

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrChallengeNotJoinable is returned when the challenge is completed,
	// cancelled, or full.
	ErrChallengeNotJoinable = errors.New("challenge not joinable")

	// ErrAlreadyInChallenge is returned when the user already holds a
	// non-terminal participation. This enforces the single-current invariant.
	ErrAlreadyInChallenge = errors.New("user already has a current participation")

	// ErrMissingBankAccount is returned for forced mode without an account.
	ErrMissingBankAccount = errors.New("forced mode requires a bank account")

	// ErrInsufficientIncomeData is returned when a variable-income profile
	// contains no strictly-positive samples.
	ErrInsufficientIncomeData = errors.New("insufficient income data")

	// ErrOutsideContributionWindow is returned for contributions before the
	// challenge starts or after it ends.
	ErrOutsideContributionWindow = errors.New("outside contribution window")

	// ErrParticipationTerminated is returned when a mutating action targets
	// a completed or abandoned participation.
	ErrParticipationTerminated = errors.New("participation terminated")

	// ErrParticipationNotFound is returned when the referenced id does not exist.
	ErrParticipationNotFound = errors.New("participation not found")

	// ErrChallengeNotFound is returned when the catalog has no such challenge.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrInvalidAmount is returned for non-positive contribution amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidAbandonment is returned when the abandon reason is empty or
	// the category is not one of the known values.
	ErrInvalidAbandonment = errors.New("abandon requires a reason and a valid category")

	// ErrChallengeStarted is returned when leave-before-start is attempted
	// once the challenge window has opened. Leaving a started challenge is
	// always an abandonment.
	ErrChallengeStarted = errors.New("challenge already started")

	// ErrParticipationNotStarted is returned when abandon targets a
	// participation whose challenge has not started. Pre-start exits are
	// removals (LeaveBeforeStart), not abandonments.
	ErrParticipationNotStarted = errors.New("participation not yet active; leave before start instead")

	// ErrInvalidMode is returned for participation modes other than
	// free or forced.
	ErrInvalidMode = errors.New("unknown participation mode")

	// ErrInvalidEventKind is returned for event kinds other than
	// deposit or withdrawal.
	ErrInvalidEventKind = errors.New("unknown event kind")

	// ErrInvalidChallengeWindow is returned for challenge definitions whose
	// end date is not after the start date.
	ErrInvalidChallengeWindow = errors.New("invalid challenge window: end before start")

	// ErrInvalidSortKey is returned for unknown leaderboard sort keys.
	ErrInvalidSortKey = errors.New("invalid leaderboard sort key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotJoinableError explains why a join was refused at the challenge level.
type NotJoinableError struct {
	ChallengeID ChallengeID
	Status      ChallengeStatus
	Full        bool
}

func (e *NotJoinableError) Error() string {
	if e.Full {
		return fmt.Sprintf("challenge %s is full", e.ChallengeID)
	}
	return fmt.Sprintf("challenge %s is %s", e.ChallengeID, e.Status)
}

func (e *NotJoinableError) Unwrap() error { return ErrChallengeNotJoinable }

// AlreadyInChallengeError identifies the participation blocking a join.
type AlreadyInChallengeError struct {
	UserID          UserID
	ParticipationID ParticipationID
	ChallengeID     ChallengeID
}

func (e *AlreadyInChallengeError) Error() string {
	return fmt.Sprintf("user %s already participates in challenge %s (participation %s)",
		e.UserID, e.ChallengeID, e.ParticipationID)
}

func (e *AlreadyInChallengeError) Unwrap() error { return ErrAlreadyInChallenge }

// OutsideWindowError reports a contribution attempted outside [start, end].
type OutsideWindowError struct {
	At    time.Time
	Start time.Time
	End   time.Time
}

func (e *OutsideWindowError) Error() string {
	return fmt.Sprintf("contribution at %s outside window [%s, %s]",
		e.At.Format(time.RFC3339), e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

func (e *OutsideWindowError) Unwrap() error { return ErrOutsideContributionWindow }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is a business-rule violation
// caused by the request rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrChallengeNotJoinable) ||
		errors.Is(err, ErrAlreadyInChallenge) ||
		errors.Is(err, ErrMissingBankAccount) ||
		errors.Is(err, ErrInsufficientIncomeData) ||
		errors.Is(err, ErrOutsideContributionWindow) ||
		errors.Is(err, ErrParticipationTerminated) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidAbandonment) ||
		errors.Is(err, ErrChallengeStarted) ||
		errors.Is(err, ErrParticipationNotStarted) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidEventKind) ||
		errors.Is(err, ErrInvalidChallengeWindow) ||
		errors.Is(err, ErrInvalidSortKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrParticipationNotFound) ||
		errors.Is(err, ErrChallengeNotFound)
}

// ErrorCode returns a stable machine-readable code for API responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrChallengeNotJoinable):
		return "challenge_not_joinable"
	case errors.Is(err, ErrAlreadyInChallenge):
		return "already_in_challenge"
	case errors.Is(err, ErrMissingBankAccount):
		return "missing_bank_account"
	case errors.Is(err, ErrInsufficientIncomeData):
		return "insufficient_income_data"
	case errors.Is(err, ErrOutsideContributionWindow):
		return "outside_contribution_window"
	case errors.Is(err, ErrParticipationTerminated):
		return "participation_terminated"
	case errors.Is(err, ErrParticipationNotFound):
		return "participation_not_found"
	case errors.Is(err, ErrChallengeNotFound):
		return "challenge_not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidAbandonment):
		return "invalid_abandonment"
	case errors.Is(err, ErrChallengeStarted):
		return "challenge_started"
	case errors.Is(err, ErrParticipationNotStarted):
		return "participation_not_started"
	case errors.Is(err, ErrInvalidMode):
		return "invalid_mode"
	case errors.Is(err, ErrInvalidEventKind):
		return "invalid_event_kind"
	case errors.Is(err, ErrInvalidChallengeWindow):
		return "invalid_challenge_window"
	case errors.Is(err, ErrInvalidSortKey):
		return "invalid_sort_key"
	default:
		return "internal"
	}
}
