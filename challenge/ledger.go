/*
ledger.go - Progress derivation from the contribution event log

PURPOSE:
  The contribution event log is the immutable source of truth for a
  participation's balance. Current amount and progress percentage are
  always computed by replaying events - there is no stored balance field
  that can get out of sync or race under concurrent writes.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. CLAMPED FOLD: the running balance is floored at zero after EVERY
     event. A withdrawal larger than the running balance clamps the
     balance to zero rather than going negative - there is no overdraft
     concept and no error is raised.
  3. UNCLAMPED PROGRESS: progress percentage is stored/reported unclamped
     (it can exceed 100); display-time clamping belongs to the UI.

CORRECTIONS:
  Mistaken events are never edited. A compensating event of the opposite
  kind is appended instead, preserving full history.

SEE ALSO:
  - store.go: EventStore persistence interface
  - engine.go: Appends events after window validation
*/
package challenge

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROGRESS - Derived snapshot of a participation's balance
// =============================================================================

// Progress is the derived view of a participation's saved amount. It is
// computed per read and never persisted.
type Progress struct {
	ParticipationID    ParticipationID
	CurrentAmount      Money
	TargetAmount       Money
	ProgressPercentage decimal.Decimal // unclamped; may exceed 100
	EventCount         int
	LastTransactionAt  *time.Time
}

// TargetReached reports whether the saved amount covers the target.
func (p Progress) TargetReached() bool {
	return p.ProgressPercentage.GreaterThanOrEqual(decimal.NewFromInt(100))
}

// Replay folds the event log into a Progress snapshot. Events must be
// ordered by OccurredAt (stores guarantee this).
//
// The fold clamps at zero after each event:
//
//	current = max(0, current + signedDelta(event))
//
// so [+50, -100, +30] yields 30, not max(0, -20).
func Replay(p Participation, events []ContributionEvent) Progress {
	current := decimal.Zero
	var last *time.Time

	for i := range events {
		current = current.Add(events[i].SignedDelta())
		if current.IsNegative() {
			current = decimal.Zero
		}
		at := events[i].OccurredAt
		last = &at
	}

	pct := decimal.Zero
	if p.TargetAmount.Value.IsPositive() {
		pct = current.Div(p.TargetAmount.Value).Mul(decimal.NewFromInt(100))
	}

	return Progress{
		ParticipationID:    p.ID,
		CurrentAmount:      MoneyFromDecimal(current, p.TargetAmount.Currency),
		TargetAmount:       p.TargetAmount,
		ProgressPercentage: pct,
		EventCount:         len(events),
		LastTransactionAt:  last,
	}
}

// =============================================================================
// CONSISTENCY - Contribution regularity score for leaderboards
// =============================================================================

// ConsistencyScore rewards frequent, recent saving: the number of distinct
// calendar days (UTC) with at least one deposit, divided by the number of
// days elapsed since joining (the join day counts as day one).
func ConsistencyScore(p Participation, events []ContributionEvent, now time.Time) decimal.Decimal {
	days := make(map[string]struct{})
	for i := range events {
		if events[i].Kind != KindDeposit {
			continue
		}
		days[events[i].OccurredAt.UTC().Format("2006-01-02")] = struct{}{}
	}
	if len(days) == 0 {
		return decimal.Zero
	}

	elapsed := int(now.Sub(p.JoinedAt).Hours()/24) + 1
	if elapsed < 1 {
		elapsed = 1
	}
	return decimal.NewFromInt(int64(len(days))).Div(decimal.NewFromInt(int64(elapsed)))
}
