/*
Package challenge provides the savings challenge participation engine.

PURPOSE:
  This package contains the domain types and algorithms for collective
  savings challenges: joining a challenge with a computed savings target,
  logging contribution events against a participation, and deriving
  individual and collective progress from those events.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A monetary amount with a currency (decimal-backed)
  - Challenge: A time-boxed collective savings campaign (read-only facts)
  - Participation: One user's enrollment in one challenge
  - ContributionEvent: An immutable deposit/withdrawal ledger entry
  - IncomeSource: Tagged fixed-vs-variable income declaration

DESIGN PRINCIPLES:
  1. Immutability: Contribution events are never modified, only compensated
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Derivation: Current amount, progress and status are computed from
     stored facts plus the clock, never stored as mutable state
  4. Type Safety: Strong typing for IDs prevents mixing user/challenge IDs

USAGE:
  target, err := challenge.ComputeTarget(challenge.FixedIncome{
      Monthly: challenge.NewMoney(2000, "USD"),
  }, ch)

SEE ALSO:
  - goal.go: Savings target computation
  - status.go: Effective status derivation
  - ledger.go: Progress derivation from contribution events
*/
package challenge

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Monetary amount with currency
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value float64, currency string) Money {
	return Money{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewMoneyFromInt(value int, currency string) Money {
	return Money{Value: decimal.NewFromInt(int64(value)), Currency: currency}
}

func MoneyFromDecimal(value decimal.Decimal, currency string) Money {
	return Money{Value: value, Currency: currency}
}

func (m Money) Zero() Money               { return Money{Value: decimal.Zero, Currency: m.Currency} }
func (m Money) Add(b Money) Money         { return Money{Value: m.Value.Add(b.Value), Currency: m.Currency} }
func (m Money) Sub(b Money) Money         { return Money{Value: m.Value.Sub(b.Value), Currency: m.Currency} }
func (m Money) Neg() Money                { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) IsZero() bool              { return m.Value.IsZero() }
func (m Money) IsNegative() bool          { return m.Value.IsNegative() }
func (m Money) IsPositive() bool          { return m.Value.IsPositive() }
func (m Money) GreaterThan(b Money) bool  { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool     { return m.Value.LessThan(b.Value) }

// Round rounds to the nearest whole currency unit, half-up.
func (m Money) Round() Money { return Money{Value: m.Value.Round(0), Currency: m.Currency} }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ChallengeID string
type ParticipationID string
type EventID string

// =============================================================================
// CHALLENGE - Read-only campaign facts (owned by the catalog)
// =============================================================================

type ChallengeType string

const (
	ChallengeMonthly ChallengeType = "monthly"
	ChallengeWeekly  ChallengeType = "weekly"
	ChallengeDaily   ChallengeType = "daily"
	ChallengeCustom  ChallengeType = "custom"
)

// ChallengeStatus is derived from the clock, never stored.
type ChallengeStatus string

const (
	ChallengeUpcoming  ChallengeStatus = "upcoming"
	ChallengeActive    ChallengeStatus = "active"
	ChallengeCompleted ChallengeStatus = "completed"
	ChallengeCancelled ChallengeStatus = "cancelled"
)

// Challenge is a time-boxed collective savings campaign. The engine treats
// these as read-only facts supplied by the catalog.
//
// TargetAmount is the nominal collective target and is advisory only:
// aggregate views sum the participants' individual targets instead.
type Challenge struct {
	ID              ChallengeID
	Title           string
	Type            ChallengeType
	TargetAmount    Money
	StartDate       time.Time
	EndDate         time.Time
	MaxParticipants *int // nil = unlimited
	Cancelled       bool
	CreatedAt       time.Time
}

// Validate checks structural invariants (EndDate > StartDate).
func (c Challenge) Validate() error {
	if !c.EndDate.After(c.StartDate) {
		return ErrInvalidChallengeWindow
	}
	return nil
}

// =============================================================================
// PARTICIPATION - One user's enrollment in one challenge
// =============================================================================

type Mode string

const (
	// ModeFree: the user logs contributions manually.
	ModeFree Mode = "free"
	// ModeForced: contributions are fed from a linked funding account.
	ModeForced Mode = "forced"
)

// State is the PERSISTED participation state. Only the user-triggered
// terminal state (abandoned) and the lazily recorded time-completion are
// ever written; upcoming/active are derived from the clock (see status.go).
type State string

const (
	StateCurrent   State = "current"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Status is the EFFECTIVE participation status as observed at a point in
// time. Derived from State + challenge window + clock.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusAbandoned }

type AbandonCategory string

const (
	AbandonFinancialDifficulty  AbandonCategory = "financial_difficulty"
	AbandonLostInterest         AbandonCategory = "lost_interest"
	AbandonFoundBetterChallenge AbandonCategory = "found_better_challenge"
	AbandonPersonalIssues       AbandonCategory = "personal_issues"
	AbandonOther                AbandonCategory = "other"
)

func (c AbandonCategory) Valid() bool {
	switch c {
	case AbandonFinancialDifficulty, AbandonLostInterest,
		AbandonFoundBetterChallenge, AbandonPersonalIssues, AbandonOther:
		return true
	}
	return false
}

// Participation records one user's enrollment in one challenge.
//
// INVARIANTS:
//   - TargetAmount is frozen at join time and never recomputed
//   - At most one participation per user may be in State current
//   - Current amount / progress are NOT stored here; they are derived
//     from the contribution event log (see ledger.go)
type Participation struct {
	ID            ParticipationID
	UserID        UserID
	ChallengeID   ChallengeID
	Mode          Mode
	BankAccountID string // required for ModeForced
	TargetAmount  Money
	JoinedAt      time.Time
	State         State

	// Terminal bookkeeping, set exactly once.
	CompletedAt     *time.Time
	AbandonedAt     *time.Time
	AbandonReason   string
	AbandonCategory AbandonCategory
	AbandonComments string
}

// =============================================================================
// CONTRIBUTION EVENT - Immutable deposit/withdrawal record
// =============================================================================

type EventKind string

const (
	KindDeposit    EventKind = "deposit"
	KindWithdrawal EventKind = "withdrawal"
)

// ContributionEvent is an append-only ledger entry. Amount is always
// positive; direction comes from Kind. Corrections are made by inserting
// a compensating event of the opposite kind, never by edit or delete.
type ContributionEvent struct {
	ID              EventID
	ParticipationID ParticipationID
	Amount          Money
	Kind            EventKind
	OccurredAt      time.Time
	Description     string
}

// SignedDelta returns the event's effect on the running balance.
func (e ContributionEvent) SignedDelta() decimal.Decimal {
	if e.Kind == KindWithdrawal {
		return e.Amount.Value.Neg()
	}
	return e.Amount.Value
}

// =============================================================================
// INCOME SOURCE - Tagged fixed-vs-variable income declaration
// =============================================================================

// IncomeSource is the income declaration supplied at join time. It is a
// proper sum type rather than a flag plus optional fields, so invalid
// combinations cannot be constructed.
//
// Implementations:
//   - FixedIncome: single declared monthly income
//   - VariableIncome: up to six recent income samples
type IncomeSource interface {
	// MonthlyBasis returns the monthly income the savings goal is based on.
	// Fails with ErrInsufficientIncomeData if no usable samples exist.
	MonthlyBasis() (Money, error)

	// IncomeKind returns "fixed" or "variable" for logging and transport.
	IncomeKind() string
}

// FixedIncome declares a single fixed monthly income.
type FixedIncome struct {
	Monthly Money
}

func (f FixedIncome) MonthlyBasis() (Money, error) { return f.Monthly, nil }
func (f FixedIncome) IncomeKind() string           { return "fixed" }

// VariableIncome declares an ordered history of recent monthly income
// samples. Zero entries mean "not provided" and are ignored.
type VariableIncome struct {
	Currency string
	History  []decimal.Decimal // up to 6 samples, oldest first
}

// MonthlyBasis returns the mean of the strictly-positive samples.
func (v VariableIncome) MonthlyBasis() (Money, error) {
	sum := decimal.Zero
	n := 0
	for _, sample := range v.History {
		if sample.IsPositive() {
			sum = sum.Add(sample)
			n++
		}
	}
	if n == 0 {
		return Money{}, ErrInsufficientIncomeData
	}
	mean := sum.Div(decimal.NewFromInt(int64(n)))
	return MoneyFromDecimal(mean, v.Currency), nil
}

func (v VariableIncome) IncomeKind() string { return "variable" }
