/*
engine.go - The participation service

PURPOSE:
  Stateless service implementing the participation lifecycle over the
  injected stores: Join, LeaveBeforeStart, RecordContribution, Abandon,
  and derived snapshots. All business-rule failures are typed errors
  (errors.go); every operation is all-or-nothing.

CONCURRENCY:
  Two classes of operation are serialized in-process:

  - Join/Abandon/Leave are serialized PER USER via a keyed mutex, so the
    existence check and the creation/termination form one indivisible unit.
    The store's uniqueness constraint on current participations is the
    backstop for multi-process deployments.

  - Contribution appends are serialized PER PARTICIPATION. Balances are
    derived by replaying the event log, so there is no read-modify-write
    on a stored amount to protect; the lock fixes the append order and
    excludes the terminal write.

  - Abandon holds BOTH locks, user first then participation, so a checked
    contribution cannot append after the terminal state lands. Lock order
    is fixed (user before participation) to rule out deadlock.

LAZY TRANSITIONS:
  upcoming -> active and active -> completed are derived on read
  (status.go) and are idempotent. When Join observes that the blocking
  participation's window has expired, it settles it to completed first;
  this write-back is idempotent and keeps the store's "one current per
  user" constraint accurate.

SEE ALSO:
  - status.go: Effective status derivation
  - ledger.go: Progress derivation
  - aggregate.go: Collective views (read-only sibling)
*/
package challenge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// KEYED MUTEX - Per-key serialization for joins and appends
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (km *keyedMutex) Lock(key string) func() {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		km.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	challenges ChallengeStore
	parts      ParticipationStore
	events     EventStore
	notifier   Notifier
	now        Clock

	userLocks *keyedMutex
	partLocks *keyedMutex
}

type Option func(*Engine)

// WithClock pins the engine's notion of "now" (tests).
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.now = clock }
}

// WithNotifier installs the participation-created hook.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func NewEngine(challenges ChallengeStore, parts ParticipationStore, events EventStore, opts ...Option) *Engine {
	e := &Engine{
		challenges: challenges,
		parts:      parts,
		events:     events,
		notifier:   NopNotifier{},
		now:        time.Now,
		userLocks:  newKeyedMutex(),
		partLocks:  newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// JOIN
// =============================================================================

// JoinRequest carries everything needed to enroll a user.
type JoinRequest struct {
	UserID        UserID
	ChallengeID   ChallengeID
	Income        IncomeSource
	Mode          Mode
	BankAccountID string
}

// Join enrolls a user in a challenge.
//
// Preconditions (checked in order):
//  1. the challenge exists and is upcoming or active (and not full)
//  2. forced mode carries a bank account reference
//  3. the user holds no other current participation, system-wide
//  4. the income declaration yields a usable savings target
//
// The whole check-and-create sequence runs under the user's lock.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (*Participation, error) {
	unlock := e.userLocks.Lock(string(req.UserID))
	defer unlock()

	now := e.now()

	c, err := e.challenges.GetChallenge(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !c.Joinable(now) {
		return nil, &NotJoinableError{ChallengeID: c.ID, Status: c.StatusAt(now)}
	}
	if c.MaxParticipants != nil {
		count, err := e.countActiveParticipants(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if count >= *c.MaxParticipants {
			return nil, &NotJoinableError{ChallengeID: c.ID, Status: c.StatusAt(now), Full: true}
		}
	}

	switch req.Mode {
	case ModeFree:
	case ModeForced:
		if req.BankAccountID == "" {
			return nil, ErrMissingBankAccount
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, req.Mode)
	}

	existing, err := e.parts.FindCurrentByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		blocked, err := e.settleIfCompleted(ctx, existing)
		if err != nil {
			return nil, err
		}
		if blocked {
			return nil, &AlreadyInChallengeError{
				UserID:          req.UserID,
				ParticipationID: existing.ID,
				ChallengeID:     existing.ChallengeID,
			}
		}
	}

	target, err := ComputeTarget(req.Income, *c)
	if err != nil {
		return nil, err
	}

	p := Participation{
		ID:            ParticipationID(uuid.NewString()),
		UserID:        req.UserID,
		ChallengeID:   req.ChallengeID,
		Mode:          req.Mode,
		BankAccountID: req.BankAccountID,
		TargetAmount:  target,
		JoinedAt:      now,
		State:         StateCurrent,
	}

	if err := e.parts.CreateParticipation(ctx, p); err != nil {
		return nil, err
	}

	e.notifier.ParticipationCreated(ctx, p, *c)

	return &p, nil
}

// settleIfCompleted lazily persists time-driven completion for a current
// participation whose challenge window has expired. Returns true if the
// participation still blocks a new join. Idempotent.
func (e *Engine) settleIfCompleted(ctx context.Context, p *Participation) (blocked bool, err error) {
	c, err := e.challenges.GetChallenge(ctx, p.ChallengeID)
	if err != nil {
		return true, err
	}

	now := e.now()
	if p.EffectiveStatus(*c, now) != StatusCompleted {
		return true, nil
	}

	p.State = StateCompleted
	end := c.EndDate
	p.CompletedAt = &end
	if err := e.parts.UpdateState(ctx, *p); err != nil {
		return true, err
	}
	return false, nil
}

func (e *Engine) countActiveParticipants(ctx context.Context, id ChallengeID) (int, error) {
	parts, err := e.parts.ListByChallenge(ctx, id)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range parts {
		if parts[i].State != StateAbandoned {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// LEAVE BEFORE START
// =============================================================================

// LeaveBeforeStart removes a not-yet-started participation entirely, with
// no abandonment record. Once the challenge has started, leaving is always
// an abandonment (ErrChallengeStarted).
func (e *Engine) LeaveBeforeStart(ctx context.Context, id ParticipationID) error {
	p, err := e.parts.GetParticipation(ctx, id)
	if err != nil {
		return err
	}

	unlock := e.userLocks.Lock(string(p.UserID))
	defer unlock()

	// Re-read under the lock; a concurrent abandon may have landed.
	p, err = e.parts.GetParticipation(ctx, id)
	if err != nil {
		return err
	}
	if p.State != StateCurrent {
		return ErrParticipationTerminated
	}

	c, err := e.challenges.GetChallenge(ctx, p.ChallengeID)
	if err != nil {
		return err
	}
	if !e.now().Before(c.StartDate) {
		return ErrChallengeStarted
	}

	return e.parts.DeleteParticipation(ctx, id)
}

// =============================================================================
// ABANDON
// =============================================================================

// Abandon terminates an active participation. Irreversible. Requires a
// non-empty reason and a known category.
//
// Holds the user lock AND the participation lock (in that order): the user
// lock excludes concurrent joins/leaves, the participation lock excludes an
// in-flight contribution append, so no event can land after the terminal
// write.
func (e *Engine) Abandon(ctx context.Context, id ParticipationID, reason string, category AbandonCategory, comments string) (*Participation, error) {
	if reason == "" || !category.Valid() {
		return nil, ErrInvalidAbandonment
	}

	p, err := e.parts.GetParticipation(ctx, id)
	if err != nil {
		return nil, err
	}

	unlockUser := e.userLocks.Lock(string(p.UserID))
	defer unlockUser()
	unlockPart := e.partLocks.Lock(string(id))
	defer unlockPart()

	p, err = e.parts.GetParticipation(ctx, id)
	if err != nil {
		return nil, err
	}

	c, err := e.challenges.GetChallenge(ctx, p.ChallengeID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch p.EffectiveStatus(*c, now) {
	case StatusAbandoned, StatusCompleted:
		return nil, ErrParticipationTerminated
	case StatusUpcoming:
		// Before the start there is nothing to abandon; leaving is a removal.
		return nil, ErrParticipationNotStarted
	}

	p.State = StateAbandoned
	at := now
	p.AbandonedAt = &at
	p.AbandonReason = reason
	p.AbandonCategory = category
	p.AbandonComments = comments

	if err := e.parts.UpdateState(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// RECORD CONTRIBUTION
// =============================================================================

// RecordContribution appends a deposit or withdrawal event and returns the
// recomputed progress.
//
// Precondition: the participation is effectively active AND now lies within
// [startDate, endDate] (inclusive). The window check holds even if the
// persisted state lags behind the clock.
func (e *Engine) RecordContribution(ctx context.Context, id ParticipationID, amount Money, kind EventKind, description string) (*Participation, Progress, error) {
	if !amount.IsPositive() {
		return nil, Progress{}, ErrInvalidAmount
	}
	if kind != KindDeposit && kind != KindWithdrawal {
		return nil, Progress{}, fmt.Errorf("%w: %q", ErrInvalidEventKind, kind)
	}

	unlock := e.partLocks.Lock(string(id))
	defer unlock()

	p, err := e.parts.GetParticipation(ctx, id)
	if err != nil {
		return nil, Progress{}, err
	}
	if p.State != StateCurrent {
		return nil, Progress{}, ErrParticipationTerminated
	}

	c, err := e.challenges.GetChallenge(ctx, p.ChallengeID)
	if err != nil {
		return nil, Progress{}, err
	}

	now := e.now()
	if !c.InContributionWindow(now) {
		return nil, Progress{}, &OutsideWindowError{At: now, Start: c.StartDate, End: c.EndDate}
	}

	ev := ContributionEvent{
		ID:              EventID(uuid.NewString()),
		ParticipationID: id,
		Amount:          Money{Value: amount.Value, Currency: p.TargetAmount.Currency},
		Kind:            kind,
		OccurredAt:      now,
		Description:     description,
	}
	if err := e.events.AppendEvent(ctx, ev); err != nil {
		return nil, Progress{}, err
	}

	events, err := e.events.LoadEvents(ctx, id)
	if err != nil {
		return nil, Progress{}, err
	}
	return p, Replay(*p, events), nil
}

// =============================================================================
// SNAPSHOTS - Derived read views
// =============================================================================

// Snapshot bundles a participation with its derived status and progress.
type Snapshot struct {
	Participation Participation
	Challenge     Challenge
	Status        Status
	Progress      Progress
	CompletedAt   *time.Time
}

// GetSnapshot returns the derived view of a participation. Pure read: lazy
// transitions are reflected in the snapshot but not written back.
func (e *Engine) GetSnapshot(ctx context.Context, id ParticipationID) (*Snapshot, error) {
	p, err := e.parts.GetParticipation(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.snapshot(ctx, p)
}

// CurrentForUser returns the snapshot of the user's current participation,
// or nil if the user holds none (a time-completed one does not count).
func (e *Engine) CurrentForUser(ctx context.Context, userID UserID) (*Snapshot, error) {
	p, err := e.parts.FindCurrentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	s, err := e.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusCompleted {
		return nil, nil
	}
	return s, nil
}

// Events returns the full contribution history of a participation.
func (e *Engine) Events(ctx context.Context, id ParticipationID) ([]ContributionEvent, error) {
	if _, err := e.parts.GetParticipation(ctx, id); err != nil {
		return nil, err
	}
	return e.events.LoadEvents(ctx, id)
}

func (e *Engine) snapshot(ctx context.Context, p *Participation) (*Snapshot, error) {
	c, err := e.challenges.GetChallenge(ctx, p.ChallengeID)
	if err != nil {
		return nil, err
	}
	events, err := e.events.LoadEvents(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	return &Snapshot{
		Participation: *p,
		Challenge:     *c,
		Status:        p.EffectiveStatus(*c, now),
		Progress:      Replay(*p, events),
		CompletedAt:   p.EffectiveCompletedAt(*c, now),
	}, nil
}
