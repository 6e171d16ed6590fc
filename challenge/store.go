/*
store.go - Persistence interfaces for the participation engine

PURPOSE:
  Defines the boundary between the domain logic and the database. The
  engine is a stateless service over these interfaces; implementations
  may use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  ChallengeStore:     Read-only challenge facts (the catalog boundary)
  ParticipationStore: Enrollment records and terminal-state transitions
  EventStore:         Append-only contribution events
  Notifier:           Fire-and-forget participation-created hook

APPEND-ONLY CONTRACT:
  EventStore has no Update or Delete. Corrections are compensating events.
  ParticipationStore allows exactly two mutations after creation: the
  terminal-state write (abandon / lazy completion) and the removal of a
  not-yet-started participation (leave before start - the one transition
  that erases the record rather than terminating it).

INVARIANT BACKSTOP:
  CreateParticipation must fail with ErrAlreadyInChallenge if the user
  already holds a participation in State current. The engine additionally
  serializes joins per user; the store-level constraint is the backstop
  that makes a lost race impossible (see store/sqlite partial unique index).

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - challenge/store: In-memory for testing/dev

SEE ALSO:
  - engine.go: The service composed over these interfaces
*/
package challenge

import (
	"context"
	"time"
)

// =============================================================================
// CHALLENGE STORE - Read-only catalog boundary
// =============================================================================

// ChallengeStore supplies challenge definitions. The engine never writes
// through this interface; challenge management belongs to the catalog.
type ChallengeStore interface {
	// GetChallenge returns the challenge or ErrChallengeNotFound.
	GetChallenge(ctx context.Context, id ChallengeID) (*Challenge, error)

	// ListChallenges returns all known challenges.
	ListChallenges(ctx context.Context) ([]Challenge, error)
}

// =============================================================================
// PARTICIPATION STORE
// =============================================================================

type ParticipationStore interface {
	// CreateParticipation persists a new enrollment. Fails with
	// ErrAlreadyInChallenge if the user already has a current participation.
	CreateParticipation(ctx context.Context, p Participation) error

	// GetParticipation returns the record or ErrParticipationNotFound.
	GetParticipation(ctx context.Context, id ParticipationID) (*Participation, error)

	// FindCurrentByUser returns the user's participation in State current,
	// or nil if none exists.
	FindCurrentByUser(ctx context.Context, userID UserID) (*Participation, error)

	// ListByChallenge returns all participations of a challenge, including
	// terminal ones (aggregation filters as needed).
	ListByChallenge(ctx context.Context, challengeID ChallengeID) ([]Participation, error)

	// UpdateState persists a terminal-state transition (abandon or lazy
	// completion). Only the State, CompletedAt, AbandonedAt, AbandonReason,
	// AbandonCategory and AbandonComments fields may change.
	UpdateState(ctx context.Context, p Participation) error

	// DeleteParticipation removes a record entirely. Used only for
	// leave-before-start; started participations are never deleted.
	DeleteParticipation(ctx context.Context, id ParticipationID) error
}

// =============================================================================
// EVENT STORE - Append-only contribution events
// =============================================================================

type EventStore interface {
	// AppendEvent persists a contribution event. This is the ONLY write.
	AppendEvent(ctx context.Context, ev ContributionEvent) error

	// LoadEvents returns a participation's events ordered by OccurredAt.
	LoadEvents(ctx context.Context, id ParticipationID) ([]ContributionEvent, error)

	// LoadEventsBatch returns events for many participations at once,
	// each slice ordered by OccurredAt. Used by aggregation.
	LoadEventsBatch(ctx context.Context, ids []ParticipationID) (map[ParticipationID][]ContributionEvent, error)
}

// =============================================================================
// NOTIFIER - Outbound participation-created hook
// =============================================================================

// Notifier receives a snapshot of every created participation so external
// collaborators (engagement documents, notifications) can react.
// Fire-and-forget: implementations must not fail the join, and the engine
// ignores anything that happens here.
type Notifier interface {
	ParticipationCreated(ctx context.Context, p Participation, c Challenge)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) ParticipationCreated(context.Context, Participation, Challenge) {}

// Clock abstracts "now" so tests can pin time.
type Clock func() time.Time
