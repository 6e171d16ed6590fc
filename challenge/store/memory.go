// Package store provides in-memory implementations of the engine's
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/challenge-engine/challenge"
)

// =============================================================================
// MEMORY STORE - Implements ChallengeStore, ParticipationStore, EventStore
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	challenges map[challenge.ChallengeID]challenge.Challenge
	parts      map[challenge.ParticipationID]challenge.Participation
	events     map[challenge.ParticipationID][]challenge.ContributionEvent
}

func NewMemory() *Memory {
	return &Memory{
		challenges: make(map[challenge.ChallengeID]challenge.Challenge),
		parts:      make(map[challenge.ParticipationID]challenge.Participation),
		events:     make(map[challenge.ParticipationID][]challenge.ContributionEvent),
	}
}

// =============================================================================
// CHALLENGE STORE
// =============================================================================

// PutChallenge seeds a challenge definition. Catalog-side write; the engine
// itself never calls this.
func (m *Memory) PutChallenge(_ context.Context, c challenge.Challenge) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challenges[c.ID] = c
	return nil
}

func (m *Memory) GetChallenge(_ context.Context, id challenge.ChallengeID) (*challenge.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[id]
	if !ok {
		return nil, challenge.ErrChallengeNotFound
	}
	return &c, nil
}

func (m *Memory) ListChallenges(_ context.Context) ([]challenge.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]challenge.Challenge, 0, len(m.challenges))
	for _, c := range m.challenges {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// PARTICIPATION STORE
// =============================================================================

// CreateParticipation enforces the single-current backstop: at most one
// participation per user in State current, across all challenges.
func (m *Memory) CreateParticipation(_ context.Context, p challenge.Participation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.parts {
		if existing.UserID == p.UserID && existing.State == challenge.StateCurrent {
			return &challenge.AlreadyInChallengeError{
				UserID:          p.UserID,
				ParticipationID: existing.ID,
				ChallengeID:     existing.ChallengeID,
			}
		}
	}
	m.parts[p.ID] = p
	return nil
}

func (m *Memory) GetParticipation(_ context.Context, id challenge.ParticipationID) (*challenge.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.parts[id]
	if !ok {
		return nil, challenge.ErrParticipationNotFound
	}
	return &p, nil
}

func (m *Memory) FindCurrentByUser(_ context.Context, userID challenge.UserID) (*challenge.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.parts {
		if p.UserID == userID && p.State == challenge.StateCurrent {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListByChallenge(_ context.Context, challengeID challenge.ChallengeID) ([]challenge.Participation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []challenge.Participation
	for _, p := range m.parts {
		if p.ChallengeID == challengeID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpdateState(_ context.Context, p challenge.Participation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.parts[p.ID]
	if !ok {
		return challenge.ErrParticipationNotFound
	}

	existing.State = p.State
	existing.CompletedAt = p.CompletedAt
	existing.AbandonedAt = p.AbandonedAt
	existing.AbandonReason = p.AbandonReason
	existing.AbandonCategory = p.AbandonCategory
	existing.AbandonComments = p.AbandonComments
	m.parts[p.ID] = existing
	return nil
}

func (m *Memory) DeleteParticipation(_ context.Context, id challenge.ParticipationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.parts[id]; !ok {
		return challenge.ErrParticipationNotFound
	}
	delete(m.parts, id)
	delete(m.events, id)
	return nil
}

// =============================================================================
// EVENT STORE
// =============================================================================

// AppendEvent inserts the event in OccurredAt order. Append-only.
func (m *Memory) AppendEvent(_ context.Context, ev challenge.ContributionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[ev.ParticipationID]

	// Binary search for the insertion point keeps reads sort-free.
	i := sort.Search(len(events), func(i int) bool {
		return events[i].OccurredAt.After(ev.OccurredAt)
	})
	events = append(events, challenge.ContributionEvent{})
	copy(events[i+1:], events[i:])
	events[i] = ev
	m.events[ev.ParticipationID] = events
	return nil
}

func (m *Memory) LoadEvents(_ context.Context, id challenge.ParticipationID) ([]challenge.ContributionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]challenge.ContributionEvent, len(m.events[id]))
	copy(result, m.events[id])
	return result, nil
}

func (m *Memory) LoadEventsBatch(_ context.Context, ids []challenge.ParticipationID) (map[challenge.ParticipationID][]challenge.ContributionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[challenge.ParticipationID][]challenge.ContributionEvent, len(ids))
	for _, id := range ids {
		events := make([]challenge.ContributionEvent, len(m.events[id]))
		copy(events, m.events[id])
		result[id] = events
	}
	return result, nil
}
