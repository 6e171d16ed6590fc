/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates challenges,
	participants, and contribution events that demonstrate specific
	features of the engine.

AVAILABLE SCENARIOS:

	fresh-start:     Active challenge, three savers at different paces
	upcoming-launch: Challenge that has not started yet (join/leave window)
	photo-finish:    Challenge ending soon with a tight leaderboard and
	                 one abandoned participant

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create challenges via the catalog presets
 3. Seed participations with back-dated join timestamps
 4. Append contribution events spread over the elapsed window

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "photo-finish"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - catalog/definitions.go: Challenge definition presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/warp/challenge-engine/catalog"
	"github.com/warp/challenge-engine/challenge"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-start",
		Name:        "Fresh Start",
		Description: "Active challenge with three savers at different paces",
	},
	{
		ID:          "upcoming-launch",
		Name:        "Upcoming Launch",
		Description: "Challenge that has not started yet; joins allowed, no contributions",
	},
	{
		ID:          "photo-finish",
		Name:        "Photo Finish",
		Description: "Challenge ending in two days with a tight leaderboard and one dropout",
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario id.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// LoadScenario resets the database and seeds the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "fresh-start":
		err = h.loadFreshStart(ctx)
	case "upcoming-launch":
		err = h.loadUpcomingLaunch(ctx)
	case "photo-finish":
		err = h.loadPhotoFinish(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadFreshStart(ctx context.Context) error {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -10)
	end := now.AddDate(0, 0, 20)

	c, err := catalog.Parse([]byte(catalog.CustomChallengeJSON(
		"fresh-start", "30-Day Savings Kickoff", 5000, start, end)))
	if err != nil {
		return err
	}
	if err := h.Store.SaveChallenge(ctx, c); err != nil {
		return err
	}

	// Three savers: steady, sporadic, and barely started.
	steady, err := h.seedParticipant(ctx, c, "user-amara", 600, start)
	if err != nil {
		return err
	}
	sporadic, err := h.seedParticipant(ctx, c, "user-bao", 450, start.AddDate(0, 0, 2))
	if err != nil {
		return err
	}
	slow, err := h.seedParticipant(ctx, c, "user-chidi", 300, start.AddDate(0, 0, 5))
	if err != nil {
		return err
	}

	for day := 0; day < 10; day++ {
		if err := h.seedEvent(ctx, steady.ID, 20, challenge.KindDeposit, start.AddDate(0, 0, day)); err != nil {
			return err
		}
	}
	for _, day := range []int{3, 7} {
		if err := h.seedEvent(ctx, sporadic.ID, 90, challenge.KindDeposit, start.AddDate(0, 0, day)); err != nil {
			return err
		}
	}
	if err := h.seedEvent(ctx, sporadic.ID, 40, challenge.KindWithdrawal, start.AddDate(0, 0, 8)); err != nil {
		return err
	}
	return h.seedEvent(ctx, slow.ID, 15, challenge.KindDeposit, start.AddDate(0, 0, 6))
}

func (h *Handler) loadUpcomingLaunch(ctx context.Context) error {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, 5)
	end := now.AddDate(0, 0, 35)

	c, err := catalog.Parse([]byte(catalog.CustomChallengeJSON(
		"upcoming-launch", "Next Month Sprint", 10000, start, end)))
	if err != nil {
		return err
	}
	if err := h.Store.SaveChallenge(ctx, c); err != nil {
		return err
	}

	// Enrolled before the window opens; no events yet.
	if _, err := h.seedParticipant(ctx, c, "user-dana", 500, now); err != nil {
		return err
	}
	_, err = h.seedParticipant(ctx, c, "user-eli", 350, now)
	return err
}

func (h *Handler) loadPhotoFinish(ctx context.Context) error {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -28)
	end := now.AddDate(0, 0, 2)

	c, err := catalog.Parse([]byte(catalog.CustomChallengeJSON(
		"photo-finish", "Last Stretch", 3000, start, end)))
	if err != nil {
		return err
	}
	if err := h.Store.SaveChallenge(ctx, c); err != nil {
		return err
	}

	leader, err := h.seedParticipant(ctx, c, "user-farah", 400, start)
	if err != nil {
		return err
	}
	chaser, err := h.seedParticipant(ctx, c, "user-gus", 400, start.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	third, err := h.seedParticipant(ctx, c, "user-hana", 500, start.AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	dropout, err := h.seedParticipant(ctx, c, "user-ivo", 350, start)
	if err != nil {
		return err
	}

	for day := 0; day < 26; day += 2 {
		if err := h.seedEvent(ctx, leader.ID, 30, challenge.KindDeposit, start.AddDate(0, 0, day)); err != nil {
			return err
		}
	}
	for day := 1; day < 26; day += 3 {
		if err := h.seedEvent(ctx, chaser.ID, 42, challenge.KindDeposit, start.AddDate(0, 0, day)); err != nil {
			return err
		}
	}
	if err := h.seedEvent(ctx, third.ID, 380, challenge.KindDeposit, start.AddDate(0, 0, 20)); err != nil {
		return err
	}

	if err := h.seedEvent(ctx, dropout.ID, 50, challenge.KindDeposit, start.AddDate(0, 0, 2)); err != nil {
		return err
	}
	abandonedAt := start.AddDate(0, 0, 9)
	dropout.State = challenge.StateAbandoned
	dropout.AbandonedAt = &abandonedAt
	dropout.AbandonReason = "Unexpected car repair"
	dropout.AbandonCategory = challenge.AbandonFinancialDifficulty
	return h.Store.UpdateState(ctx, *dropout)
}

// =============================================================================
// SEED HELPERS
// =============================================================================

// seedParticipant inserts a participation with a back-dated join.
func (h *Handler) seedParticipant(ctx context.Context, c challenge.Challenge, userID string, target float64, joinedAt time.Time) (*challenge.Participation, error) {
	p := challenge.Participation{
		ID:           challenge.ParticipationID(uuid.NewString()),
		UserID:       challenge.UserID(userID),
		ChallengeID:  c.ID,
		Mode:         challenge.ModeFree,
		TargetAmount: challenge.NewMoney(target, c.TargetAmount.Currency),
		JoinedAt:     joinedAt,
		State:        challenge.StateCurrent,
	}
	if err := h.Store.CreateParticipation(ctx, p); err != nil {
		return nil, fmt.Errorf("seeding participant %s: %w", userID, err)
	}
	return &p, nil
}

func (h *Handler) seedEvent(ctx context.Context, id challenge.ParticipationID, amount float64, kind challenge.EventKind, at time.Time) error {
	return h.Store.AppendEvent(ctx, challenge.ContributionEvent{
		ID:              challenge.EventID(uuid.NewString()),
		ParticipationID: id,
		Amount:          challenge.NewMoney(amount, "USD"),
		Kind:            kind,
		OccurredAt:      at,
	})
}
