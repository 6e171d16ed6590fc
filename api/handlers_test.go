/*
handlers_test.go - HTTP-level tests for the API surface

Tests drive the full stack (router, handlers, engine, SQLite store) with
httptest requests against an in-memory database.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/challenge-engine/catalog"
	"github.com/warp/challenge-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAPI(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store)
	return h, NewRouter(h, []string{"*"})
}

// seedActiveChallenge saves a challenge whose window surrounds the real clock.
func seedActiveChallenge(t *testing.T, h *Handler, id string) {
	t.Helper()
	now := time.Now().UTC()
	c, err := catalog.Parse([]byte(catalog.CustomChallengeJSON(
		id, "Active Challenge", 5000, now.AddDate(0, 0, -10), now.AddDate(0, 0, 20))))
	require.NoError(t, err)
	require.NoError(t, h.Store.SaveChallenge(context.Background(), c))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func joinBody(userID string) JoinChallengeRequest {
	return JoinChallengeRequest{
		UserID: userID,
		Mode:   "free",
		Income: IncomeDTO{Kind: "fixed", Currency: "USD", MonthlyIncome: 2000},
	}
}

// =============================================================================
// CHALLENGE ENDPOINT TESTS
// =============================================================================

func TestCreateAndGetChallenge(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/challenges", CreateChallengeRequest{
		ID:           "spring-sprint",
		Title:        "Spring Sprint",
		TargetAmount: 10000,
		StartDate:    "2026-09-01",
		EndDate:      "2026-10-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/challenges/spring-sprint", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[ChallengeDTO](t, rec)
	assert.Equal(t, "Spring Sprint", dto.Title)
	assert.Equal(t, "custom", dto.Type)
	assert.Equal(t, "2026-09-01", dto.StartDate)
}

func TestCreateChallenge_InvalidWindow(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/challenges", CreateChallengeRequest{
		ID:           "bad",
		Title:        "Bad",
		TargetAmount: 100,
		StartDate:    "2026-10-31",
		EndDate:      "2026-09-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChallenge_NotFound(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/api/challenges/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "challenge_not_found", resp.Code)
}

// =============================================================================
// JOIN ENDPOINT TESTS
// =============================================================================

func TestJoinChallenge_Success(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	dto := decode[ParticipationDTO](t, rec)
	assert.Equal(t, "user-1", dto.UserID)
	assert.Equal(t, "ch-1", dto.ChallengeID)
	assert.Equal(t, "active", dto.Status)
	// 30-day window -> 1 month -> 2000 x 0.10 x 1
	assert.Equal(t, 200.0, dto.TargetAmount)
	assert.Equal(t, 0.0, dto.CurrentAmount)
}

func TestJoinChallenge_SecondJoinConflicts(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "already_in_challenge", resp.Code)
}

func TestJoinChallenge_UnknownIncomeKind(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	body := joinBody("user-1")
	body.Income.Kind = "hourly"
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinChallenge_MissingUserID(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody(""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinChallenge_UnknownModeIsClientError(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	body := joinBody("user-1")
	body.Mode = "weekly"
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", body)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_mode", resp.Code)
}

func TestJoinChallenge_ForcedWithoutBankAccount(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	body := joinBody("user-1")
	body.Mode = "forced"
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "missing_bank_account", resp.Code)
}

// =============================================================================
// CONTRIBUTION ENDPOINT TESTS
// =============================================================================

func TestRecordContribution_FullFlow(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)
	joined := decode[ParticipationDTO](t, rec)

	// Deposit 50, then withdraw 20.
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/participations/%s/contributions", joined.ID),
		ContributionRequest{Amount: 50, Kind: "deposit", Description: "payday"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/participations/%s/contributions", joined.ID),
		ContributionRequest{Amount: 20, Kind: "withdrawal"})
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[ParticipationDTO](t, rec)
	assert.Equal(t, 30.0, dto.CurrentAmount)
	assert.Equal(t, 15.0, dto.ProgressPercentage) // 30 / 200
	assert.NotNil(t, dto.LastTransactionAt)

	// The event history lists both, in order.
	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/participations/%s/events", joined.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]EventDTO](t, rec)
	require.Len(t, events, 2)
	assert.Equal(t, "deposit", events[0].Kind)
	assert.Equal(t, "payday", events[0].Description)
	assert.Equal(t, "withdrawal", events[1].Kind)
}

func TestRecordContribution_InvalidAmount(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	joined := decode[ParticipationDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/participations/%s/contributions", joined.ID),
		ContributionRequest{Amount: -5, Kind: "deposit"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_amount", resp.Code)
}

func TestRecordContribution_UnknownParticipation(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/participations/ghost/contributions",
		ContributionRequest{Amount: 50, Kind: "deposit"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ABANDON / USER LOOKUP TESTS
// =============================================================================

func TestAbandonParticipation(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	joined := decode[ParticipationDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/participations/%s/abandon", joined.ID),
		AbandonRequest{Reason: "too tight this quarter", Category: "financial_difficulty"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decode[ParticipationDTO](t, rec)
	assert.Equal(t, "abandoned", dto.Status)
	assert.Equal(t, "financial_difficulty", dto.AbandonCategory)
	assert.NotNil(t, dto.AbandonedAt)

	// Abandoning again is a client error.
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/participations/%s/abandon", joined.ID),
		AbandonRequest{Reason: "again", Category: "other"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbandonParticipation_MissingReason(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	joined := decode[ParticipationDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/participations/%s/abandon", joined.ID),
		AbandonRequest{Category: "other"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_abandonment", resp.Code)
}

func TestGetUserParticipation(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")
	rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/users/user-1/participation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[ParticipationDTO](t, rec)
	assert.Equal(t, "ch-1", dto.ChallengeID)

	rec = doJSON(t, router, http.MethodGet, "/api/users/stranger/participation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// AGGREGATE / LEADERBOARD TESTS
// =============================================================================

func TestGetAggregate(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	for _, user := range []string{"user-1", "user-2"} {
		rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody(user))
		require.Equal(t, http.StatusCreated, rec.Code)
		joined := decode[ParticipationDTO](t, rec)
		rec = doJSON(t, router, http.MethodPost,
			fmt.Sprintf("/api/participations/%s/contributions", joined.ID),
			ContributionRequest{Amount: 100, Kind: "deposit"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/challenges/ch-1/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[AggregateDTO](t, rec)
	assert.Equal(t, 2, dto.TotalParticipants)
	assert.Equal(t, 200.0, dto.TotalAmountSaved)
	assert.Equal(t, 400.0, dto.CollectiveTarget) // 2 x 200 target
	assert.Equal(t, 50.0, dto.AverageProgress)
}

func TestGetLeaderboard(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	amounts := map[string]float64{"user-1": 150, "user-2": 60, "user-3": 90}
	for user, amount := range amounts {
		rec := doJSON(t, router, http.MethodPost, "/api/challenges/ch-1/join", joinBody(user))
		require.Equal(t, http.StatusCreated, rec.Code)
		joined := decode[ParticipationDTO](t, rec)
		rec = doJSON(t, router, http.MethodPost,
			fmt.Sprintf("/api/participations/%s/contributions", joined.ID),
			ContributionRequest{Amount: amount, Kind: "deposit"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet,
		"/api/challenges/ch-1/leaderboard?sort=amount&page_size=2&user_id=user-2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[LeaderboardDTO](t, rec)
	require.Len(t, dto.Entries, 2)
	assert.Equal(t, "user-1", dto.Entries[0].UserID)
	assert.Equal(t, 1, dto.Entries[0].Rank)
	assert.Equal(t, "user-3", dto.Entries[1].UserID)
	assert.Equal(t, 3, dto.UserRank) // off-page, still globally ranked
	assert.Equal(t, "amount", dto.Meta.SortKey)
	assert.Equal(t, 3, dto.Meta.TotalEntries)
	assert.Equal(t, 2, dto.Meta.TotalPages)
}

func TestGetLeaderboard_InvalidSortKey(t *testing.T) {
	h, router := newTestAPI(t)
	seedActiveChallenge(t, h, "ch-1")

	rec := doJSON(t, router, http.MethodGet, "/api/challenges/ch-1/leaderboard?sort=streak", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "invalid_sort_key", resp.Code)
}

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestScenarios_ListAndLoad(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/api/scenarios/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.GreaterOrEqual(t, len(list), 3)

	rec = doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "fresh-start"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[map[string]string](t, rec)
	assert.Equal(t, "fresh-start", current["scenario_id"])

	// The seeded challenge is live and aggregable.
	rec = doJSON(t, router, http.MethodGet, "/api/challenges/fresh-start/aggregate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	agg := decode[AggregateDTO](t, rec)
	assert.Equal(t, 3, agg.TotalParticipants)
	assert.Greater(t, agg.TotalAmountSaved, 0.0)
}

func TestScenarios_UnknownID(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_Reset(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/scenarios/load",
		LoadScenarioRequest{ScenarioID: "photo-finish"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/challenges", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	challenges := decode[[]ChallengeDTO](t, rec)
	assert.Empty(t, challenges)
}
