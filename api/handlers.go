/*
handlers.go - HTTP API handlers for the savings challenge engine

PURPOSE:
  Exposes the participation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Challenges:
    GET    /api/challenges                     List challenges
    POST   /api/challenges                     Create challenge (catalog)
    GET    /api/challenges/{id}                Get challenge
    POST   /api/challenges/{id}/join           Join
    GET    /api/challenges/{id}/aggregate      Collective stats
    GET    /api/challenges/{id}/leaderboard    Ranked, paginated leaderboard

  Participations:
    GET    /api/participations/{id}                Derived snapshot
    GET    /api/participations/{id}/events         Contribution history
    POST   /api/participations/{id}/contributions  Record deposit/withdrawal
    POST   /api/participations/{id}/abandon        Abandon
    DELETE /api/participations/{id}                Leave before start

  Users:
    GET    /api/users/{id}/participation       Current participation lookup

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Seed a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, business-rule violations
  - 404: Resource not found
  - 409: Conflict (user already in a challenge)
  - 500: Internal errors
  Every business failure carries a stable machine-readable code
  (challenge.ErrorCode) sufficient for the UI to render a specific message.

SECURITY NOTE:
  No authentication middleware currently. Identity arrives as a plain
  user_id field; an auth layer in front of this service must supply it.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/challenge-engine/catalog"
	"github.com/warp/challenge-engine/challenge"
	"github.com/warp/challenge-engine/store/sqlite"
)

var errUnknownIncomeKind = errors.New("income kind must be \"fixed\" or \"variable\"")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Engine     *challenge.Engine
	Aggregator *challenge.Aggregator

	now challenge.Clock

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store, opts ...challenge.Option) *Handler {
	engine := challenge.NewEngine(store, store, store, opts...)
	return &Handler{
		Store:      store,
		Engine:     engine,
		Aggregator: challenge.NewAggregator(store, store, store),
		now:        time.Now,
	}
}

// =============================================================================
// CHALLENGE HANDLERS
// =============================================================================

// ListChallenges returns all challenge definitions.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.Store.ListChallenges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list challenges", err)
		return
	}

	now := h.now()
	dtos := make([]ChallengeDTO, len(challenges))
	for i, c := range challenges {
		dtos[i] = toChallengeDTO(c, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChallenge returns a single challenge.
func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	id := challenge.ChallengeID(chi.URLParam(r, "id"))

	c, err := h.Store.GetChallenge(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChallengeDTO(*c, h.now()))
}

// CreateChallenge creates a challenge from a catalog definition.
func (h *Handler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := catalog.FromDefinition(catalog.DefinitionJSON{
		ID:              req.ID,
		Title:           req.Title,
		Type:            req.Type,
		TargetAmount:    req.TargetAmount,
		Currency:        req.Currency,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), err)
		return
	}

	if err := h.Store.SaveChallenge(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save challenge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChallengeDTO(c, h.now()))
}

// =============================================================================
// PARTICIPATION HANDLERS
// =============================================================================

// JoinChallenge enrolls a user in a challenge.
func (h *Handler) JoinChallenge(w http.ResponseWriter, r *http.Request) {
	challengeID := challenge.ChallengeID(chi.URLParam(r, "id"))

	var req JoinChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", nil)
		return
	}

	income, err := toIncomeSource(req.Income)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), err)
		return
	}

	mode := challenge.Mode(req.Mode)
	if mode == "" {
		mode = challenge.ModeFree
	}

	p, err := h.Engine.Join(r.Context(), challenge.JoinRequest{
		UserID:        challenge.UserID(req.UserID),
		ChallengeID:   challengeID,
		Income:        income,
		Mode:          mode,
		BankAccountID: req.BankAccountID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	joinsTotal.Inc()

	snap, err := h.Engine.GetSnapshot(r.Context(), p.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load participation", err)
		return
	}
	writeJSON(w, http.StatusCreated, toParticipationDTO(*snap))
}

// GetParticipation returns the derived snapshot of a participation.
func (h *Handler) GetParticipation(w http.ResponseWriter, r *http.Request) {
	id := challenge.ParticipationID(chi.URLParam(r, "id"))

	snap, err := h.Engine.GetSnapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTO(*snap))
}

// GetParticipationEvents returns the contribution history.
func (h *Handler) GetParticipationEvents(w http.ResponseWriter, r *http.Request) {
	id := challenge.ParticipationID(chi.URLParam(r, "id"))

	events, err := h.Engine.Events(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordContribution appends a deposit or withdrawal.
func (h *Handler) RecordContribution(w http.ResponseWriter, r *http.Request) {
	id := challenge.ParticipationID(chi.URLParam(r, "id"))

	var req ContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	kind := challenge.EventKind(req.Kind)
	if kind == "" {
		kind = challenge.KindDeposit
	}

	_, _, err := h.Engine.RecordContribution(r.Context(), id,
		challenge.NewMoney(req.Amount, ""), kind, req.Description)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	contributionsTotal.WithLabelValues(string(kind)).Inc()

	snap, err := h.Engine.GetSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load participation", err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTO(*snap))
}

// AbandonParticipation terminates an active participation.
func (h *Handler) AbandonParticipation(w http.ResponseWriter, r *http.Request) {
	id := challenge.ParticipationID(chi.URLParam(r, "id"))

	var req AbandonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	_, err := h.Engine.Abandon(r.Context(), id, req.Reason,
		challenge.AbandonCategory(req.Category), req.Comments)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	abandonsTotal.WithLabelValues(req.Category).Inc()

	snap, err := h.Engine.GetSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load participation", err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTO(*snap))
}

// LeaveParticipation removes a not-yet-started participation.
func (h *Handler) LeaveParticipation(w http.ResponseWriter, r *http.Request) {
	id := challenge.ParticipationID(chi.URLParam(r, "id"))

	if err := h.Engine.LeaveBeforeStart(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserParticipation returns the user's current participation, if any.
func (h *Handler) GetUserParticipation(w http.ResponseWriter, r *http.Request) {
	userID := challenge.UserID(chi.URLParam(r, "id"))

	snap, err := h.Engine.CurrentForUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "No current participation", challenge.ErrParticipationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toParticipationDTO(*snap))
}

// =============================================================================
// AGGREGATE HANDLERS
// =============================================================================

// GetAggregate returns the collective statistics of a challenge.
func (h *Handler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	id := challenge.ChallengeID(chi.URLParam(r, "id"))

	view, err := h.Aggregator.Aggregate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAggregateDTO(*view))
}

// GetLeaderboard returns one page of the ranked leaderboard.
// Query params: sort (progress|amount|consistency), page, page_size, user_id.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id := challenge.ChallengeID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	key, err := challenge.ParseSortKey(q.Get("sort"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	page := intQuery(q.Get("page"), 1)
	pageSize := intQuery(q.Get("page_size"), 0)
	forUser := challenge.UserID(q.Get("user_id"))

	lb, err := h.Aggregator.Leaderboard(r.Context(), id, key, pageSize, page, forUser)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardDTO(*lb))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Code = challenge.ErrorCode(err)
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps typed domain failures to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case challenge.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), err)
	case errors.Is(err, challenge.ErrAlreadyInChallenge):
		writeError(w, http.StatusConflict, err.Error(), err)
	case challenge.IsClientError(err), errors.Is(err, errUnknownIncomeKind):
		writeError(w, http.StatusBadRequest, err.Error(), err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func intQuery(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
