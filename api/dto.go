/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - challenge/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/challenge-engine/challenge"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ChallengeDTO represents a challenge in API responses.
type ChallengeDTO struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	TargetAmount    float64 `json:"target_amount"`
	Currency        string  `json:"currency"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	MaxParticipants *int    `json:"max_participants,omitempty"`
	DaysRemaining   int     `json:"days_remaining"`
}

// CreateChallengeRequest is the request to create a challenge. The body is
// a catalog definition (see catalog.DefinitionJSON).
type CreateChallengeRequest struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Type            string  `json:"type,omitempty"`
	TargetAmount    float64 `json:"target_amount"`
	Currency        string  `json:"currency,omitempty"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	MaxParticipants *int    `json:"max_participants,omitempty"`
}

// IncomeDTO is the tagged income declaration supplied at join time.
type IncomeDTO struct {
	Kind          string    `json:"kind"` // "fixed" | "variable"
	Currency      string    `json:"currency"`
	MonthlyIncome float64   `json:"monthly_income,omitempty"` // fixed
	IncomeHistory []float64 `json:"income_history,omitempty"` // variable, up to 6 samples
}

// JoinChallengeRequest is the request to join a challenge.
type JoinChallengeRequest struct {
	UserID        string    `json:"user_id"`
	Mode          string    `json:"mode"` // "free" | "forced"
	BankAccountID string    `json:"bank_account_id,omitempty"`
	Income        IncomeDTO `json:"income"`
}

// ParticipationDTO represents a participation with its derived progress.
type ParticipationDTO struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	ChallengeID        string  `json:"challenge_id"`
	Mode               string  `json:"mode"`
	Status             string  `json:"status"`
	TargetAmount       float64 `json:"target_amount"`
	CurrentAmount      float64 `json:"current_amount"`
	ProgressPercentage float64 `json:"progress_percentage"`
	Currency           string  `json:"currency"`
	JoinedAt           string  `json:"joined_at"`
	LastTransactionAt  *string `json:"last_transaction_at,omitempty"`
	CompletedAt        *string `json:"completed_at,omitempty"`
	AbandonedAt        *string `json:"abandoned_at,omitempty"`
	AbandonReason      string  `json:"abandon_reason,omitempty"`
	AbandonCategory    string  `json:"abandon_category,omitempty"`
}

// ContributionRequest is the request to record a deposit or withdrawal.
type ContributionRequest struct {
	Amount      float64 `json:"amount"`
	Kind        string  `json:"kind"` // "deposit" | "withdrawal"
	Description string  `json:"description,omitempty"`
}

// AbandonRequest is the request to abandon an active participation.
type AbandonRequest struct {
	Reason   string `json:"reason"`
	Category string `json:"category"`
	Comments string `json:"comments,omitempty"`
}

// EventDTO represents a contribution event.
type EventDTO struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	OccurredAt  string  `json:"occurred_at"`
	Description string  `json:"description,omitempty"`
}

// AggregateDTO is the collective view of a challenge.
type AggregateDTO struct {
	ChallengeID       string  `json:"challenge_id"`
	TotalParticipants int     `json:"total_participants"`
	TotalAmountSaved  float64 `json:"total_amount_saved"`
	CollectiveTarget  float64 `json:"collective_target"`
	AverageProgress   float64 `json:"average_progress"`
	CompletionRate    float64 `json:"completion_rate"`
	DaysRemaining     int     `json:"days_remaining"`
	Currency          string  `json:"currency"`
}

// LeaderboardEntryDTO is one ranked leaderboard row.
type LeaderboardEntryDTO struct {
	Rank               int     `json:"rank"`
	UserID             string  `json:"user_id"`
	CurrentAmount      float64 `json:"current_amount"`
	TargetAmount       float64 `json:"target_amount"`
	ProgressPercentage float64 `json:"progress_percentage"`
	ConsistencyScore   float64 `json:"consistency_score"`
}

// LeaderboardDTO is one page of the leaderboard plus paging metadata.
type LeaderboardDTO struct {
	Entries  []LeaderboardEntryDTO `json:"entries"`
	UserRank int                   `json:"user_rank,omitempty"`
	Meta     LeaderboardMetaDTO    `json:"meta"`
}

// LeaderboardMetaDTO carries sort and pagination info.
type LeaderboardMetaDTO struct {
	SortKey      string `json:"sort_key"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	TotalEntries int    `json:"total_entries"`
	TotalPages   int    `json:"total_pages"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario to seed.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toChallengeDTO(c challenge.Challenge, now time.Time) ChallengeDTO {
	target, _ := c.TargetAmount.Value.Float64()
	return ChallengeDTO{
		ID:              string(c.ID),
		Title:           c.Title,
		Type:            string(c.Type),
		Status:          string(c.StatusAt(now)),
		TargetAmount:    target,
		Currency:        c.TargetAmount.Currency,
		StartDate:       c.StartDate.Format("2006-01-02"),
		EndDate:         c.EndDate.Format("2006-01-02"),
		MaxParticipants: c.MaxParticipants,
		DaysRemaining:   c.DaysRemaining(now),
	}
}

func toParticipationDTO(s challenge.Snapshot) ParticipationDTO {
	p := s.Participation
	target, _ := s.Progress.TargetAmount.Value.Float64()
	current, _ := s.Progress.CurrentAmount.Value.Float64()
	pct, _ := s.Progress.ProgressPercentage.Float64()

	dto := ParticipationDTO{
		ID:                 string(p.ID),
		UserID:             string(p.UserID),
		ChallengeID:        string(p.ChallengeID),
		Mode:               string(p.Mode),
		Status:             string(s.Status),
		TargetAmount:       target,
		CurrentAmount:      current,
		ProgressPercentage: pct,
		Currency:           p.TargetAmount.Currency,
		JoinedAt:           p.JoinedAt.Format(time.RFC3339),
		AbandonReason:      p.AbandonReason,
		AbandonCategory:    string(p.AbandonCategory),
	}
	dto.LastTransactionAt = formatTimePtr(s.Progress.LastTransactionAt)
	dto.CompletedAt = formatTimePtr(s.CompletedAt)
	dto.AbandonedAt = formatTimePtr(p.AbandonedAt)
	return dto
}

func toEventDTO(ev challenge.ContributionEvent) EventDTO {
	amount, _ := ev.Amount.Value.Float64()
	return EventDTO{
		ID:          string(ev.ID),
		Kind:        string(ev.Kind),
		Amount:      amount,
		Currency:    ev.Amount.Currency,
		OccurredAt:  ev.OccurredAt.Format(time.RFC3339),
		Description: ev.Description,
	}
}

func toAggregateDTO(v challenge.AggregateView) AggregateDTO {
	saved, _ := v.TotalAmountSaved.Value.Float64()
	target, _ := v.CollectiveTarget.Value.Float64()
	avg, _ := v.AverageProgress.Float64()
	rate, _ := v.CompletionRate.Float64()
	return AggregateDTO{
		ChallengeID:       string(v.ChallengeID),
		TotalParticipants: v.TotalParticipants,
		TotalAmountSaved:  saved,
		CollectiveTarget:  target,
		AverageProgress:   avg,
		CompletionRate:    rate,
		DaysRemaining:     v.DaysRemaining,
		Currency:          v.TotalAmountSaved.Currency,
	}
}

func toLeaderboardDTO(lb challenge.Leaderboard) LeaderboardDTO {
	entries := make([]LeaderboardEntryDTO, len(lb.Entries))
	for i, e := range lb.Entries {
		current, _ := e.CurrentAmount.Value.Float64()
		target, _ := e.TargetAmount.Value.Float64()
		pct, _ := e.ProgressPercentage.Float64()
		score, _ := e.ConsistencyScore.Round(4).Float64()
		entries[i] = LeaderboardEntryDTO{
			Rank:               e.Rank,
			UserID:             string(e.UserID),
			CurrentAmount:      current,
			TargetAmount:       target,
			ProgressPercentage: pct,
			ConsistencyScore:   score,
		}
	}
	return LeaderboardDTO{
		Entries:  entries,
		UserRank: lb.UserRank,
		Meta: LeaderboardMetaDTO{
			SortKey:      string(lb.SortKey),
			Page:         lb.Page,
			PageSize:     lb.PageSize,
			TotalEntries: lb.TotalEntries,
			TotalPages:   lb.TotalPages,
		},
	}
}

func toIncomeSource(dto IncomeDTO) (challenge.IncomeSource, error) {
	currency := dto.Currency
	if currency == "" {
		currency = "USD"
	}
	switch dto.Kind {
	case "fixed":
		return challenge.FixedIncome{
			Monthly: challenge.NewMoney(dto.MonthlyIncome, currency),
		}, nil
	case "variable":
		history := make([]decimal.Decimal, len(dto.IncomeHistory))
		for i, sample := range dto.IncomeHistory {
			history[i] = decimal.NewFromFloat(sample)
		}
		return challenge.VariableIncome{Currency: currency, History: history}, nil
	}
	return nil, errUnknownIncomeKind
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
