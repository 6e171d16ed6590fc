/*
Package catalog provides JSON to Go challenge-definition conversion.

PURPOSE:
  Converts JSON challenge definitions into challenge.Challenge values.
  This enables campaign configuration without code changes - an operator
  can define challenges in JSON, and the catalog creates the proper Go
  structs with defaults applied and the window invariant validated.

WHY JSON?
  - Non-developers can define campaigns
  - Easy integration with an admin UI
  - Version control for campaign definitions
  - Database storage of definitions

JSON SCHEMA:
  {
    "id": "summer-sprint",
    "title": "Summer Savings Sprint",
    "type": "monthly",
    "target_amount": 50000,
    "currency": "USD",
    "start_date": "2026-06-01",
    "end_date": "2026-08-31",
    "max_participants": 200
  }

KEY FEATURES:
  - Validates JSON structure and the end-after-start invariant
  - Sets sensible defaults (type custom, currency USD)
  - Preset builders for the common monthly/weekly shapes

USAGE:
  ch, err := catalog.Parse([]byte(jsonStr))
  ...
  store.SaveChallenge(ctx, ch)

SEE ALSO:
  - challenge/types.go: Challenge definition
  - api/scenarios.go: Demo seeding built on these presets
*/
package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/challenge-engine/challenge"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// DefinitionJSON is the JSON representation of a challenge definition.
type DefinitionJSON struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Type            string  `json:"type,omitempty"`             // monthly, weekly, daily, custom
	TargetAmount    float64 `json:"target_amount"`              // nominal collective target
	Currency        string  `json:"currency,omitempty"`         // default USD
	StartDate       string  `json:"start_date"`                 // YYYY-MM-DD
	EndDate         string  `json:"end_date"`                   // YYYY-MM-DD
	MaxParticipants *int    `json:"max_participants,omitempty"` // nil = unlimited
	Cancelled       bool    `json:"cancelled,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// Parse converts a JSON definition into a Challenge, applying defaults and
// validating the window invariant.
func Parse(data []byte) (challenge.Challenge, error) {
	var def DefinitionJSON
	if err := json.Unmarshal(data, &def); err != nil {
		return challenge.Challenge{}, fmt.Errorf("invalid challenge definition: %w", err)
	}
	return FromDefinition(def)
}

// ParseAll converts a JSON array of definitions.
func ParseAll(data []byte) ([]challenge.Challenge, error) {
	var defs []DefinitionJSON
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("invalid challenge definitions: %w", err)
	}
	result := make([]challenge.Challenge, 0, len(defs))
	for _, def := range defs {
		c, err := FromDefinition(def)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", def.ID, err)
		}
		result = append(result, c)
	}
	return result, nil
}

// FromDefinition converts a decoded definition.
func FromDefinition(def DefinitionJSON) (challenge.Challenge, error) {
	if def.ID == "" {
		return challenge.Challenge{}, fmt.Errorf("challenge definition requires an id")
	}
	if def.Title == "" {
		return challenge.Challenge{}, fmt.Errorf("challenge %q requires a title", def.ID)
	}

	ctype := challenge.ChallengeType(def.Type)
	switch ctype {
	case "":
		ctype = challenge.ChallengeCustom
	case challenge.ChallengeMonthly, challenge.ChallengeWeekly, challenge.ChallengeDaily, challenge.ChallengeCustom:
	default:
		return challenge.Challenge{}, fmt.Errorf("challenge %q: unknown type %q", def.ID, def.Type)
	}

	currency := def.Currency
	if currency == "" {
		currency = "USD"
	}

	start, err := parseDate(def.StartDate)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("challenge %q: invalid start_date: %w", def.ID, err)
	}
	end, err := parseDate(def.EndDate)
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("challenge %q: invalid end_date: %w", def.ID, err)
	}

	c := challenge.Challenge{
		ID:              challenge.ChallengeID(def.ID),
		Title:           def.Title,
		Type:            ctype,
		TargetAmount:    challenge.MoneyFromDecimal(decimal.NewFromFloat(def.TargetAmount), currency),
		StartDate:       start,
		EndDate:         end,
		MaxParticipants: def.MaxParticipants,
		Cancelled:       def.Cancelled,
	}
	if err := c.Validate(); err != nil {
		return challenge.Challenge{}, fmt.Errorf("challenge %q: %w", def.ID, err)
	}
	return c, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// =============================================================================
// PRESET BUILDERS - Common campaign shapes as JSON
// =============================================================================

// MonthlyChallengeJSON builds the definition for a calendar-month campaign
// starting on the first day of the given month.
func MonthlyChallengeJSON(id, title string, target float64, year int, month time.Month) string {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return fmt.Sprintf(`{
		"id": %q,
		"title": %q,
		"type": "monthly",
		"target_amount": %g,
		"currency": "USD",
		"start_date": %q,
		"end_date": %q
	}`, id, title, target, start.Format("2006-01-02"), end.Format("2006-01-02"))
}

// CustomChallengeJSON builds a definition for an arbitrary window.
func CustomChallengeJSON(id, title string, target float64, start, end time.Time) string {
	return fmt.Sprintf(`{
		"id": %q,
		"title": %q,
		"type": "custom",
		"target_amount": %g,
		"currency": "USD",
		"start_date": %q,
		"end_date": %q
	}`, id, title, target, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
