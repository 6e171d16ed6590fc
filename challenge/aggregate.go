/*
aggregate.go - Collective statistics and the leaderboard

PURPOSE:
  Combines all participations of a challenge into collective totals and a
  ranked, paginated leaderboard. Pure read-time views: the aggregator
  performs no writes and produces no persisted state.

ELIGIBILITY:
  Abandoned participations are excluded from every sum and from the
  leaderboard. Completed participations stay in (their savings count).

RANKING:
  Rank is computed over the ENTIRE eligible set before pagination, so
  userRank reflects the caller's global position even when their row falls
  outside the requested page. Ties within any sort key are broken by
  earliest joinedAt, then by userId, making the ordering fully
  deterministic.

SORT KEYS:
  progress     progressPercentage desc
  amount       currentAmount desc
  consistency  consistency score desc (ledger.go), tie-broken by progress

SEE ALSO:
  - ledger.go: Replay and ConsistencyScore
  - status.go: DaysRemaining and effective status
*/
package challenge

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATE VIEW
// =============================================================================

// AggregateView is the collective snapshot of a challenge.
type AggregateView struct {
	ChallengeID       ChallengeID
	TotalParticipants int
	TotalAmountSaved  Money
	CollectiveTarget  Money // sum of participant targets, not the nominal field
	AverageProgress   decimal.Decimal
	CompletionRate    decimal.Decimal // 0..1
	DaysRemaining     int
}

// =============================================================================
// LEADERBOARD
// =============================================================================

type SortKey string

const (
	SortByProgress    SortKey = "progress"
	SortByAmount      SortKey = "amount"
	SortByConsistency SortKey = "consistency"
)

// ParseSortKey validates a transport-level sort key. Empty defaults to progress.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "":
		return SortByProgress, nil
	case SortByProgress, SortByAmount, SortByConsistency:
		return SortKey(s), nil
	}
	return "", ErrInvalidSortKey
}

// LeaderboardEntry is one ranked row. Ephemeral, never persisted.
type LeaderboardEntry struct {
	UserID             UserID
	Rank               int // 1-based, global
	CurrentAmount      Money
	TargetAmount       Money
	ProgressPercentage decimal.Decimal
	ConsistencyScore   decimal.Decimal
	JoinedAt           time.Time
}

// Leaderboard is one page of ranked entries plus the caller's global rank.
type Leaderboard struct {
	Entries      []LeaderboardEntry
	UserRank     int // 0 = caller absent or not requested
	SortKey      SortKey
	Page         int
	PageSize     int
	TotalEntries int
	TotalPages   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator computes read-only collective views. It takes a consistent
// snapshot per invocation and requires no locking beyond what the stores
// guarantee for single reads.
type Aggregator struct {
	challenges ChallengeStore
	parts      ParticipationStore
	events     EventStore
	now        Clock
}

func NewAggregator(challenges ChallengeStore, parts ParticipationStore, events EventStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{challenges: challenges, parts: parts, events: events, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type AggregatorOption func(*Aggregator)

func WithAggregatorClock(clock Clock) AggregatorOption {
	return func(a *Aggregator) { a.now = clock }
}

// Aggregate computes the collective statistics of a challenge.
func (a *Aggregator) Aggregate(ctx context.Context, id ChallengeID) (*AggregateView, error) {
	c, err := a.challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}

	now := a.now()
	rows, err := a.eligibleRows(ctx, *c, now)
	if err != nil {
		return nil, err
	}

	view := &AggregateView{
		ChallengeID:      id,
		TotalAmountSaved: Money{Value: decimal.Zero, Currency: c.TargetAmount.Currency},
		CollectiveTarget: Money{Value: decimal.Zero, Currency: c.TargetAmount.Currency},
		AverageProgress:  decimal.Zero,
		CompletionRate:   decimal.Zero,
		DaysRemaining:    c.DaysRemaining(now),
	}

	if len(rows) == 0 {
		return view, nil
	}

	progressSum := decimal.Zero
	completed := 0
	for _, row := range rows {
		view.TotalAmountSaved = view.TotalAmountSaved.Add(row.progress.CurrentAmount)
		view.CollectiveTarget = view.CollectiveTarget.Add(row.progress.TargetAmount)
		progressSum = progressSum.Add(row.progress.ProgressPercentage)
		if row.status == StatusCompleted || row.progress.TargetReached() {
			completed++
		}
	}

	total := decimal.NewFromInt(int64(len(rows)))
	view.TotalParticipants = len(rows)
	view.AverageProgress = progressSum.Div(total)
	view.CompletionRate = decimal.NewFromInt(int64(completed)).Div(total)

	return view, nil
}

// Leaderboard ranks all eligible participants, then paginates. forUser may
// be empty; if set, UserRank carries that user's global rank (0 if absent).
func (a *Aggregator) Leaderboard(ctx context.Context, id ChallengeID, key SortKey, pageSize, page int, forUser UserID) (*Leaderboard, error) {
	if key == "" {
		key = SortByProgress
	}
	switch key {
	case SortByProgress, SortByAmount, SortByConsistency:
	default:
		return nil, ErrInvalidSortKey
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}

	c, err := a.challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := a.eligibleRows(ctx, *c, a.now())
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, LeaderboardEntry{
			UserID:             row.part.UserID,
			CurrentAmount:      row.progress.CurrentAmount,
			TargetAmount:       row.progress.TargetAmount,
			ProgressPercentage: row.progress.ProgressPercentage,
			ConsistencyScore:   row.consistency,
			JoinedAt:           row.part.JoinedAt,
		})
	}

	sortEntries(entries, key)
	for i := range entries {
		entries[i].Rank = i + 1
	}

	userRank := 0
	if forUser != "" {
		for i := range entries {
			if entries[i].UserID == forUser {
				userRank = entries[i].Rank
				break
			}
		}
	}

	total := len(entries)
	totalPages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Leaderboard{
		Entries:      entries[start:end],
		UserRank:     userRank,
		SortKey:      key,
		Page:         page,
		PageSize:     pageSize,
		TotalEntries: total,
		TotalPages:   totalPages,
	}, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

type aggregateRow struct {
	part        Participation
	status      Status
	progress    Progress
	consistency decimal.Decimal
}

// eligibleRows loads every non-abandoned participation of the challenge
// with its derived progress and consistency score.
func (a *Aggregator) eligibleRows(ctx context.Context, c Challenge, now time.Time) ([]aggregateRow, error) {
	parts, err := a.parts.ListByChallenge(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	eligible := parts[:0]
	ids := make([]ParticipationID, 0, len(parts))
	for i := range parts {
		if parts[i].State == StateAbandoned {
			continue
		}
		eligible = append(eligible, parts[i])
		ids = append(ids, parts[i].ID)
	}

	eventsByPart, err := a.events.LoadEventsBatch(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]aggregateRow, 0, len(eligible))
	for i := range eligible {
		events := eventsByPart[eligible[i].ID]
		rows = append(rows, aggregateRow{
			part:        eligible[i],
			status:      eligible[i].EffectiveStatus(c, now),
			progress:    Replay(eligible[i], events),
			consistency: ConsistencyScore(eligible[i], events, now),
		})
	}
	return rows, nil
}

// sortEntries orders entries by the sort key, descending, with the
// deterministic tie-break chain: joinedAt asc, then userId asc. The
// consistency key additionally tie-breaks on progress before joinedAt.
func sortEntries(entries []LeaderboardEntry, key SortKey) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		var cmp int
		switch key {
		case SortByAmount:
			cmp = a.CurrentAmount.Value.Cmp(b.CurrentAmount.Value)
		case SortByConsistency:
			cmp = a.ConsistencyScore.Cmp(b.ConsistencyScore)
			if cmp == 0 {
				cmp = a.ProgressPercentage.Cmp(b.ProgressPercentage)
			}
		default: // SortByProgress
			cmp = a.ProgressPercentage.Cmp(b.ProgressPercentage)
		}
		if cmp != 0 {
			return cmp > 0
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.UserID < b.UserID
	})
}
