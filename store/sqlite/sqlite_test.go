package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/challenge-engine/challenge"
	"github.com/warp/challenge-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testChallenge(id string) challenge.Challenge {
	two := 2
	return challenge.Challenge{
		ID:              challenge.ChallengeID(id),
		Title:           "Test Challenge",
		Type:            challenge.ChallengeMonthly,
		TargetAmount:    challenge.NewMoney(5000, "USD"),
		StartDate:       time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, time.June, 30, 0, 0, 0, 0, time.UTC),
		MaxParticipants: &two,
	}
}

func testParticipation(id, userID, challengeID string) challenge.Participation {
	return challenge.Participation{
		ID:           challenge.ParticipationID(id),
		UserID:       challenge.UserID(userID),
		ChallengeID:  challenge.ChallengeID(challengeID),
		Mode:         challenge.ModeFree,
		TargetAmount: challenge.NewMoney(1200, "USD"),
		JoinedAt:     time.Date(2026, time.January, 5, 10, 30, 0, 0, time.UTC),
		State:        challenge.StateCurrent,
	}
}

// =============================================================================
// CHALLENGE STORE TESTS
// =============================================================================

func TestChallengeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := testChallenge("ch-1")
	require.NoError(t, store.SaveChallenge(ctx, in))

	out, err := store.GetChallenge(ctx, "ch-1")
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, in.Type, out.Type)
	assert.True(t, out.TargetAmount.Value.Equal(in.TargetAmount.Value))
	assert.Equal(t, "USD", out.TargetAmount.Currency)
	assert.True(t, out.StartDate.Equal(in.StartDate))
	assert.True(t, out.EndDate.Equal(in.EndDate))
	require.NotNil(t, out.MaxParticipants)
	assert.Equal(t, 2, *out.MaxParticipants)
	assert.False(t, out.Cancelled)
}

func TestSaveChallenge_UpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c := testChallenge("ch-1")
	require.NoError(t, store.SaveChallenge(ctx, c))

	c.Title = "Renamed"
	c.Cancelled = true
	require.NoError(t, store.SaveChallenge(ctx, c))

	out, err := store.GetChallenge(ctx, "ch-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", out.Title)
	assert.True(t, out.Cancelled)
}

func TestSaveChallenge_RejectsInvalidWindow(t *testing.T) {
	store := newTestStore(t)

	c := testChallenge("ch-bad")
	c.EndDate = c.StartDate

	err := store.SaveChallenge(context.Background(), c)
	assert.ErrorIs(t, err, challenge.ErrInvalidChallengeWindow)
}

func TestGetChallenge_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetChallenge(context.Background(), "missing")
	assert.ErrorIs(t, err, challenge.ErrChallengeNotFound)
}

// =============================================================================
// PARTICIPATION STORE TESTS
// =============================================================================

func TestParticipationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))

	in := testParticipation("part-1", "user-1", "ch-1")
	in.Mode = challenge.ModeForced
	in.BankAccountID = "acct-42"
	require.NoError(t, store.CreateParticipation(ctx, in))

	out, err := store.GetParticipation(ctx, "part-1")
	require.NoError(t, err)

	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.ChallengeID, out.ChallengeID)
	assert.Equal(t, challenge.ModeForced, out.Mode)
	assert.Equal(t, "acct-42", out.BankAccountID)
	assert.True(t, out.TargetAmount.Value.Equal(in.TargetAmount.Value))
	assert.True(t, out.JoinedAt.Equal(in.JoinedAt))
	assert.Equal(t, challenge.StateCurrent, out.State)
	assert.Nil(t, out.CompletedAt)
	assert.Nil(t, out.AbandonedAt)
}

func TestOneCurrentPerUser_UniqueIndexBackstop(t *testing.T) {
	// GIVEN: A user with a current participation, inserted directly at the
	// store layer (bypassing the engine's per-user lock entirely)
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-2")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))

	// WHEN: Inserting a second current participation for the same user,
	// even in a different challenge
	err := store.CreateParticipation(ctx, testParticipation("part-2", "user-1", "ch-2"))

	// THEN: The partial unique index rejects it as the typed error
	assert.ErrorIs(t, err, challenge.ErrAlreadyInChallenge)
}

func TestOneCurrentPerUser_TerminalStatesDoNotBlock(t *testing.T) {
	// GIVEN: A user whose previous participation was abandoned
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))

	old := testParticipation("part-1", "user-1", "ch-1")
	require.NoError(t, store.CreateParticipation(ctx, old))

	at := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	old.State = challenge.StateAbandoned
	old.AbandonedAt = &at
	old.AbandonReason = "lost interest"
	old.AbandonCategory = challenge.AbandonLostInterest
	require.NoError(t, store.UpdateState(ctx, old))

	// WHEN: Creating a new current participation
	err := store.CreateParticipation(ctx, testParticipation("part-2", "user-1", "ch-1"))

	// THEN: Only current rows count against the index
	require.NoError(t, err)
}

func TestUpdateState_PersistsTerminalFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))

	p := testParticipation("part-1", "user-1", "ch-1")
	require.NoError(t, store.CreateParticipation(ctx, p))

	at := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	p.State = challenge.StateAbandoned
	p.AbandonedAt = &at
	p.AbandonReason = "car repair"
	p.AbandonCategory = challenge.AbandonFinancialDifficulty
	p.AbandonComments = "rejoining later"
	require.NoError(t, store.UpdateState(ctx, p))

	out, err := store.GetParticipation(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, challenge.StateAbandoned, out.State)
	require.NotNil(t, out.AbandonedAt)
	assert.True(t, out.AbandonedAt.Equal(at))
	assert.Equal(t, "car repair", out.AbandonReason)
	assert.Equal(t, challenge.AbandonFinancialDifficulty, out.AbandonCategory)
	assert.Equal(t, "rejoining later", out.AbandonComments)
}

func TestFindCurrentByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))

	p, err := store.FindCurrentByUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, challenge.ParticipationID("part-1"), p.ID)

	// No current participation means nil, not an error.
	p, err = store.FindCurrentByUser(ctx, "stranger")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestDeleteParticipation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))

	require.NoError(t, store.DeleteParticipation(ctx, "part-1"))

	_, err := store.GetParticipation(ctx, "part-1")
	assert.ErrorIs(t, err, challenge.ErrParticipationNotFound)

	err = store.DeleteParticipation(ctx, "part-1")
	assert.ErrorIs(t, err, challenge.ErrParticipationNotFound)
}

// =============================================================================
// EVENT STORE TESTS
// =============================================================================

func TestLoadEvents_OrderedByOccurredAt(t *testing.T) {
	// GIVEN: Events appended out of chronological order
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))

	base := time.Date(2026, time.February, 1, 12, 0, 0, 0, time.UTC)
	for i, offset := range []int{2, 0, 1} {
		require.NoError(t, store.AppendEvent(ctx, challenge.ContributionEvent{
			ID:              challenge.EventID(fmt.Sprintf("ev-%d", i)),
			ParticipationID: "part-1",
			Amount:          challenge.NewMoney(float64(10*(offset+1)), "USD"),
			Kind:            challenge.KindDeposit,
			OccurredAt:      base.AddDate(0, 0, offset),
		}))
	}

	// WHEN: Loading the log
	events, err := store.LoadEvents(ctx, "part-1")

	// THEN: Events come back in OccurredAt order regardless of insert order
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].OccurredAt.Before(events[i-1].OccurredAt))
	}
	assert.Equal(t, challenge.EventID("ev-1"), events[0].ID)
}

func TestLoadEventsBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-2", "user-2", "ch-1")))

	at := time.Date(2026, time.February, 1, 12, 0, 0, 0, time.UTC)
	for i, partID := range []challenge.ParticipationID{"part-1", "part-1", "part-2"} {
		require.NoError(t, store.AppendEvent(ctx, challenge.ContributionEvent{
			ID:              challenge.EventID(fmt.Sprintf("ev-%d", i)),
			ParticipationID: partID,
			Amount:          challenge.NewMoney(25, "USD"),
			Kind:            challenge.KindDeposit,
			OccurredAt:      at.AddDate(0, 0, i),
		}))
	}

	batch, err := store.LoadEventsBatch(ctx, []challenge.ParticipationID{"part-1", "part-2", "part-none"})
	require.NoError(t, err)
	assert.Len(t, batch["part-1"], 2)
	assert.Len(t, batch["part-2"], 1)
	assert.Empty(t, batch["part-none"])

	empty, err := store.LoadEventsBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEventDescriptionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))

	require.NoError(t, store.AppendEvent(ctx, challenge.ContributionEvent{
		ID:              "ev-1",
		ParticipationID: "part-1",
		Amount:          challenge.NewMoney(99.95, "USD"),
		Kind:            challenge.KindWithdrawal,
		OccurredAt:      time.Date(2026, time.February, 1, 12, 0, 0, 0, time.UTC),
		Description:     "emergency",
	}))

	events, err := store.LoadEvents(ctx, "part-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, challenge.KindWithdrawal, events[0].Kind)
	assert.Equal(t, "emergency", events[0].Description)
	assert.True(t, events[0].Amount.Value.Equal(challenge.NewMoney(99.95, "USD").Value))
}

// =============================================================================
// RESET TESTS
// =============================================================================

func TestReset_ClearsAllTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveChallenge(ctx, testChallenge("ch-1")))
	require.NoError(t, store.CreateParticipation(ctx, testParticipation("part-1", "user-1", "ch-1")))

	require.NoError(t, store.Reset(ctx))

	challenges, err := store.ListChallenges(ctx)
	require.NoError(t, err)
	assert.Empty(t, challenges)

	_, err = store.GetParticipation(ctx, "part-1")
	assert.ErrorIs(t, err, challenge.ErrParticipationNotFound)
}
