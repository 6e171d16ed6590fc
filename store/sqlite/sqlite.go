/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ChallengeStore, ParticipationStore,
  EventStore) using SQLite. In production, the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The events table is append-only:
  - No UPDATE statements on contribution_events
  - No DELETE statements on contribution_events
  - Corrections via compensating events only

KEY TABLES:
  challenges:          Challenge definitions (catalog)
  participations:      Enrollment records; state mutates only to terminal
  contribution_events: Immutable deposit/withdrawal ledger

INVARIANT BACKSTOP:
  idx_participations_one_current is a partial unique index on user_id
  WHERE state = 'current'. Even if two racing joins slip past the engine's
  per-user lock (e.g. two processes), the second insert fails here, so a
  user can never hold two non-terminal participations.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/challenges.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - challenge/store.go: Interface definitions
  - challenge/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/challenge-engine/challenge"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Challenges (catalog definitions)
	CREATE TABLE IF NOT EXISTS challenges (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		type TEXT NOT NULL,
		target_value TEXT NOT NULL,
		currency TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		max_participants INTEGER,
		cancelled BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Participations (one row per enrollment)
	CREATE TABLE IF NOT EXISTS participations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		challenge_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		bank_account_id TEXT,
		target_value TEXT NOT NULL,
		currency TEXT NOT NULL,
		joined_at TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'current',
		completed_at TEXT,
		abandoned_at TEXT,
		abandon_reason TEXT,
		abandon_category TEXT,
		abandon_comments TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one current participation per user, system-wide.
	-- This is the storage-level backstop for the single-current invariant.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_participations_one_current
		ON participations(user_id) WHERE state = 'current';

	CREATE INDEX IF NOT EXISTS idx_participations_challenge
		ON participations(challenge_id);
	CREATE INDEX IF NOT EXISTS idx_participations_user
		ON participations(user_id);

	-- Contribution events (append-only ledger)
	CREATE TABLE IF NOT EXISTS contribution_events (
		id TEXT PRIMARY KEY,
		participation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	-- Hot path: replaying a participation's events in order
	CREATE INDEX IF NOT EXISTS idx_events_participation_occurred
		ON contribution_events(participation_id, occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data. Dev/demo only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM contribution_events;
		DELETE FROM participations;
		DELETE FROM challenges;
	`)
	return err
}

// =============================================================================
// CHALLENGE STORE (challenge.ChallengeStore interface + catalog writes)
// =============================================================================

// SaveChallenge upserts a challenge definition. Catalog-side write.
func (s *Store) SaveChallenge(ctx context.Context, c challenge.Challenge) error {
	if err := c.Validate(); err != nil {
		return err
	}

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges
		(id, title, type, target_value, currency, start_date, end_date, max_participants, cancelled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			type = excluded.type,
			target_value = excluded.target_value,
			currency = excluded.currency,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			max_participants = excluded.max_participants,
			cancelled = excluded.cancelled
	`,
		c.ID,
		c.Title,
		c.Type,
		c.TargetAmount.Value.String(),
		c.TargetAmount.Currency,
		c.StartDate.UTC().Format(time.RFC3339),
		c.EndDate.UTC().Format(time.RFC3339),
		nullInt(c.MaxParticipants),
		c.Cancelled,
		createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetChallenge(ctx context.Context, id challenge.ChallengeID) (*challenge.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, type, target_value, currency, start_date, end_date, max_participants, cancelled, created_at
		FROM challenges WHERE id = ?
	`, id)

	c, err := scanChallenge(row)
	if err == sql.ErrNoRows {
		return nil, challenge.ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) ListChallenges(ctx context.Context) ([]challenge.Challenge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, type, target_value, currency, start_date, end_date, max_participants, cancelled, created_at
		FROM challenges ORDER BY start_date, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

// =============================================================================
// PARTICIPATION STORE (challenge.ParticipationStore interface)
// =============================================================================

func (s *Store) CreateParticipation(ctx context.Context, p challenge.Participation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participations
		(id, user_id, challenge_id, mode, bank_account_id, target_value, currency,
		 joined_at, state, completed_at, abandoned_at, abandon_reason, abandon_category,
		 abandon_comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID,
		p.UserID,
		p.ChallengeID,
		p.Mode,
		nullString(p.BankAccountID),
		p.TargetAmount.Value.String(),
		p.TargetAmount.Currency,
		p.JoinedAt.UTC().Format(time.RFC3339),
		p.State,
		nullTime(p.CompletedAt),
		nullTime(p.AbandonedAt),
		nullString(p.AbandonReason),
		nullString(string(p.AbandonCategory)),
		nullString(p.AbandonComments),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil && strings.Contains(err.Error(), "participations.user_id") {
		return fmt.Errorf("%w: user %s", challenge.ErrAlreadyInChallenge, p.UserID)
	}
	return err
}

func (s *Store) GetParticipation(ctx context.Context, id challenge.ParticipationID) (*challenge.Participation, error) {
	row := s.db.QueryRowContext(ctx, selectParticipation+` WHERE id = ?`, id)

	p, err := scanParticipation(row)
	if err == sql.ErrNoRows {
		return nil, challenge.ErrParticipationNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) FindCurrentByUser(ctx context.Context, userID challenge.UserID) (*challenge.Participation, error) {
	row := s.db.QueryRowContext(ctx, selectParticipation+` WHERE user_id = ? AND state = 'current'`, userID)

	p, err := scanParticipation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListByChallenge(ctx context.Context, challengeID challenge.ChallengeID) ([]challenge.Participation, error) {
	rows, err := s.db.QueryContext(ctx, selectParticipation+` WHERE challenge_id = ? ORDER BY joined_at, id`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []challenge.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func (s *Store) UpdateState(ctx context.Context, p challenge.Participation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE participations SET
			state = ?,
			completed_at = ?,
			abandoned_at = ?,
			abandon_reason = ?,
			abandon_category = ?,
			abandon_comments = ?
		WHERE id = ?
	`,
		p.State,
		nullTime(p.CompletedAt),
		nullTime(p.AbandonedAt),
		nullString(p.AbandonReason),
		nullString(string(p.AbandonCategory)),
		nullString(p.AbandonComments),
		p.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return challenge.ErrParticipationNotFound
	}
	return nil
}

func (s *Store) DeleteParticipation(ctx context.Context, id challenge.ParticipationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM participations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return challenge.ErrParticipationNotFound
	}
	return nil
}

// =============================================================================
// EVENT STORE (challenge.EventStore interface)
// =============================================================================

// AppendEvent adds a contribution event. Append-only: this is the only
// statement that ever touches contribution_events besides SELECT.
func (s *Store) AppendEvent(ctx context.Context, ev challenge.ContributionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contribution_events
		(id, participation_id, kind, amount, currency, occurred_at, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		ev.ParticipationID,
		ev.Kind,
		ev.Amount.Value.String(),
		ev.Amount.Currency,
		ev.OccurredAt.UTC().Format(time.RFC3339),
		nullString(ev.Description),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) LoadEvents(ctx context.Context, id challenge.ParticipationID) ([]challenge.ContributionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participation_id, kind, amount, currency, occurred_at, description
		FROM contribution_events
		WHERE participation_id = ?
		ORDER BY occurred_at, created_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *Store) LoadEventsBatch(ctx context.Context, ids []challenge.ParticipationID) (map[challenge.ParticipationID][]challenge.ContributionEvent, error) {
	result := make(map[challenge.ParticipationID][]challenge.ContributionEvent, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participation_id, kind, amount, currency, occurred_at, description
		FROM contribution_events
		WHERE participation_id IN (`+placeholders+`)
		ORDER BY participation_id, occurred_at, created_at
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		result[ev.ParticipationID] = append(result[ev.ParticipationID], ev)
	}
	return result, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

const selectParticipation = `
	SELECT id, user_id, challenge_id, mode, bank_account_id, target_value, currency,
	       joined_at, state, completed_at, abandoned_at, abandon_reason,
	       abandon_category, abandon_comments
	FROM participations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChallenge(row rowScanner) (*challenge.Challenge, error) {
	var (
		c               challenge.Challenge
		targetValue     string
		currency        string
		startDate       string
		endDate         string
		maxParticipants sql.NullInt64
		createdAt       string
	)
	err := row.Scan(&c.ID, &c.Title, &c.Type, &targetValue, &currency,
		&startDate, &endDate, &maxParticipants, &c.Cancelled, &createdAt)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(targetValue)
	if err != nil {
		return nil, fmt.Errorf("invalid target_value %q: %w", targetValue, err)
	}
	c.TargetAmount = challenge.MoneyFromDecimal(value, currency)

	if c.StartDate, err = time.Parse(time.RFC3339, startDate); err != nil {
		return nil, err
	}
	if c.EndDate, err = time.Parse(time.RFC3339, endDate); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if maxParticipants.Valid {
		n := int(maxParticipants.Int64)
		c.MaxParticipants = &n
	}
	return &c, nil
}

func scanParticipation(row rowScanner) (*challenge.Participation, error) {
	var (
		p               challenge.Participation
		bankAccountID   sql.NullString
		targetValue     string
		currency        string
		joinedAt        string
		completedAt     sql.NullString
		abandonedAt     sql.NullString
		abandonReason   sql.NullString
		abandonCategory sql.NullString
		abandonComments sql.NullString
	)
	err := row.Scan(&p.ID, &p.UserID, &p.ChallengeID, &p.Mode, &bankAccountID,
		&targetValue, &currency, &joinedAt, &p.State, &completedAt, &abandonedAt,
		&abandonReason, &abandonCategory, &abandonComments)
	if err != nil {
		return nil, err
	}

	value, err := decimal.NewFromString(targetValue)
	if err != nil {
		return nil, fmt.Errorf("invalid target_value %q: %w", targetValue, err)
	}
	p.TargetAmount = challenge.MoneyFromDecimal(value, currency)

	if p.JoinedAt, err = time.Parse(time.RFC3339, joinedAt); err != nil {
		return nil, err
	}
	if p.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if p.AbandonedAt, err = parseNullTime(abandonedAt); err != nil {
		return nil, err
	}
	p.BankAccountID = bankAccountID.String
	p.AbandonReason = abandonReason.String
	p.AbandonCategory = challenge.AbandonCategory(abandonCategory.String)
	p.AbandonComments = abandonComments.String
	return &p, nil
}

func scanEvents(rows *sql.Rows) ([]challenge.ContributionEvent, error) {
	var result []challenge.ContributionEvent
	for rows.Next() {
		var (
			ev          challenge.ContributionEvent
			amount      string
			currency    string
			occurredAt  string
			description sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.ParticipationID, &ev.Kind, &amount, &currency, &occurredAt, &description); err != nil {
			return nil, err
		}

		value, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		ev.Amount = challenge.MoneyFromDecimal(value, currency)
		if ev.OccurredAt, err = time.Parse(time.RFC3339, occurredAt); err != nil {
			return nil, err
		}
		ev.Description = description.String
		result = append(result, ev)
	}
	return result, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
