// Package history journals played turns and invite decisions in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Turn outcomes.
const (
	OutcomeSubmitted = "submitted"
	OutcomeFailed    = "failed"
)

// TurnRecord is one turn the bot played or tried to play.
type TurnRecord struct {
	ID       string
	GameID   int
	Side     int
	Move     string
	Duration float64
	Value    int
	Archive  string
	Outcome  string
	Error    string
	PlayedAt time.Time
}

// InviteRecord is one invitation decision.
type InviteRecord struct {
	InviteID  string
	Joined    bool
	DecidedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id TEXT PRIMARY KEY,
	game_id INTEGER NOT NULL,
	side INTEGER NOT NULL,
	move TEXT NOT NULL,
	duration REAL NOT NULL DEFAULT 0,
	value INTEGER NOT NULL DEFAULT 0,
	archive TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	played_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS turns_game_id ON turns (game_id);
CREATE TABLE IF NOT EXISTS invites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	invite_id TEXT NOT NULL,
	joined INTEGER NOT NULL,
	decided_at INTEGER NOT NULL
);
`

// Store provides SQLite-backed journal persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the journal at path and creates its tables.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordTurn persists one turn and returns its id.
func (s *Store) RecordTurn(ctx context.Context, turn TurnRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if turn.GameID <= 0 {
		return "", fmt.Errorf("game id is required")
	}
	if turn.Outcome == "" {
		return "", fmt.Errorf("outcome is required")
	}
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.PlayedAt.IsZero() {
		turn.PlayedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO turns (
	id,
	game_id,
	side,
	move,
	duration,
	value,
	archive,
	outcome,
	error,
	played_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		turn.ID,
		turn.GameID,
		turn.Side,
		turn.Move,
		turn.Duration,
		turn.Value,
		turn.Archive,
		turn.Outcome,
		turn.Error,
		turn.PlayedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("record turn: %w", err)
	}
	return turn.ID, nil
}

// RecordInvite persists one invitation decision.
func (s *Store) RecordInvite(ctx context.Context, invite InviteRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(invite.InviteID) == "" {
		return fmt.Errorf("invite id is required")
	}
	if invite.DecidedAt.IsZero() {
		invite.DecidedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO invites (invite_id, joined, decided_at) VALUES (?, ?, ?)`,
		invite.InviteID, invite.Joined, invite.DecidedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record invite: %w", err)
	}
	return nil
}

// Turns lists newest-first turns of one game.
func (s *Store) Turns(ctx context.Context, gameID int) ([]TurnRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	game_id,
	side,
	move,
	duration,
	value,
	archive,
	outcome,
	error,
	played_at
FROM turns
WHERE game_id = ?
ORDER BY played_at DESC, rowid DESC
`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var r TurnRecord
		var playedAt int64
		if err := rows.Scan(
			&r.ID,
			&r.GameID,
			&r.Side,
			&r.Move,
			&r.Duration,
			&r.Value,
			&r.Archive,
			&r.Outcome,
			&r.Error,
			&playedAt,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		r.PlayedAt = time.UnixMilli(playedAt).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return records, nil
}

// Counts returns the number of recorded turns and joined invites.
func (s *Store) Counts(ctx context.Context) (turns, joined int, err error) {
	if s == nil || s.sqlDB == nil {
		return 0, 0, fmt.Errorf("storage is not configured")
	}
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&turns); err != nil {
		return 0, 0, fmt.Errorf("count turns: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM invites WHERE joined = 1`).Scan(&joined); err != nil {
		return 0, 0, fmt.Errorf("count invites: %w", err)
	}
	return turns, joined, nil
}
