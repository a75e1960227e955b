package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrSequenceGap is returned when an append would leave a hole or
	// duplicate in a game's sequence.
	ErrSequenceGap = errors.New("eventlog: sequence not contiguous")

	// ErrNoSnapshot is returned when a game has no stored snapshot.
	ErrNoSnapshot = errors.New("eventlog: no snapshot")

	// ErrSnapshotCorrupt is returned when a snapshot fails its integrity
	// check; callers fall back to a full replay.
	ErrSnapshotCorrupt = errors.New("eventlog: snapshot hash mismatch")
)

// Store is the persistence boundary for game event streams.
type Store interface {
	// Append writes one event. The event's Seq must be exactly one past the
	// stream's last sequence; anything else fails with ErrSequenceGap.
	Append(ctx context.Context, e Event) error

	// Events returns a game's events with Seq > afterSeq, in order.
	Events(ctx context.Context, gameID string, afterSeq uint64) ([]Event, error)

	// LastSeq returns the highest sequence in a game's stream, 0 when empty.
	LastSeq(ctx context.Context, gameID string) (uint64, error)

	// SaveSnapshot stores a state snapshot, replacing any older one.
	SaveSnapshot(ctx context.Context, s Snapshot) error

	// LatestSnapshot returns the newest snapshot, verifying its hash.
	LatestSnapshot(ctx context.Context, gameID string) (Snapshot, error)

	// OpenGames lists game ids with events but no tournament_ended marker.
	OpenGames(ctx context.Context) ([]string, error)

	Close() error
}

// SQLiteStore is the sqlite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the store at path. Use ":memory:"
// in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer avoids SQLITE_BUSY churn under concurrent actors.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			game_id    TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			type       TEXT NOT NULL,
			payload    BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (game_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("create events table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			game_id    TEXT PRIMARY KEY,
			seq        INTEGER NOT NULL,
			state      BLOB NOT NULL,
			hash       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	return nil
}

// Append implements Store. The contiguity check and insert run in one
// transaction so concurrent appenders cannot interleave.
func (s *SQLiteStore) Append(ctx context.Context, e Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var last uint64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE game_id = ?`, e.GameID,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("read last seq: %w", err)
	}
	if e.Seq != last+1 {
		return fmt.Errorf("%w: game %s has seq %d, appending %d", ErrSequenceGap, e.GameID, last, e.Seq)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (game_id, seq, type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.GameID, e.Seq, string(e.Type), []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

// Events implements Store.
func (s *SQLiteStore) Events(ctx context.Context, gameID string, afterSeq uint64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, type, payload, created_at FROM events WHERE game_id = ? AND seq > ? ORDER BY seq`,
		gameID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e := Event{GameID: gameID}
		var typ string
		var created time.Time
		if err := rows.Scan(&e.Seq, &typ, (*[]byte)(&e.Payload), &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = Type(typ)
		e.CreatedAt = created
		events = append(events, e)
	}
	return events, rows.Err()
}

// LastSeq implements Store.
func (s *SQLiteStore) LastSeq(ctx context.Context, gameID string) (uint64, error) {
	var last uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE game_id = ?`, gameID,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	return last, nil
}

// SaveSnapshot implements Store.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (game_id, seq, state, hash, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			seq = excluded.seq, state = excluded.state,
			hash = excluded.hash, created_at = excluded.created_at
	`, snap.GameID, snap.Seq, snap.State, snap.Hash, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot implements Store.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, gameID string) (Snapshot, error) {
	snap := Snapshot{GameID: gameID}
	err := s.db.QueryRowContext(ctx,
		`SELECT seq, state, hash, created_at FROM snapshots WHERE game_id = ?`, gameID,
	).Scan(&snap.Seq, &snap.State, &snap.Hash, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	if HashState(snap.State) != snap.Hash {
		return Snapshot{}, ErrSnapshotCorrupt
	}
	return snap, nil
}

// OpenGames implements Store.
func (s *SQLiteStore) OpenGames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT game_id FROM events
		WHERE game_id NOT IN (
			SELECT game_id FROM events WHERE type = ?
		)
		ORDER BY game_id
	`, string(TypeTournamentEnded))
	if err != nil {
		return nil, fmt.Errorf("query open games: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
