package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolqueue/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	dsn  string
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Background snapshot saves and review appends share one connection so
	// SQLite never sees two writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db, dsn: dsn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Snapshots returns a Store that keeps the snapshot of deck in this database.
func (db *DB) Snapshots(deck string) *SQLiteStore {
	return &SQLiteStore{db: db, deck: deck}
}

// AppendReview inserts a rating into the review journal.
func (db *DB) AppendReview(ctx context.Context, ev domain.ReviewEvent) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO reviews (deck, card_id, rating, queue_index, reviewed_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		ev.Deck,
		ev.CardID,
		string(ev.Rating),
		ev.QueueIndex,
		ev.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append review for card %d: %w", ev.CardID, err)
	}
	return nil
}

// ReviewsByCard retrieves the journaled ratings of one card, oldest first.
func (db *DB) ReviewsByCard(ctx context.Context, deck string, cardID int) ([]domain.ReviewEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT deck, card_id, rating, queue_index, reviewed_at
		FROM reviews WHERE deck = ? AND card_id = ?
		ORDER BY id
	`, deck, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var events []domain.ReviewEvent
	for rows.Next() {
		var ev domain.ReviewEvent
		var rating string
		if err := rows.Scan(&ev.Deck, &ev.CardID, &rating, &ev.QueueIndex, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan review row for card %d: %w", cardID, err)
		}
		ev.Rating = domain.Rating(rating)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SQLiteStore keeps the snapshot of a single deck as a JSON document in
// the snapshots table.
type SQLiteStore struct {
	db   *DB
	deck string
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) path() string {
	return fmt.Sprintf("sqlite:%s#%s", s.db.dsn, s.deck)
}

// Load reads the deck's snapshot. A missing row is the first run: the
// default snapshot is inserted and returned.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	var body string
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT body FROM snapshots WHERE deck = ?
	`, s.deck).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		snap := NewSnapshot()
		if err := s.Save(ctx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path(), Err: err}
	}

	snap, err := Decode([]byte(body))
	if err != nil {
		return nil, &StoreError{Op: "load", Path: s.path(), Err: err}
	}
	return snap, nil
}

// Save upserts the whole snapshot document.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	raw, err := Encode(snap)
	if err != nil {
		return &StoreError{Op: "save", Path: s.path(), Err: err}
	}
	var updatedAt sql.NullTime
	if snap.UpdatedAt != nil {
		updatedAt = sql.NullTime{Time: snap.UpdatedAt.UTC(), Valid: true}
	}
	_, err = s.db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (deck, version, updated_at, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(deck) DO UPDATE SET
			version = excluded.version,
			updated_at = excluded.updated_at,
			body = excluded.body
	`, s.deck, snap.Version, updatedAt, string(raw))
	if err != nil {
		return &StoreError{Op: "save", Path: s.path(), Err: err}
	}
	return nil
}
