package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"captionminer/internal/cards"
	"captionminer/internal/config"
	"captionminer/internal/services"
	"captionminer/internal/sqlitedb"
)

const entryColumns = "seq, card_id, payload_json, attempts, last_error, created_at, updated_at"

// Store manages the offline card queue backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	path := cfg.QueuePath()
	db, err := sqlitedb.Open(context.Background(), path, schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection. Later calls fail with
// services.ErrInvalidated.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) guard(operation string) error {
	if s == nil || s.db == nil || s.closed.Load() {
		return services.Wrap(services.ErrInvalidated, "queue", operation, "queue store closed", nil)
	}
	return nil
}

// Append adds a card to the end of the queue.
func (s *Store) Append(ctx context.Context, card cards.Card) (*Entry, error) {
	if err := s.guard("append"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(card.ID) == "" {
		return nil, services.Wrap(services.ErrValidation, "queue", "append", "card id required", nil)
	}
	payload, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	var seq int64
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		res, execErr := s.db.ExecContext(ctx,
			`INSERT INTO offline_cards (card_id, deck_id, mode, target_word, payload_json, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			card.ID,
			sqlitedb.NullableString(card.DeckID),
			string(card.Mode),
			sqlitedb.NullableString(card.TargetWord),
			string(payload),
			now,
			now,
		)
		if execErr != nil {
			return execErr
		}
		seq, execErr = res.LastInsertId()
		return execErr
	})
	if err != nil {
		return nil, fmt.Errorf("insert offline card: %w", err)
	}
	return s.getBySeq(ctx, seq)
}

// List returns queued entries oldest-first.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	if err := s.guard("list"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM offline_cards ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list offline cards: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Get returns the entry for a card id, or nil when it is not queued.
func (s *Store) Get(ctx context.Context, cardID string) (*Entry, error) {
	if err := s.guard("get"); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM offline_cards WHERE card_id = ?`, cardID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offline card: %w", err)
	}
	return entry, nil
}

func (s *Store) getBySeq(ctx context.Context, seq int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM offline_cards WHERE seq = ?`, seq)
	entry, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get offline card: %w", err)
	}
	return entry, nil
}

// Remove deletes a queued card. Removing an unknown id is not an error.
func (s *Store) Remove(ctx context.Context, cardID string) error {
	if err := s.guard("remove"); err != nil {
		return err
	}
	return sqlitedb.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM offline_cards WHERE card_id = ?`, cardID)
		return err
	})
}

// RecordFailure bumps the attempt counter after a failed replay.
func (s *Store) RecordFailure(ctx context.Context, cardID string, cause error) error {
	if err := s.guard("record_failure"); err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return sqlitedb.RetryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE offline_cards SET attempts = attempts + 1, last_error = ?, updated_at = ? WHERE card_id = ?`,
			sqlitedb.NullableString(message), now, cardID)
		return err
	})
}

// Clear removes every queued card and returns how many were dropped.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	if err := s.guard("clear"); err != nil {
		return 0, err
	}
	var removed int64
	err := sqlitedb.RetryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM offline_cards`)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear offline cards: %w", err)
	}
	return removed, nil
}

// Stats reports the queue size, per-deck counts, and the oldest entry time.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByDeck: map[string]int{}}
	if err := s.guard("stats"); err != nil {
		return stats, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(deck_id, ''), COUNT(1), MIN(created_at) FROM offline_cards GROUP BY deck_id`)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			deck   string
			count  int
			oldest sql.NullString
		)
		if err := rows.Scan(&deck, &count, &oldest); err != nil {
			return stats, err
		}
		stats.ByDeck[deck] = count
		stats.Total += count
		if ts, err := sqlitedb.ParseTime(oldest.String); err == nil && (stats.Oldest.IsZero() || ts.Before(stats.Oldest)) {
			stats.Oldest = ts
		}
	}
	return stats, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		seq        int64
		cardID     string
		payload    string
		attempts   int
		lastError  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&seq, &cardID, &payload, &attempts, &lastError, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	entry := &Entry{Seq: seq, Attempts: attempts, LastError: lastError.String}
	if err := json.Unmarshal([]byte(payload), &entry.Card); err != nil {
		return nil, fmt.Errorf("decode offline card %s: %w", cardID, err)
	}
	if ts, err := sqlitedb.ParseTime(createdRaw); err == nil {
		entry.QueuedAt = ts
	}
	if ts, err := sqlitedb.ParseTime(updatedRaw); err == nil {
		entry.UpdatedAt = ts
	}
	return entry, nil
}
