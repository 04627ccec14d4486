package kvstore

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"captionminer/internal/config"
	"captionminer/internal/logging"
	"captionminer/internal/services"
	"captionminer/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

const subscriberBuffer = 32

// Change names a key whose stored value changed or was removed.
type Change struct {
	Key string
}

// Store is a SQLite-backed key-value store.
type Store struct {
	db           *sql.DB
	path         string
	logger       *slog.Logger
	pollInterval time.Duration

	closed atomic.Bool

	mu      sync.Mutex
	subs    map[int]*subscription
	nextSub int

	watchOnce sync.Once
	nudge     chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup
}

type subscription struct {
	keys map[string]struct{}
	ch   chan Change
}

// Open initializes or connects to the storage database described by cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.StoragePath(), cfg.StoragePollInterval(), logger)
}

// OpenPath opens the storage database at an explicit location.
func OpenPath(path string, pollInterval time.Duration, logger *slog.Logger) (*Store, error) {
	db, err := sqlitedb.Open(context.Background(), path, sqlitedb.Schema{Name: "storage", SQL: schemaSQL, Version: schemaVersion})
	if err != nil {
		return nil, err
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Store{
		db:           db,
		path:         path,
		logger:       logging.NewComponentLogger(logger, "kvstore"),
		pollInterval: pollInterval,
		subs:         make(map[int]*subscription),
		nudge:        make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) guard(operation string) error {
	if s == nil || s.db == nil || s.closed.Load() {
		return services.Wrap(services.ErrInvalidated, "kvstore", operation, "storage closed", nil)
	}
	return nil
}

// Get returns the stored values for keys. Missing keys are absent from the map.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if err := s.guard("get"); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, key := range keys {
		var value []byte
		err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "kvstore", "get", key, err)
		}
		out[key] = value
	}
	return out, nil
}

// Set writes items atomically. Keys whose value is unchanged keep their
// revision and produce no notification.
func (s *Store) Set(ctx context.Context, items map[string][]byte) error {
	if err := s.guard("set"); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for key, value := range items {
			var existing []byte
			err := tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&existing)
			if err == nil && bytes.Equal(existing, value) {
				continue
			}
			if err != nil && err != sql.ErrNoRows {
				return err
			}
			revision, err := bumpClock(ctx, tx)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO kv (key, value, revision, updated_at) VALUES (?, ?, ?, ?)
                 ON CONFLICT(key) DO UPDATE SET value = excluded.value, revision = excluded.revision, updated_at = excluded.updated_at`,
				key, value, revision, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "kvstore", "set", "", err)
	}
	s.poke()
	return nil
}

// Remove deletes keys. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := s.guard("remove"); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "kvstore", "remove", "", err)
	}
	s.poke()
	return nil
}

// Keys lists every stored key.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := s.guard("keys"); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "kvstore", "keys", "", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return sqlitedb.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func bumpClock(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE kv_clock SET revision = revision + 1 WHERE id = 1`); err != nil {
		return 0, err
	}
	var revision int64
	err := tx.QueryRowContext(ctx, `SELECT revision FROM kv_clock WHERE id = 1`).Scan(&revision)
	return revision, err
}

// Subscribe returns a channel of changes to the named keys (all keys when
// none are given) and a function that cancels the subscription. The channel
// is closed on cancel or when the store closes. Notifications that cannot be
// delivered because the subscriber is behind are dropped.
func (s *Store) Subscribe(keys ...string) (<-chan Change, func(), error) {
	if err := s.guard("subscribe"); err != nil {
		return nil, nil, err
	}
	sub := &subscription{keys: make(map[string]struct{}, len(keys)), ch: make(chan Change, subscriberBuffer)}
	for _, key := range keys {
		sub.keys[key] = struct{}{}
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = sub
	s.mu.Unlock()

	s.watchOnce.Do(s.startWatcher)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existing, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(existing.ch)
			}
		})
	}
	return sub.ch, cancel, nil
}

func (s *Store) dispatch(changed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range changed {
		for _, sub := range s.subs {
			if len(sub.keys) > 0 {
				if _, ok := sub.keys[key]; !ok {
					continue
				}
			}
			select {
			case sub.ch <- Change{Key: key}:
			default:
				s.logger.Debug("dropping storage change for slow subscriber", logging.String("key", key))
			}
		}
	}
}

func (s *Store) poke() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Close stops the watcher, closes subscriber channels, and releases the
// database. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.stop)
	s.wg.Wait()

	s.mu.Lock()
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	return s.db.Close()
}
