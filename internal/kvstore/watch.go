package kvstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"captionminer/internal/logging"
)

// watchState is the watcher's view of the last dispatched commit. It is
// captured before Subscribe returns, so every commit after the first
// Subscribe call differs from it and is dispatched.
type watchState struct {
	conn        *sql.Conn
	dataVersion int64
	revisions   map[string]int64
}

func (s *Store) startWatcher() {
	if s.closed.Load() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	state, err := s.baseline(ctx)
	if err != nil {
		cancel()
		logging.WarnWithContext(s.logger, "storage watcher could not pin connection", "storage_watch_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cross-process storage changes will not be observed"),
		)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer state.conn.Close()
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(s.logger, "storage watcher panicked", "storage_watch_panic",
					logging.Any("panic", r),
					logging.String(logging.FieldErrorHint, "restart the daemon"),
				)
			}
		}()
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		s.watch(ctx, state)
	}()
}

// baseline pins the connection the watcher polls and records the current
// commit state. The revision snapshot is retaken until data_version is the
// same on both sides of it, so a commit landing mid-read is not folded in.
func (s *Store) baseline(ctx context.Context) (*watchState, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	state := &watchState{conn: conn}
	for range 5 {
		before, err := readDataVersion(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		revisions, err := snapshotRevisions(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		after, err := readDataVersion(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		state.dataVersion, state.revisions = before, revisions
		if before == after {
			break
		}
	}
	return state, nil
}

func (s *Store) watch(ctx context.Context, state *watchState) {
	conn := state.conn
	dataVersion := state.dataVersion
	revisions := state.revisions

	fsEvents, fsErrors, closeFS := s.openFSWatcher()
	defer closeFS()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.nudge:
		case event, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if !s.relevant(event) {
				continue
			}
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			s.logger.Debug("fsnotify error; relying on polling", logging.Error(err))
			continue
		}

		current, err := readDataVersion(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("read data_version failed", logging.Error(err))
			continue
		}
		if current == dataVersion {
			continue
		}
		dataVersion = current

		next, err := snapshotRevisions(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("storage snapshot failed", logging.Error(err))
			continue
		}
		if changed := diffRevisions(revisions, next); len(changed) > 0 {
			s.logger.Debug("storage keys changed", logging.String("keys", strings.Join(changed, ",")))
			s.dispatch(changed)
		}
		revisions = next
	}
}

// openFSWatcher watches the database directory. Failure is not fatal: the
// poll ticker still observes every commit, only with more latency.
func (s *Store) openFSWatcher() (<-chan fsnotify.Event, <-chan error, func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.logger.Debug("fsnotify not available, falling back to polling", logging.Error(err))
		return nil, nil, func() {}
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		s.logger.Debug("failed to watch storage directory, falling back to polling", logging.Error(err))
		_ = watcher.Close()
		return nil, nil, func() {}
	}
	return watcher.Events, watcher.Errors, func() { _ = watcher.Close() }
}

func (s *Store) relevant(event fsnotify.Event) bool {
	if !strings.HasPrefix(filepath.Base(event.Name), filepath.Base(s.path)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func readDataVersion(ctx context.Context, conn *sql.Conn) (int64, error) {
	var version int64
	err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&version)
	return version, err
}

func snapshotRevisions(ctx context.Context, conn *sql.Conn) (map[string]int64, error) {
	rows, err := conn.QueryContext(ctx, `SELECT key, revision FROM kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var (
			key      string
			revision int64
		)
		if err := rows.Scan(&key, &revision); err != nil {
			return nil, err
		}
		out[key] = revision
	}
	return out, rows.Err()
}

// diffRevisions returns keys added, removed, or rewritten between snapshots,
// sorted for deterministic delivery.
func diffRevisions(prev, next map[string]int64) []string {
	var changed []string
	for key, rev := range next {
		if old, ok := prev[key]; !ok || old != rev {
			changed = append(changed, key)
		}
	}
	for key := range prev {
		if _, ok := next[key]; !ok {
			changed = append(changed, key)
		}
	}
	slices.Sort(changed)
	return changed
}
