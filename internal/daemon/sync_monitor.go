package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"captionminer/internal/logging"
	"captionminer/internal/services"
	"captionminer/internal/submission"
)

// SyncSummary records the most recent offline queue replay.
type SyncSummary struct {
	At        time.Time
	Synced    int
	Remaining int
	Error     string
}

type flusher interface {
	Flush(ctx context.Context) (submission.SyncResult, error)
}

// syncMonitor replays the offline queue on a fixed interval. A zero
// interval disables the loop; RunOnce still works.
type syncMonitor struct {
	syncer   flusher
	interval time.Duration
	logger   *slog.Logger

	flushMu sync.Mutex

	mu      sync.Mutex
	last    SyncSummary
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newSyncMonitor(syncer flusher, interval time.Duration, logger *slog.Logger) *syncMonitor {
	return &syncMonitor{
		syncer:   syncer,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "queue-sync"),
	}
}

func (m *syncMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.interval <= 0 {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.wg.Add(1)
	go m.loop()
}

func (m *syncMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *syncMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(m.ctx); err != nil && m.ctx.Err() == nil {
				m.logger.Debug("scheduled queue sync incomplete", logging.Error(err))
			}
		}
	}
}

// RunOnce flushes the queue. Concurrent calls are serialized so an entry is
// never replayed twice.
func (m *syncMonitor) RunOnce(ctx context.Context) (submission.SyncResult, error) {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	result, err := m.syncer.Flush(ctx)
	summary := SyncSummary{At: time.Now(), Synced: result.Synced, Remaining: result.Remaining}
	if err != nil {
		summary.Error = err.Error()
	}
	m.mu.Lock()
	m.last = summary
	m.mu.Unlock()

	if result.Synced > 0 || err != nil {
		m.logger.Info("offline queue sync finished",
			logging.String(logging.FieldEventType, "queue_sync"),
			logging.Int("synced", result.Synced),
			logging.Int("remaining", result.Remaining),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
		)
	}
	return result, err
}

func (m *syncMonitor) Last() SyncSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
