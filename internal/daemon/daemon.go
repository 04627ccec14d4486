package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"captionminer/internal/bridge"
	"captionminer/internal/cards"
	"captionminer/internal/config"
	"captionminer/internal/dictionary"
	"captionminer/internal/engine"
	"captionminer/internal/kvstore"
	"captionminer/internal/lifecycle"
	"captionminer/internal/logging"
	"captionminer/internal/lookup"
	"captionminer/internal/notifications"
	"captionminer/internal/preflight"
	"captionminer/internal/queue"
	"captionminer/internal/segment"
	"captionminer/internal/services"
	"captionminer/internal/services/cardsvc"
	"captionminer/internal/services/translate"
	"captionminer/internal/session"
	"captionminer/internal/submission"
)

// activeEngine is the part of a running engine the daemon reaches into.
type activeEngine interface {
	Status(ctx context.Context) (engine.Status, error)
	Submit(ctx context.Context, mode cards.Mode) (submission.Result, error)
}

// Daemon owns every long-lived component and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	logHub *logging.StreamHub

	kv        *kvstore.Store
	queue     *queue.Store
	bridge    *bridge.Server
	cards     *cardsvc.Client
	dict      *dictionary.Lazy
	segmenter *segment.Adapter
	resolver  *lookup.Resolver
	notifier  notifications.Service
	pipeline  *submission.Pipeline
	syncer    *submission.Syncer
	lifecycle *lifecycle.Manager
	sync      *syncMonitor

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	Lifecycle       string
	Location        string
	BridgeConnected bool
	HasSession      bool
	DeckID          string
	Mode            cards.Mode
	Engine          *engine.Status
	Queue           queue.Stats
	LastSync        SyncSummary
	Segmentation    bool
	DictionaryError string
	QueueDBPath     string
	StoragePath     string
	LockFilePath    string
}

// New opens storage and constructs every component. Nothing runs until Start.
func New(cfg *config.Config, logger *slog.Logger, logHub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	kv, err := kvstore.Open(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	q, err := queue.Open(cfg)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		logHub:   logHub,
		kv:       kv,
		queue:    q,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	tokens := session.TokenSource{Store: kv, Fallback: cfg.API.Token}
	d.bridge = bridge.New(bridge.OptionsFromConfig(cfg), logger)
	d.cards = cardsvc.NewFromConfig(cfg, tokens)
	d.dict = dictionary.NewLazy(cfg.Paths.DictionaryPath, logger)
	d.segmenter = segment.NewFromConfig(cfg, logger)
	d.resolver = lookup.NewResolver(d.dict, translate.NewFromConfig(cfg, tokens),
		lookup.WithCache(cfg.Lookup.CacheSize, cfg.LookupCacheTTL()),
		lookup.WithLogger(logger),
	)
	d.notifier = notifications.Multi(
		notifications.NewService(cfg),
		notifications.NewToastService(d.bridge),
	)
	d.pipeline = submission.NewPipeline(d.cards, q, d.resolver, d.notifier,
		submission.WithLogger(logger),
		submission.WithProvider(cfg.Engine.Provider),
	)
	d.syncer = submission.NewSyncer(d.cards, q, d.notifier, logger)
	d.lifecycle = lifecycle.NewManager(d.bridge, kv, d.newEngine, lifecycle.OptionsFromConfig(cfg), logger)
	d.sync = newSyncMonitor(d.syncer, cfg.QueueSyncInterval(), logger)
	return d, nil
}

func (d *Daemon) newEngine(sess session.StudySession) lifecycle.Runner {
	return engine.New(engine.Deps{
		Surface:   d.bridge,
		Segmenter: d.segmenter,
		Resolver:  d.resolver,
		Submitter: d.pipeline,
		Logger:    d.logger,
	}, sess, engine.OptionsFromConfig(d.cfg))
}

// Start acquires the daemon lock, runs preflight checks, and starts the
// bridge, the lifecycle manager, and the queue sync loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another captionminer daemon instance is already running")
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run captionminer status for details"),
			logging.String(logging.FieldImpact, "affected features degrade"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.bridge.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start bridge: %w", err)
	}
	if err := d.lifecycle.Start(runCtx); err != nil {
		cancel()
		d.bridge.Stop()
		_ = d.lock.Unlock()
		return fmt.Errorf("start lifecycle: %w", err)
	}
	d.sync.Start(runCtx)

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("captionminer daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("bridge", d.bridge.Addr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	d.sync.Stop()
	d.lifecycle.Stop()
	d.bridge.Stop()
	if cancel != nil {
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("captionminer daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close stops the daemon and releases storage.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.queue.Close(), d.kv.Close())
}

// BridgeAddr returns the address the bridge listens on once started.
func (d *Daemon) BridgeAddr() string {
	return d.bridge.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	snap := d.lifecycle.Snapshot()
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		Lifecycle:       snap.State.String(),
		Location:        snap.Location,
		BridgeConnected: d.bridge.Connected(),
		HasSession:      snap.HasSession,
		LastSync:        d.sync.Last(),
		Segmentation:    d.segmenter.Available(),
		QueueDBPath:     d.queue.Path(),
		StoragePath:     d.kv.Path(),
		LockFilePath:    d.lockPath,
	}
	if snap.HasSession {
		status.DeckID = snap.Session.DeckID
		status.Mode = snap.Session.Mode
	}
	if err := d.dict.Err(); err != nil {
		status.DictionaryError = err.Error()
	}
	if active, ok := snap.Engine.(activeEngine); ok {
		engineCtx, cancel := context.WithTimeout(ctx, time.Second)
		if engineStatus, err := active.Status(engineCtx); err == nil {
			status.Engine = &engineStatus
		}
		cancel()
	}
	if stats, err := d.queue.Stats(ctx); err == nil {
		status.Queue = stats
	}
	return status
}

// Submit submits the active engine's selection, as the overlay's submit
// control would.
func (d *Daemon) Submit(ctx context.Context, mode cards.Mode) (submission.Result, error) {
	active, ok := d.lifecycle.Snapshot().Engine.(activeEngine)
	if !ok {
		return submission.Result{}, services.Wrap(services.ErrUnavailable, "daemon", "submit", "no caption engine is active", engine.ErrNotRunning)
	}
	return active.Submit(ctx, mode)
}

// ListQueue returns offline cards oldest first.
func (d *Daemon) ListQueue(ctx context.Context) ([]*queue.Entry, error) {
	return d.queue.List(ctx)
}

// SyncQueue replays offline cards now.
func (d *Daemon) SyncQueue(ctx context.Context) (submission.SyncResult, error) {
	return d.sync.RunOnce(ctx)
}

// ClearQueue discards every offline card.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.queue.Clear(ctx)
}

// LogTail returns buffered log events after since.
func (d *Daemon) LogTail(since uint64, limit int) ([]logging.LogEvent, uint64) {
	if d.logHub == nil {
		return nil, since
	}
	if since == 0 && limit > 0 {
		events := d.logHub.Tail(limit)
		next := since
		if len(events) > 0 {
			next = events[len(events)-1].Sequence
		}
		return events, next
	}
	return d.logHub.Since(since, limit)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTestNotification, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
