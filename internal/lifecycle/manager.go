// Package lifecycle decides when a caption engine runs.
//
// The Manager keeps exactly one engine alive while a study session is
// stored and the host shows a watch page. Storage changes, in-page
// navigation, and removal of the injected overlay each tear the running
// engine down completely and re-evaluate from scratch. Session presence is
// always re-read from storage rather than taken from a change notification.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"captionminer/internal/config"
	"captionminer/internal/host"
	"captionminer/internal/kvstore"
	"captionminer/internal/logging"
	"captionminer/internal/services"
	"captionminer/internal/session"
)

// State is the manager's position in its lifecycle.
type State int

const (
	Idle State = iota
	Initializing
	Active
	TearingDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Active:
		return "active"
	case TearingDown:
		return "tearing_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Runner is a started engine.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}

// Factory builds an engine for a study session.
type Factory func(sess session.StudySession) Runner

// Store is session storage with change notifications.
type Store interface {
	session.Store
	Subscribe(keys ...string) (<-chan kvstore.Change, func(), error)
}

// Options carries lifecycle timing.
type Options struct {
	WatchPathPrefix  string
	PlayerWait       time.Duration
	PlayerPoll       time.Duration
	NavigationPoll   time.Duration
	NavigationSettle time.Duration
}

// OptionsFromConfig derives lifecycle timing from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		WatchPathPrefix:  cfg.Engine.WatchPathPrefix,
		PlayerWait:       cfg.PlayerWaitTimeout(),
		PlayerPoll:       cfg.PlayerPollInterval(),
		NavigationPoll:   cfg.NavigationPollInterval(),
		NavigationSettle: cfg.NavigationSettleDelay(),
	}
}

func (o Options) withDefaults() Options {
	if o.WatchPathPrefix == "" {
		o.WatchPathPrefix = "/watch"
	}
	if o.PlayerWait <= 0 {
		o.PlayerWait = 10 * time.Second
	}
	if o.PlayerPoll <= 0 {
		o.PlayerPoll = 100 * time.Millisecond
	}
	if o.NavigationPoll <= 0 {
		o.NavigationPoll = 500 * time.Millisecond
	}
	if o.NavigationSettle < 0 {
		o.NavigationSettle = 0
	}
	return o
}

// Snapshot describes the manager for status displays.
type Snapshot struct {
	State      State
	Location   string
	HasSession bool
	Session    session.StudySession
	Engine     Runner
}

// Manager owns the engine lifecycle.
type Manager struct {
	surface host.Surface
	store   Store
	factory Factory
	opts    Options
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	engine     Runner
	location   string
	hasSession bool
	session    session.StudySession
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager builds a manager. It does nothing until Start.
func NewManager(surface host.Surface, store Store, factory Factory, opts Options, logger *slog.Logger) *Manager {
	return &Manager{
		surface: surface,
		store:   store,
		factory: factory,
		opts:    opts.withDefaults(),
		logger:  logging.NewComponentLogger(logger, "lifecycle"),
	}
}

// Start subscribes to triggers and performs the initial evaluation.
func (m *Manager) Start(ctx context.Context) error {
	if m.surface == nil || m.store == nil || m.factory == nil {
		return services.Wrap(services.ErrConfiguration, "lifecycle", "start", "surface, store, and factory are required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	changes, unsubscribeStore, err := m.store.Subscribe(session.StorageKey)
	if err != nil {
		return err
	}
	navigation, unsubscribeNav := m.surface.SubscribeNavigation()
	players, unsubscribePlayer := m.surface.SubscribePlayer()

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer unsubscribeStore()
		defer unsubscribeNav()
		defer unsubscribePlayer()
		m.loop(runCtx, changes, navigation, players)
	}()
	return nil
}

// Stop tears down any running engine and stops observing triggers. Safe
// to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns the current lifecycle view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		State:      m.state,
		Location:   m.location,
		HasSession: m.hasSession,
		Session:    m.session,
		Engine:     m.engine,
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	previous := m.state
	m.state = state
	m.mu.Unlock()
	if previous != state {
		m.logger.Debug("lifecycle state changed",
			logging.String(logging.FieldEventType, "lifecycle_state"),
			logging.String("from", previous.String()),
			logging.String("to", state.String()),
		)
	}
}

func (m *Manager) loop(ctx context.Context, changes <-chan kvstore.Change, navigation <-chan string, players <-chan struct{}) {
	defer m.teardown("shutdown")

	m.reconcile(ctx, "start")

	ticker := time.NewTicker(m.opts.NavigationPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.reconcile(ctx, "session_changed")
		case _, ok := <-navigation:
			if !ok {
				navigation = nil
				continue
			}
			m.navigated(ctx)
		case <-ticker.C:
			if m.surface.Location() != m.currentLocation() {
				m.navigated(ctx)
			}
		case _, ok := <-players:
			if !ok {
				players = nil
				continue
			}
			if m.State() == Active && !m.surface.OverlayAttached() {
				m.logger.Info("overlay removed by page; re-injecting",
					logging.String(logging.FieldEventType, "overlay_removed"),
				)
				m.reconcile(ctx, "overlay_removed")
			}
		}
	}
}

func (m *Manager) navigated(ctx context.Context) {
	if m.opts.NavigationSettle > 0 {
		timer := time.NewTimer(m.opts.NavigationSettle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	m.reconcile(ctx, "navigation")
}

func (m *Manager) currentLocation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.location
}

// reconcile performs a full teardown and re-initializes when the session
// and page allow it.
func (m *Manager) reconcile(ctx context.Context, reason string) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("lifecycle reconcile panicked",
				logging.String(logging.FieldEventType, "lifecycle_panic"),
				logging.String("reason", reason),
				logging.String("panic", fmt.Sprint(rec)),
			)
			m.setState(Idle)
		}
	}()
	m.teardown(reason)
	if ctx.Err() != nil {
		return
	}

	location := m.surface.Location()
	sess, ok, err := session.Load(ctx, m.store)
	if err != nil {
		logging.WarnWithContext(m.logger, "study session unreadable", "session_read_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "caption engine stays idle"),
		)
		ok = false
	}
	m.mu.Lock()
	m.location = location
	m.hasSession = ok
	m.session = sess
	m.mu.Unlock()

	if !ok || !host.IsWatchPage(location, m.opts.WatchPathPrefix) {
		m.logger.Debug("engine not started",
			logging.String(logging.FieldEventType, "lifecycle_idle"),
			logging.String("reason", reason),
			logging.Bool("session", ok),
			logging.String("location", location),
		)
		return
	}

	m.setState(Initializing)
	if !m.waitForPlayer(ctx) {
		if ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "player did not appear", "player_wait_timeout",
				logging.Duration("waited", m.opts.PlayerWait),
				logging.String("location", location),
				logging.String(logging.FieldErrorHint, "reload the video page"),
				logging.String(logging.FieldImpact, "captions are not captured on this page"),
			)
		}
		m.setState(Idle)
		return
	}

	engine := m.factory(sess)
	if engine == nil {
		m.setState(Idle)
		return
	}
	if err := engine.Start(ctx); err != nil {
		logging.WarnWithContext(m.logger, "caption engine failed to start", "engine_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.ErrorHint(err)),
			logging.String(logging.FieldImpact, "captions are not captured on this page"),
		)
		engine.Stop()
		m.setState(Idle)
		return
	}
	m.mu.Lock()
	m.engine = engine
	m.mu.Unlock()
	m.setState(Active)
	m.logger.Info("caption engine active",
		logging.String(logging.FieldEventType, "lifecycle_active"),
		logging.String("reason", reason),
		logging.String(logging.FieldDeckID, sess.DeckID),
	)
}

func (m *Manager) waitForPlayer(ctx context.Context) bool {
	if m.surface.PlayerPresent() {
		return true
	}
	deadline := time.NewTimer(m.opts.PlayerWait)
	defer deadline.Stop()
	ticker := time.NewTicker(m.opts.PlayerPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
			if m.surface.PlayerPresent() {
				return true
			}
		}
	}
}

// teardown stops the running engine. Idempotent.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	engine := m.engine
	m.engine = nil
	m.mu.Unlock()
	if engine == nil {
		m.setState(Idle)
		return
	}
	m.setState(TearingDown)
	engine.Stop()
	m.setState(Idle)
	m.logger.Info("caption engine torn down",
		logging.String(logging.FieldEventType, "lifecycle_teardown"),
		logging.String("reason", reason),
	)
}
