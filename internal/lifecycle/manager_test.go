package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"captionminer/internal/cards"
	"captionminer/internal/lifecycle"
	"captionminer/internal/logging"
	"captionminer/internal/session"
	"captionminer/internal/testsupport"
)

type fakeEngine struct {
	surface *testsupport.Surface
	mu      sync.Mutex
	started bool
	stops   int
}

func (f *fakeEngine) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.surface.Attach()
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return
	}
	f.started = false
	f.stops++
	_ = f.surface.Detach()
}

type factory struct {
	surface *testsupport.Surface
	mu      sync.Mutex
	built   []*fakeEngine
	decks   []string
}

func (f *factory) build(sess session.StudySession) lifecycle.Runner {
	f.mu.Lock()
	defer f.mu.Unlock()
	engine := &fakeEngine{surface: f.surface}
	f.built = append(f.built, engine)
	f.decks = append(f.decks, sess.DeckID)
	return engine
}

func (f *factory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

func (f *factory) running() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, engine := range f.built {
		engine.mu.Lock()
		if engine.started {
			n++
		}
		engine.mu.Unlock()
	}
	return n
}

type env struct {
	surface *testsupport.Surface
	store   lifecycle.Store
	factory *factory
	manager *lifecycle.Manager
}

func newEnv(t *testing.T, opts lifecycle.Options) *env {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	surface := testsupport.NewSurface()
	e := &env{
		surface: surface,
		store:   testsupport.MustOpenKV(t, cfg),
		factory: &factory{surface: surface},
	}
	if opts.PlayerWait == 0 {
		opts.PlayerWait = time.Second
	}
	opts.PlayerPoll = 10 * time.Millisecond
	opts.NavigationPoll = 20 * time.Millisecond
	e.manager = lifecycle.NewManager(surface, e.store, e.factory.build, opts, logging.NewNop())
	return e
}

func (e *env) start(t *testing.T) {
	t.Helper()
	if err := e.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.manager.Stop)
}

func (e *env) saveSession(t *testing.T, deck string) {
	t.Helper()
	sess := session.StudySession{DeckID: deck, Mode: cards.ModeWord}
	if err := session.Save(context.Background(), e.store, sess); err != nil {
		t.Fatalf("session.Save: %v", err)
	}
}

func (e *env) waitState(t *testing.T, want lifecycle.State) {
	t.Helper()
	testsupport.Eventually(t, 2*time.Second, func() bool {
		return e.manager.State() == want
	}, "state = %s, want %s", e.manager.State(), want)
}

func TestIdleWithoutSession(t *testing.T) {
	e := newEnv(t, lifecycle.Options{})
	e.start(t)

	time.Sleep(50 * time.Millisecond)
	if e.manager.State() != lifecycle.Idle {
		t.Fatalf("state = %s, want idle", e.manager.State())
	}
	if e.factory.count() != 0 {
		t.Fatal("engine should not be built without a session")
	}
}

func TestSessionStartAndStop(t *testing.T) {
	e := newEnv(t, lifecycle.Options{})
	e.start(t)

	e.saveSession(t, "deck-1")
	e.waitState(t, lifecycle.Active)
	if e.factory.running() != 1 {
		t.Fatalf("running engines = %d, want 1", e.factory.running())
	}

	if err := session.Clear(context.Background(), e.store); err != nil {
		t.Fatalf("session.Clear: %v", err)
	}
	e.waitState(t, lifecycle.Idle)
	testsupport.Eventually(t, time.Second, func() bool { return e.factory.running() == 0 }, "engine still running after session cleared")
}

func TestSessionChangeRebuildsEngine(t *testing.T) {
	e := newEnv(t, lifecycle.Options{})
	e.saveSession(t, "deck-1")
	e.start(t)
	e.waitState(t, lifecycle.Active)

	e.saveSession(t, "deck-2")
	testsupport.Eventually(t, 2*time.Second, func() bool { return e.factory.count() == 2 }, "engine not rebuilt")
	e.waitState(t, lifecycle.Active)
	if e.factory.running() != 1 {
		t.Fatalf("running engines = %d, want 1", e.factory.running())
	}
	if snap := e.manager.Snapshot(); snap.Session.DeckID != "deck-2" {
		t.Fatalf("session deck = %q", snap.Session.DeckID)
	}
}

func TestNavigationAwayAndBack(t *testing.T) {
	e := newEnv(t, lifecycle.Options{})
	e.saveSession(t, "deck-1")
	e.start(t)
	e.waitState(t, lifecycle.Active)

	e.surface.Navigate("https://www.youtube.com/feed/subscriptions")
	e.waitState(t, lifecycle.Idle)
	if e.factory.running() != 0 {
		t.Fatal("engine should stop off watch pages")
	}

	// Polling alone must pick up the change.
	e.surface.SetLocation("https://www.youtube.com/watch?v=other")
	e.waitState(t, lifecycle.Active)
	if e.factory.count() != 2 {
		t.Fatalf("engines built = %d, want 2", e.factory.count())
	}
}

func TestOverlayRemovalReinjects(t *testing.T) {
	e := newEnv(t, lifecycle.Options{})
	e.saveSession(t, "deck-1")
	e.start(t)
	e.waitState(t, lifecycle.Active)

	e.surface.RemoveOverlay()
	testsupport.Eventually(t, 2*time.Second, func() bool { return e.factory.count() == 2 }, "overlay was not re-injected")
	e.waitState(t, lifecycle.Active)
	if !e.surface.OverlayAttached() {
		t.Fatal("overlay should be attached again")
	}
}

func TestPlayerWaitTimeout(t *testing.T) {
	e := newEnv(t, lifecycle.Options{PlayerWait: 50 * time.Millisecond})
	e.surface.SetPlayer(false)
	e.saveSession(t, "deck-1")
	e.start(t)

	time.Sleep(150 * time.Millisecond)
	e.waitState(t, lifecycle.Idle)
	if e.factory.count() != 0 {
		t.Fatal("engine should not start without a player")
	}
}

func TestStopTearsDown(t *testing.T) {
	e := newEnv(t, lifecycle.Options{})
	e.saveSession(t, "deck-1")
	e.start(t)
	e.waitState(t, lifecycle.Active)

	e.manager.Stop()
	e.manager.Stop()
	if e.factory.running() != 0 {
		t.Fatal("engine still running after Stop")
	}
	if e.manager.State() != lifecycle.Idle {
		t.Fatalf("state = %s, want idle", e.manager.State())
	}
}
