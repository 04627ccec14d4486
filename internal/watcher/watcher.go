// Package watcher turns the host's mutating caption surface into a
// de-duplicated stream of caption events.
//
// Two signals drive it: the surface's caption-mutation subscription and a
// fixed-interval poll that covers coalesced or missed notifications. Both
// funnel into CheckAndUpdate, which compares the normalized rendered text
// with the last emitted value, so repeated invocations with unchanged text
// emit nothing.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"captionminer/internal/logging"
	"captionminer/internal/textutil"
)

// Caption is a distinct, non-empty rendered caption.
type Caption struct {
	Text       string
	ObservedAt time.Time
}

// Event is emitted on caption change. Cleared events carry no caption.
type Event struct {
	Caption Caption
	Cleared bool
}

// Source is the caption surface.
type Source interface {
	CaptionText() string
	SubscribeCaptions() (<-chan struct{}, func())
}

// Watcher observes a Source.
type Watcher struct {
	source   Source
	interval time.Duration
	emit     func(Event)
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	last  string
	shown bool

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a watcher that calls emit for each distinct caption.
func New(source Source, interval time.Duration, emit func(Event), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Watcher{
		source:   source,
		interval: interval,
		emit:     emit,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		now:      time.Now,
	}
}

// CheckAndUpdate reads the rendered caption and emits when it differs from
// the last emitted value. It reports whether an event was emitted.
func (w *Watcher) CheckAndUpdate() bool {
	text := textutil.NormalizeCaption(w.source.CaptionText())

	w.mu.Lock()
	defer w.mu.Unlock()
	if text == "" {
		if !w.shown {
			return false
		}
		w.last, w.shown = "", false
		w.deliver(Event{Cleared: true})
		return true
	}
	if w.shown && text == w.last {
		return false
	}
	w.last, w.shown = text, true
	w.deliver(Event{Caption: Caption{Text: text, ObservedAt: w.now()}})
	return true
}

// Last returns the last emitted caption text.
func (w *Watcher) Last() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) deliver(event Event) {
	if w.emit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("caption handler panicked",
				logging.String(logging.FieldEventType, "watcher_emit_panic"),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	w.emit(event)
}

// Start begins observing. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	mutations, unsubscribe := w.source.SubscribeCaptions()
	go w.run(ctx, mutations, unsubscribe, w.done)
}

func (w *Watcher) run(ctx context.Context, mutations <-chan struct{}, unsubscribe func(), done chan struct{}) {
	defer close(done)
	defer unsubscribe()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			w.check()
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("caption check panicked",
				logging.String(logging.FieldEventType, "watcher_panic"),
				logging.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	w.CheckAndUpdate()
}

// Stop cancels the subscription and the poll, waits for the loop to exit,
// and forgets the last caption. Safe to call repeatedly.
func (w *Watcher) Stop() {
	w.lifecycle.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.lifecycle.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	w.mu.Lock()
	w.last, w.shown = "", false
	w.mu.Unlock()
}
