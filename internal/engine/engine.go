package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"captionminer/internal/cards"
	"captionminer/internal/config"
	"captionminer/internal/host"
	"captionminer/internal/logging"
	"captionminer/internal/lookup"
	"captionminer/internal/overlay"
	"captionminer/internal/selection"
	"captionminer/internal/services"
	"captionminer/internal/session"
	"captionminer/internal/submission"
	"captionminer/internal/watcher"
)

// ErrNotRunning is returned by requests made to a stopped engine.
var ErrNotRunning = errors.New("engine not running")

const eventBuffer = 64

// Segmenter splits caption text into tokens.
type Segmenter interface {
	Segment(text string) []string
}

// Resolver answers tooltip lookups.
type Resolver interface {
	Resolve(ctx context.Context, text string) lookup.Result
}

// Submitter stores cards.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (submission.Result, error)
}

// Options carries engine timing.
type Options struct {
	CaptionPoll      time.Duration
	DoubleActivation time.Duration
	SubmitTimeout    time.Duration
	LookupTimeout    time.Duration
}

// OptionsFromConfig derives engine timing from configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		CaptionPoll:      cfg.CaptionPollInterval(),
		DoubleActivation: cfg.DoubleActivationWindow(),
		SubmitTimeout:    cfg.SubmitTimeout(),
		LookupTimeout:    cfg.APITimeout(),
	}
}

func (o Options) withDefaults() Options {
	if o.CaptionPoll <= 0 {
		o.CaptionPoll = 100 * time.Millisecond
	}
	if o.DoubleActivation <= 0 {
		o.DoubleActivation = 250 * time.Millisecond
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 30 * time.Second
	}
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 10 * time.Second
	}
	return o
}

// Deps are the engine collaborators.
type Deps struct {
	Surface   host.Surface
	Segmenter Segmenter
	Resolver  Resolver
	Submitter Submitter
	Logger    *slog.Logger
}

// Status is a point-in-time view of engine state.
type Status struct {
	ID       string
	Running  bool
	DeckID   string
	Mode     cards.Mode
	Caption  string
	Tokens   []string
	Selected []int
	Target   string
}

// Engine is one caption session. Start and Stop are idempotent.
type Engine struct {
	surface   host.Surface
	segmenter Segmenter
	resolver  Resolver
	submitter Submitter
	session   session.StudySession
	opts      Options
	baseLog   *slog.Logger
	logger    *slog.Logger

	// Loop-owned state.
	caption   string
	machine   *selection.Machine
	debouncer *selection.Debouncer
	tooltip   lookup.Tooltip

	events chan func()

	mu      sync.Mutex
	running bool
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	watcher *watcher.Watcher
	wg      sync.WaitGroup
	tasks   sync.WaitGroup
}

// New builds an engine for sess. It does nothing until Start.
func New(deps Deps, sess session.StudySession, opts Options) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		surface:   deps.Surface,
		segmenter: deps.Segmenter,
		resolver:  deps.Resolver,
		submitter: deps.Submitter,
		session:   sess,
		opts:      opts.withDefaults(),
		baseLog:   logging.NewComponentLogger(logger, "engine"),
		logger:    logging.NewComponentLogger(logger, "engine"),
		machine:   selection.NewMachine(),
	}
}

// Start attaches the overlay and begins observing captions and pointer
// events. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	if e == nil || e.surface == nil {
		return services.Wrap(services.ErrConfiguration, "engine", "start", "no host surface", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	id := uuid.NewString()
	ctx = services.WithRequestID(ctx, id)
	ctx = services.WithDeckID(ctx, e.session.DeckID)
	runCtx, cancel := context.WithCancel(ctx)
	logger := logging.WithContext(runCtx, e.baseLog)

	if err := e.surface.Attach(); err != nil {
		cancel()
		return services.Wrap(services.ErrUnavailable, "engine", "attach overlay", "", err)
	}

	e.id = id
	e.ctx = runCtx
	e.cancel = cancel
	e.logger = logger
	e.events = make(chan func(), eventBuffer)
	e.caption = ""
	e.machine.Reset(nil)
	e.tooltip = lookup.Tooltip{}
	e.debouncer = selection.NewDebouncer(e.opts.DoubleActivation, func(generation uint64) {
		e.post(runCtx, func() { e.fireDebounce(generation) })
	})
	e.running = true

	pointers, unsubscribe := e.surface.SubscribePointer()
	e.wg.Add(1)
	go e.loop(runCtx, pointers, unsubscribe)

	e.watcher = watcher.New(e.surface, e.opts.CaptionPoll, func(event watcher.Event) {
		e.post(runCtx, func() { e.handleCaption(event) })
	}, logger)
	e.watcher.Start(runCtx)

	logger.Info("caption engine started",
		logging.String(logging.FieldEventType, "engine_started"),
		logging.String(logging.FieldMode, string(e.session.Mode)),
	)
	return nil
}

// Stop stops the watcher, cancels timers and subscriptions, clears
// selection, and detaches the overlay. Safe to call repeatedly.
// In-flight submissions keep running; see Wait.
func (e *Engine) Stop() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	w := e.watcher
	logger := e.logger
	e.running = false
	e.cancel = nil
	e.watcher = nil
	e.mu.Unlock()

	cancel()
	if w != nil {
		w.Stop()
	}
	e.wg.Wait()

	if err := e.surface.Detach(); err != nil {
		logger.Debug("overlay detach failed",
			logging.String(logging.FieldEventType, "overlay_detach_failed"),
			logging.Error(err),
		)
	}
	logger.Info("caption engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
}

// Wait blocks until in-flight submissions finish or ctx ends.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status reads engine state through the loop.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	result := make(chan Status, 1)
	if err := e.request(ctx, func() {
		result <- e.snapshot()
	}); err != nil {
		return Status{}, err
	}
	select {
	case status := <-result:
		return status, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// Submit submits the current selection as if the learner pressed a card
// button, and waits for the outcome. An empty mode uses the session mode.
func (e *Engine) Submit(ctx context.Context, mode cards.Mode) (submission.Result, error) {
	type outcome struct {
		result submission.Result
		err    error
	}
	done := make(chan outcome, 1)
	if err := e.request(ctx, func() {
		e.submit(mode, func(result submission.Result, err error) {
			done <- outcome{result: result, err: err}
		})
	}); err != nil {
		return submission.Result{}, err
	}
	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return submission.Result{}, ctx.Err()
	}
}

func (e *Engine) request(ctx context.Context, fn func()) error {
	e.mu.Lock()
	runCtx, events, running := e.ctx, e.events, e.running
	e.mu.Unlock()
	if !running {
		return ErrNotRunning
	}
	select {
	case events <- fn:
		return nil
	case <-runCtx.Done():
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands fn to the loop. It gives up when the engine context ends so
// producers never block a stopping engine.
func (e *Engine) post(ctx context.Context, fn func()) {
	e.mu.Lock()
	events := e.events
	e.mu.Unlock()
	select {
	case events <- fn:
	case <-ctx.Done():
	}
}

func (e *Engine) loop(ctx context.Context, pointers <-chan host.Pointer, unsubscribe func()) {
	defer e.wg.Done()
	defer unsubscribe()
	defer e.resetState()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.events:
			e.safely("event", fn)
		case p, ok := <-pointers:
			if !ok {
				pointers = nil
				continue
			}
			e.safely("pointer", func() { e.handlePointer(p) })
		}
	}
}

func (e *Engine) safely(stage string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("engine handler panicked",
				logging.String(logging.FieldEventType, "engine_panic"),
				logging.String("stage", stage),
				logging.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	fn()
}

func (e *Engine) resetState() {
	if e.debouncer != nil {
		e.debouncer.Cancel()
	}
	e.tooltip.Leave()
	e.caption = ""
	e.machine.Reset(nil)
}

func (e *Engine) handleCaption(event watcher.Event) {
	e.debouncer.Cancel()
	if e.tooltip.View().Visible {
		e.showTooltip(e.tooltip.Leave())
	}
	if event.Cleared {
		e.caption = ""
		e.machine.Reset(nil)
		e.render()
		e.logger.Debug("caption cleared", logging.String(logging.FieldEventType, "caption_cleared"))
		return
	}
	text := event.Caption.Text
	var parts []string
	if e.segmenter != nil {
		parts = e.segmenter.Segment(text)
	}
	e.caption = text
	e.machine.Reset(selection.Tokens(parts))
	e.render()
	e.logger.Debug("caption changed",
		logging.String(logging.FieldEventType, "caption_changed"),
		logging.Caption(text),
		logging.Tokens(len(parts)),
	)
}

func (e *Engine) handlePointer(p host.Pointer) {
	switch p.Action {
	case host.Activate:
		e.activate(p)
	case host.Hover:
		e.hover(p)
	case host.Leave:
		e.showTooltip(e.tooltip.Leave())
	case host.Submit:
		e.submit(p.Mode, nil)
	default:
		e.logger.Debug("unknown pointer action", logging.String("action", string(p.Action)))
	}
}

func (e *Engine) activate(p host.Pointer) {
	if _, ok := e.machine.Token(p.Token); !ok {
		return
	}
	target := selection.Target{Token: p.Token, Char: p.Char}
	if target.Char < 0 {
		target.Char = selection.NoChar
	}
	changed := false
	for _, action := range e.debouncer.Activate(target) {
		if selection.Apply(e.machine, action) {
			changed = true
		}
	}
	if changed {
		e.render()
	}
}

func (e *Engine) fireDebounce(generation uint64) {
	action, ok := e.debouncer.Fire(generation)
	if !ok {
		return
	}
	if selection.Apply(e.machine, action) {
		e.render()
	}
}

// hoverText is the combined selection when the hovered token is part of a
// multi-token selection, otherwise the hovered unit itself.
func (e *Engine) hoverText(p host.Pointer) string {
	token, ok := e.machine.Token(p.Token)
	if !ok {
		return ""
	}
	if e.machine.IsSelected(p.Token) && e.machine.SelectedCount() > 1 {
		return e.machine.TargetText()
	}
	if p.Char >= 0 && e.machine.IsExpanded(p.Token) {
		runes := token.Runes()
		if p.Char < len(runes) {
			return string(runes[p.Char])
		}
		return ""
	}
	return token.Text
}

func (e *Engine) hover(p host.Pointer) {
	text := e.hoverText(p)
	if text == "" {
		return
	}
	view, ticket := e.tooltip.Hover(text)
	e.showTooltip(view)
	if e.resolver == nil {
		return
	}
	ctx := e.ctx
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		defer e.recoverTask("lookup")
		lookupCtx, cancel := context.WithTimeout(ctx, e.opts.LookupTimeout)
		defer cancel()
		result := e.resolver.Resolve(lookupCtx, ticket.Text)
		e.post(ctx, func() {
			if view, ok := e.tooltip.Apply(ticket, result); ok {
				e.showTooltip(view)
			}
		})
	}()
}

// submit snapshots the selection and host state on the loop and runs the
// pipeline off-loop. done, when set, receives the outcome.
func (e *Engine) submit(mode cards.Mode, done func(submission.Result, error)) {
	req := submission.Request{
		Session:     e.session,
		HasSession:  true,
		Mode:        mode,
		Target:      e.machine.TargetText(),
		Caption:     e.caption,
		Video:       e.surface.Video(),
		CurrentTime: e.surface.CurrentTime(),
	}
	if e.submitter == nil {
		if done != nil {
			done(submission.Result{}, services.Wrap(services.ErrConfiguration, "engine", "submit", "no submission pipeline", nil))
		}
		return
	}
	e.logger.Debug("submit requested",
		logging.String(logging.FieldEventType, "submit_requested"),
		logging.String(logging.FieldMode, string(mode)),
		logging.Selection(e.machine.SelectedIndices()),
		logging.Target(req.Target),
	)
	caption := e.caption
	ctx := e.ctx
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		defer e.recoverTask("submit")
		submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SubmitTimeout)
		defer cancel()
		result, err := e.submitter.Submit(submitCtx, req)
		if done != nil {
			done(result, err)
		}
		if err != nil {
			return
		}
		e.post(ctx, func() { e.afterSubmit(caption) })
	}()
}

// afterSubmit clears the selection when the caption that was submitted is
// still showing. A newer caption already reset selection on arrival.
func (e *Engine) afterSubmit(caption string) {
	if e.caption != caption {
		return
	}
	e.debouncer.Cancel()
	e.machine.Clear()
	e.render()
}

func (e *Engine) snapshot() Status {
	tokens := e.machine.Tokens()
	texts := make([]string, len(tokens))
	for i, token := range tokens {
		texts[i] = token.Text
	}
	return Status{
		ID:       e.id,
		Running:  true,
		DeckID:   e.session.DeckID,
		Mode:     e.session.Mode,
		Caption:  e.caption,
		Tokens:   texts,
		Selected: e.machine.SelectedIndices(),
		Target:   e.machine.TargetText(),
	}
}

func (e *Engine) render() {
	if err := e.surface.Render(overlay.Project(e.caption, e.machine)); err != nil {
		e.logger.Debug("overlay render failed",
			logging.String(logging.FieldEventType, "overlay_render_failed"),
			logging.Error(err),
		)
	}
}

func (e *Engine) showTooltip(view overlay.Tooltip) {
	if err := e.surface.ShowTooltip(view); err != nil {
		e.logger.Debug("tooltip update failed",
			logging.String(logging.FieldEventType, "tooltip_failed"),
			logging.Error(err),
		)
	}
}

func (e *Engine) recoverTask(stage string) {
	if rec := recover(); rec != nil {
		e.logger.Error("engine task panicked",
			logging.String(logging.FieldEventType, "engine_panic"),
			logging.String("stage", stage),
			logging.String("panic", fmt.Sprint(rec)),
		)
	}
}
