package selection

import (
	"sync"
	"time"
)

// NoChar marks an activation on a whole token.
const NoChar = -1

// Target identifies an activated token or character.
type Target struct {
	Token int
	Char  int
}

// IsChar reports whether the target is a character of an expanded token.
func (t Target) IsChar() bool {
	return t.Char >= 0
}

// Kind classifies a resolved activation.
type Kind int

const (
	Single Kind = iota + 1
	Double
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Double:
		return "double"
	default:
		return "none"
	}
}

// Action is a resolved activation to apply to a Machine.
type Action struct {
	Kind   Kind
	Target Target
}

// Debouncer resolves raw activations into single and double actions.
// Activate and Fire must be called from the same goroutine. The schedule
// callback runs on a timer goroutine and should hand the generation back
// to that goroutine.
type Debouncer struct {
	window   time.Duration
	schedule func(generation uint64)

	pending    *Target
	generation uint64

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer builds a debouncer with the given double-activation window.
func NewDebouncer(window time.Duration, schedule func(generation uint64)) *Debouncer {
	return &Debouncer{window: window, schedule: schedule}
}

// Activate records an activation and returns any actions that resolve
// immediately: a double activation when the same target is pending, or
// the flushed single of a different pending target.
func (d *Debouncer) Activate(target Target) []Action {
	if d.pending != nil && *d.pending == target {
		d.stopTimer()
		d.pending = nil
		return []Action{{Kind: Double, Target: target}}
	}
	var actions []Action
	if d.pending != nil {
		actions = append(actions, Action{Kind: Single, Target: *d.pending})
		d.stopTimer()
	}
	d.generation++
	generation := d.generation
	pending := target
	d.pending = &pending
	d.mu.Lock()
	d.timer = time.AfterFunc(d.window, func() {
		if d.schedule != nil {
			d.schedule(generation)
		}
	})
	d.mu.Unlock()
	return actions
}

// Fire resolves a timer expiry. Stale generations are ignored.
func (d *Debouncer) Fire(generation uint64) (Action, bool) {
	if d.pending == nil || generation != d.generation {
		return Action{}, false
	}
	target := *d.pending
	d.pending = nil
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()
	return Action{Kind: Single, Target: target}, true
}

// Pending reports whether a single activation is awaiting its window.
func (d *Debouncer) Pending() bool {
	return d.pending != nil
}

// Cancel drops any pending activation. Safe to call repeatedly.
func (d *Debouncer) Cancel() {
	d.stopTimer()
	d.pending = nil
	d.generation++
}

func (d *Debouncer) stopTimer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Apply mutates m according to action. Double activations on characters
// are ignored. It reports whether state changed.
func Apply(m *Machine, action Action) bool {
	switch action.Kind {
	case Single:
		if action.Target.IsChar() {
			return m.ToggleChar(action.Target.Token, action.Target.Char)
		}
		return m.ToggleToken(action.Target.Token)
	case Double:
		if action.Target.IsChar() {
			return false
		}
		return m.ToggleExpand(action.Target.Token)
	default:
		return false
	}
}
