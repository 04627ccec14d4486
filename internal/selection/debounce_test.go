package selection

import (
	"testing"
	"time"
)

func newTestDebouncer(window time.Duration) (*Debouncer, chan uint64) {
	fired := make(chan uint64, 8)
	return NewDebouncer(window, func(gen uint64) { fired <- gen }), fired
}

func TestSingleActivationCommitsAfterWindow(t *testing.T) {
	d, fired := newTestDebouncer(20 * time.Millisecond)
	target := Target{Token: 1, Char: NoChar}
	if actions := d.Activate(target); len(actions) != 0 {
		t.Fatalf("expected no immediate actions, got %v", actions)
	}
	if !d.Pending() {
		t.Fatal("expected pending activation")
	}
	select {
	case gen := <-fired:
		action, ok := d.Fire(gen)
		if !ok || action.Kind != Single || action.Target != target {
			t.Fatalf("unexpected fire result %+v %v", action, ok)
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if d.Pending() {
		t.Fatal("pending should clear after fire")
	}
}

func TestDoubleActivationCancelsSingle(t *testing.T) {
	d, fired := newTestDebouncer(50 * time.Millisecond)
	target := Target{Token: 0, Char: NoChar}
	d.Activate(target)
	actions := d.Activate(target)
	if len(actions) != 1 || actions[0].Kind != Double || actions[0].Target != target {
		t.Fatalf("expected double action, got %v", actions)
	}
	select {
	case gen := <-fired:
		if _, ok := d.Fire(gen); ok {
			t.Fatal("stale fire should be ignored")
		}
	case <-time.After(120 * time.Millisecond):
	}
}

func TestDifferentTargetFlushesPendingSingle(t *testing.T) {
	d, _ := newTestDebouncer(time.Hour)
	first := Target{Token: 0, Char: NoChar}
	second := Target{Token: 1, Char: NoChar}
	d.Activate(first)
	actions := d.Activate(second)
	if len(actions) != 1 || actions[0].Kind != Single || actions[0].Target != first {
		t.Fatalf("expected flushed single, got %v", actions)
	}
	d.Cancel()
	d.Cancel()
	if d.Pending() {
		t.Fatal("cancel should clear pending")
	}
}

func TestStaleGenerationIgnored(t *testing.T) {
	d, _ := newTestDebouncer(time.Hour)
	d.Activate(Target{Token: 0, Char: NoChar})
	d.Cancel()
	d.Activate(Target{Token: 0, Char: NoChar})
	if _, ok := d.Fire(1); ok {
		t.Fatal("first generation should be stale")
	}
	if _, ok := d.Fire(3); !ok {
		t.Fatal("current generation should fire")
	}
}

func TestApply(t *testing.T) {
	m := machineFor("你", "学习")

	if Apply(m, Action{Kind: Double, Target: Target{Token: 0, Char: NoChar}}) {
		t.Fatal("double on single-character token must be a no-op")
	}
	if m.IsExpanded(0) {
		t.Fatal("single-character token expanded")
	}

	Apply(m, Action{Kind: Single, Target: Target{Token: 0, Char: NoChar}})
	Apply(m, Action{Kind: Double, Target: Target{Token: 1, Char: NoChar}})
	Apply(m, Action{Kind: Single, Target: Target{Token: 1, Char: 1}})
	if got := m.TargetText(); got != "你习" {
		t.Fatalf("TargetText = %q", got)
	}
	if Apply(m, Action{Kind: Double, Target: Target{Token: 1, Char: 1}}) {
		t.Fatal("double on a character must be ignored")
	}
}
