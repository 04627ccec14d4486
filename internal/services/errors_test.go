package services_test

import (
	"errors"
	"strings"
	"testing"

	"captionminer/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUnavailable, "cardsvc", "create", "post failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"cardsvc", "create", "post failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestDegradable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: refused"), true},
		{services.Wrap(services.ErrUnavailable, "cardsvc", "create", "http 503", nil), true},
		{services.Wrap(services.ErrInvalidated, "kvstore", "get", "closed", nil), false},
		{services.Wrap(services.ErrConfiguration, "cardsvc", "create", "no base url", nil), false},
	}
	for _, tc := range cases {
		if got := services.Degradable(tc.err); got != tc.want {
			t.Fatalf("Degradable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestErrorHint(t *testing.T) {
	invalidated := services.Wrap(services.ErrInvalidated, "kvstore", "set", "", nil)
	if hint := services.ErrorHint(invalidated); !strings.Contains(hint, "restart") {
		t.Fatalf("unexpected hint for invalidated: %q", hint)
	}
	if hint := services.ErrorHint(nil); hint != "" {
		t.Fatalf("expected empty hint for nil, got %q", hint)
	}
}
