package session_test

import (
	"context"
	"errors"
	"testing"

	"captionminer/internal/cards"
	"captionminer/internal/services"
	"captionminer/internal/session"
)

type memStore map[string][]byte

func (m memStore) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m memStore) Set(_ context.Context, items map[string][]byte) error {
	for k, v := range items {
		m[k] = v
	}
	return nil
}

func (m memStore) Remove(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	store := memStore{}

	if _, ok, err := session.Load(ctx, store); err != nil || ok {
		t.Fatalf("expected no session, got ok=%v err=%v", ok, err)
	}

	want := session.StudySession{DeckID: "deck-1", DeckName: "HSK", Mode: cards.ModeCloze, TranslationEnabled: true}
	if err := session.Save(ctx, store, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := session.Load(ctx, store)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, want)
	}

	if err := session.Clear(ctx, store); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := session.Load(ctx, store); ok {
		t.Fatal("expected session cleared")
	}
}

func TestSaveRejectsInvalidSession(t *testing.T) {
	err := session.Save(context.Background(), memStore{}, session.StudySession{Mode: cards.ModeWord})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	err = session.Save(context.Background(), memStore{}, session.StudySession{DeckID: "d", Mode: "audio"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for bad mode, got %v", err)
	}
}

func TestLoadMalformedSession(t *testing.T) {
	store := memStore{session.StorageKey: []byte("{not json")}
	if _, _, err := session.Load(context.Background(), store); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTokenSourcePrefersStorage(t *testing.T) {
	ctx := context.Background()
	store := memStore{}
	src := session.TokenSource{Store: store, Fallback: "from-config"}

	if token, err := src.Token(ctx); err != nil || token != "from-config" {
		t.Fatalf("expected fallback token, got %q %v", token, err)
	}
	if err := session.SetAuthToken(ctx, store, " stored "); err != nil {
		t.Fatalf("SetAuthToken: %v", err)
	}
	if token, err := src.Token(ctx); err != nil || token != "stored" {
		t.Fatalf("expected stored token, got %q %v", token, err)
	}
	if err := session.ClearAuthToken(ctx, store); err != nil {
		t.Fatalf("ClearAuthToken: %v", err)
	}
	if token, _ := session.AuthToken(ctx, store); token != "" {
		t.Fatalf("expected cleared token, got %q", token)
	}
}
