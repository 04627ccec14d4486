package queue_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"captionminer/internal/cards"
	"captionminer/internal/services"
	"captionminer/internal/testsupport"
)

func localCard(id, deck, target string) cards.Card {
	return cards.NewLocalCard(cards.DraftCard{DeckID: deck, Mode: cards.ModeWord, TargetWord: target}, id, time.Now())
}

func TestAppendListPreservesInsertionOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, localCard(fmt.Sprintf("local-%d", i), "deck-1", fmt.Sprintf("词%d", i))); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		if want := fmt.Sprintf("local-%d", i); entry.Card.ID != want {
			t.Fatalf("entry %d id = %q, want %q", i, entry.Card.ID, want)
		}
		if entry.Card.UserID != cards.OfflineUserID {
			t.Fatalf("expected offline marker on entry %d", i)
		}
		if entry.QueuedAt.IsZero() {
			t.Fatalf("expected queued time on entry %d", i)
		}
	}
}

func TestAppendRejectsDuplicateAndEmptyIDs(t *testing.T) {
	store := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.Append(ctx, localCard("", "d", "x")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := store.Append(ctx, localCard("local-a", "d", "x")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, localCard("local-a", "d", "x")); err == nil {
		t.Fatal("expected unique constraint failure")
	}
}

func TestRemoveRecordFailureAndStats(t *testing.T) {
	store := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	ctx := context.Background()

	for _, c := range []cards.Card{localCard("local-1", "a", "一"), localCard("local-2", "a", "二"), localCard("local-3", "b", "三")} {
		if _, err := store.Append(ctx, c); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	if err := store.RecordFailure(ctx, "local-2", errors.New("http 503")); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	entry, err := store.Get(ctx, "local-2")
	if err != nil || entry == nil {
		t.Fatalf("Get: %v %v", entry, err)
	}
	if entry.Attempts != 1 || entry.LastError != "http 503" {
		t.Fatalf("unexpected bookkeeping: %+v", entry)
	}

	if err := store.Remove(ctx, "local-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if missing, _ := store.Get(ctx, "local-1"); missing != nil {
		t.Fatal("expected removed entry to be gone")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.ByDeck["a"] != 1 || stats.ByDeck["b"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Oldest.IsZero() {
		t.Fatal("expected oldest timestamp")
	}

	removed, err := store.Clear(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("Clear: removed=%d err=%v", removed, err)
	}
}

func TestClosedStoreReportsInvalidated(t *testing.T) {
	store := testsupport.MustOpenQueue(t, testsupport.NewConfig(t))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := store.Append(context.Background(), localCard("local-x", "d", "x")); !errors.Is(err, services.ErrInvalidated) {
		t.Fatalf("expected invalidated error, got %v", err)
	}
	if _, err := store.List(context.Background()); !errors.Is(err, services.ErrInvalidated) {
		t.Fatalf("expected invalidated error from List, got %v", err)
	}
}
