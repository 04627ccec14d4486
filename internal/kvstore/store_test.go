package kvstore_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"captionminer/internal/kvstore"
	"captionminer/internal/logging"
	"captionminer/internal/services"
)

func openStore(t *testing.T, path string) *kvstore.Store {
	t.Helper()
	store, err := kvstore.OpenPath(path, 20*time.Millisecond, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func waitChange(t *testing.T, ch <-chan kvstore.Change, want string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case change, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed while waiting for %q", want)
			}
			if change.Key == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change on %q", want)
		}
	}
}

func expectQuiet(t *testing.T, ch <-chan kvstore.Change, wait time.Duration) {
	t.Helper()
	select {
	case change := <-ch:
		t.Fatalf("unexpected change %+v", change)
	case <-time.After(wait):
	}
}

func TestGetSetRemove(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "storage.db"))

	if err := store.Set(ctx, map[string][]byte{"a": []byte(`"1"`), "b": []byte(`{"x":2}`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	values, err := store.Get(ctx, "a", "b", "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(values["a"]) != `"1"` || string(values["b"]) != `{"x":2}` {
		t.Fatalf("unexpected values: %v", values)
	}
	if _, ok := values["missing"]; ok {
		t.Fatal("missing key should be absent")
	}

	if err := store.Remove(ctx, "a", "never-set"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestSubscribeReceivesLocalChanges(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "storage.db"))

	changes, cancel, err := store.Subscribe("studySession")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := store.Set(ctx, map[string][]byte{"studySession": []byte(`{"deckId":"d"}`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitChange(t, changes, "studySession")

	if err := store.Set(ctx, map[string][]byte{"authToken": []byte(`"t"`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	expectQuiet(t, changes, 150*time.Millisecond)

	if err := store.Remove(ctx, "studySession"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	waitChange(t, changes, "studySession")
}

func TestWriteRightAfterSubscribeIsDelivered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for i := range 20 {
		store := openStore(t, filepath.Join(dir, fmt.Sprintf("storage-%d.db", i)))
		changes, cancel, err := store.Subscribe("studySession")
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		if err := store.Set(ctx, map[string][]byte{"studySession": []byte(`{"deckId":"d"}`)}); err != nil {
			t.Fatalf("Set: %v", err)
		}
		waitChange(t, changes, "studySession")
		cancel()
	}
}

func TestLateSubscriberSeesLaterWrites(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "storage.db"))

	_, cancelFirst, err := store.Subscribe("authToken")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancelFirst()
	time.Sleep(60 * time.Millisecond)

	changes, cancel, err := store.Subscribe("studySession")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()
	if err := store.Set(ctx, map[string][]byte{"studySession": []byte(`{"deckId":"d"}`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitChange(t, changes, "studySession")
}

func TestSubscribeSkipsUnchangedWrites(t *testing.T) {
	ctx := context.Background()
	store := openStore(t, filepath.Join(t.TempDir(), "storage.db"))
	if err := store.Set(ctx, map[string][]byte{"k": []byte(`1`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	changes, cancel, err := store.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()
	time.Sleep(60 * time.Millisecond)

	if err := store.Set(ctx, map[string][]byte{"k": []byte(`1`)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	expectQuiet(t, changes, 150*time.Millisecond)
}

func TestSubscribeSeesOtherProcessWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.db")
	daemon := openStore(t, path)
	cli := openStore(t, path)

	changes, cancel, err := daemon.Subscribe("studySession")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()
	time.Sleep(60 * time.Millisecond)

	if err := cli.Set(ctx, map[string][]byte{"studySession": []byte(`{"deckId":"x"}`)}); err != nil {
		t.Fatalf("Set from second handle: %v", err)
	}
	waitChange(t, changes, "studySession")
}

func TestClosedStoreIsInvalidated(t *testing.T) {
	store, err := kvstore.OpenPath(filepath.Join(t.TempDir(), "storage.db"), 0, nil)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	changes, _, err := store.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-changes; ok {
		t.Fatal("expected subscription channel closed")
	}
	if _, err := store.Get(context.Background(), "x"); !errors.Is(err, services.ErrInvalidated) {
		t.Fatalf("expected ErrInvalidated, got %v", err)
	}
	if err := store.Set(context.Background(), map[string][]byte{"x": []byte("1")}); !errors.Is(err, services.ErrInvalidated) {
		t.Fatalf("expected ErrInvalidated from Set, got %v", err)
	}
	if _, _, err := store.Subscribe(); !errors.Is(err, services.ErrInvalidated) {
		t.Fatalf("expected ErrInvalidated from Subscribe, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
