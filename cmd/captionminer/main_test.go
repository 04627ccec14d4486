package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"captionminer/internal/cards"
	"captionminer/internal/logging"
	"captionminer/internal/session"
	"captionminer/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, err = env.run(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, err := env.run(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}
	if _, err := env.run(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowRedactsToken(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "<redacted>")
	if strings.Contains(out, "test-token") {
		t.Fatalf("token leaked: %s", out)
	}

	out, err = env.run(t, "config", "show", "--show-secrets")
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "test-token")
}

func TestSessionStartShowStop(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "session", "show")
	if err != nil {
		t.Fatalf("session show: %v", err)
	}
	requireContains(t, out, "No active session")

	out, err = env.run(t, "session", "start", "--deck", "deck-1", "--mode", "CLOZE")
	if err != nil {
		t.Fatalf("session start: %v", err)
	}
	requireContains(t, out, "HSK 1 (deck-1), cloze mode")

	kv := testsupport.MustOpenKV(t, env.cfg)
	sess, ok, err := session.Load(context.Background(), kv)
	if err != nil || !ok {
		t.Fatalf("session.Load = %v, %v", ok, err)
	}
	if sess.DeckID != "deck-1" || sess.DeckName != "HSK 1" || sess.Mode != cards.ModeCloze || !sess.TranslationEnabled {
		t.Fatalf("unexpected session: %+v", sess)
	}

	out, err = env.run(t, "session", "show")
	if err != nil {
		t.Fatalf("session show: %v", err)
	}
	requireContains(t, out, "HSK 1")
	requireContains(t, out, "cloze")

	out, err = env.run(t, "session", "stop")
	if err != nil {
		t.Fatalf("session stop: %v", err)
	}
	requireContains(t, out, "Session stopped")
	if _, ok, _ := session.Load(context.Background(), kv); ok {
		t.Fatal("session should be cleared")
	}
}

func TestSessionStartValidation(t *testing.T) {
	env := setupCLITestEnv(t, false)

	if _, err := env.run(t, "session", "start", "--deck", "deck-1", "--mode", "essay"); err == nil {
		t.Fatal("expected unknown mode to fail")
	}
	_, err := env.run(t, "session", "start", "--deck", "deck-9")
	if err == nil || !strings.Contains(err.Error(), "deck not found") {
		t.Fatalf("expected unknown deck to fail, got %v", err)
	}
	out, err := env.run(t, "session", "start", "--deck", "deck-9", "--no-verify")
	if err != nil {
		t.Fatalf("session start --no-verify: %v", err)
	}
	requireContains(t, out, "deck deck-9, word mode")
}

func TestAuthSetAndClear(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := runCLI(t, []string{"auth", "set"}, env.socketPath, env.configPath, "secret-token\n")
	if err != nil {
		t.Fatalf("auth set: %v", err)
	}
	requireContains(t, out, "Auth token saved")

	kv := testsupport.MustOpenKV(t, env.cfg)
	token, err := session.AuthToken(context.Background(), kv)
	if err != nil || token != "secret-token" {
		t.Fatalf("AuthToken = %q, %v", token, err)
	}

	if _, err := env.run(t, "auth", "clear"); err != nil {
		t.Fatalf("auth clear: %v", err)
	}
	token, err = session.AuthToken(context.Background(), kv)
	if err != nil || token != "" {
		t.Fatalf("token after clear = %q, %v", token, err)
	}

	if _, err := runCLI(t, []string{"auth", "set"}, env.socketPath, env.configPath, "   \n"); err == nil {
		t.Fatal("expected blank token to be rejected")
	}
}

func TestQueueCommandsWithDaemon(t *testing.T) {
	env := setupCLITestEnv(t, true)
	q := testsupport.MustOpenQueue(t, env.cfg)
	draft := cards.DraftCard{DeckID: "deck-1", Mode: cards.ModeWord, TargetWord: "你好", Sentence: "你好世界"}
	if _, err := q.Append(context.Background(), cards.NewLocalCard(draft, "local-1", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	out, err := env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "local-1")
	requireContains(t, out, "你好世界")

	out, err = env.run(t, "queue", "sync")
	if err != nil {
		t.Fatalf("queue sync: %v", err)
	}
	requireContains(t, out, "Synced 1 card(s), 0 remaining")
	if env.backend.createdCount() != 1 {
		t.Fatalf("backend saw %d creates", env.backend.createdCount())
	}

	out, err = env.run(t, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Removed 0 card(s)")
}

func TestQueueCommandsWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)
	q := testsupport.MustOpenQueue(t, env.cfg)
	draft := cards.DraftCard{DeckID: "deck-1", Mode: cards.ModeWord, TargetWord: "世界"}
	if _, err := q.Append(context.Background(), cards.NewLocalCard(draft, "local-2", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	out, err := env.run(t, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "local-2")

	if _, err := env.run(t, "queue", "sync"); err == nil || !strings.Contains(err.Error(), "captionminer start") {
		t.Fatalf("expected sync to require the daemon, got %v", err)
	}

	out, err = env.run(t, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Removed 1 card(s)")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t, true)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running (pid")
	requireContains(t, out, "no page connected")
	requireContains(t, out, "Card backend")
	requireContains(t, out, "Queue is empty")
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "Data directory")
}

func TestSubmitCommand(t *testing.T) {
	env := setupCLITestEnv(t, true)

	if _, err := env.run(t, "submit", "--mode", "essay"); err == nil {
		t.Fatal("expected invalid mode to fail before dialing")
	}
	if _, err := env.run(t, "submit"); err == nil {
		t.Fatal("expected submit to fail without an active engine")
	}
}

func TestSegmentCommand(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "segment", "你好")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	requireContains(t, out, "per-character")
	requireContains(t, out, "你")
	requireContains(t, out, "好")

	out, err = env.run(t, "segment", "hello", "world")
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	requireContains(t, out, "hello")
	requireContains(t, out, "world")
}

func TestLookupCommand(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "lookup", "你好世界")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	requireContains(t, out, "nǐ hǎo shì jiè")
	requireContains(t, out, "hello world")
}

func TestDecksCommand(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "decks")
	if err != nil {
		t.Fatalf("decks: %v", err)
	}
	requireContains(t, out, "deck-1")
	requireContains(t, out, "HSK 1")
	requireContains(t, out, "Chinese (zh)")
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t, true)

	out, err := env.run(t, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log entries available")

	env.hub.Publish(logging.LogEvent{Level: "info", Message: "first", Component: "bridge"})
	env.hub.Publish(logging.LogEvent{Level: "warn", Message: "second", Fields: map[string]string{"error_hint": "check it"}})

	out, err = env.run(t, "logs", "-n", "1")
	if err != nil {
		t.Fatalf("logs -n 1: %v", err)
	}
	if strings.Contains(out, "first") {
		t.Fatalf("expected only the newest event, got %q", out)
	}
	requireContains(t, out, "WARN")
	requireContains(t, out, "error_hint: check it")
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t, true)

	out, err := env.run(t, "test-notify")
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestCommandsRequireDaemonSocket(t *testing.T) {
	env := setupCLITestEnv(t, false)

	_, err := env.run(t, "test-notify")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing socket error, got %v", err)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t, false)

	out, err := env.run(t, "stop")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
