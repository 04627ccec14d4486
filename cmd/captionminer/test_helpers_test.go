package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"captionminer/internal/cards"
	"captionminer/internal/config"
	"captionminer/internal/daemon"
	"captionminer/internal/ipc"
	"captionminer/internal/logging"
	"captionminer/internal/testsupport"
)

// fakeBackend serves the card backend endpoints the CLI and daemon call.
type fakeBackend struct {
	mu      sync.Mutex
	decks   []cards.Deck
	created []cards.DraftCard
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/decks":
		_ = json.NewEncoder(w).Encode(map[string]any{"decks": b.decks})
	case r.Method == http.MethodPost && r.URL.Path == "/cards":
		var draft cards.DraftCard
		if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.created = append(b.created, draft)
		_ = json.NewEncoder(w).Encode(map[string]any{"card": map[string]any{
			"id":         "srv-" + draft.TargetWord,
			"deckId":     draft.DeckID,
			"targetWord": draft.TargetWord,
		}})
	case r.Method == http.MethodPost && r.URL.Path == "/translate":
		_ = json.NewEncoder(w).Encode(map[string]string{"translation": "hello world"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *fakeBackend) createdCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

type cliTestEnv struct {
	cfg        *config.Config
	backend    *fakeBackend
	daemon     *daemon.Daemon
	hub        *logging.StreamHub
	socketPath string
	configPath string
}

// setupCLITestEnv writes a config pointing at a fake backend. With
// withDaemon set it also starts a daemon and IPC server on the socket.
func setupCLITestEnv(t *testing.T, withDaemon bool) *cliTestEnv {
	t.Helper()

	backend := &fakeBackend{decks: []cards.Deck{{ID: "deck-1", Name: "HSK 1", Language: "zh"}}}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithAPIBaseURL(srv.URL))
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("CAPTIONMINER_API_TOKEN", "")
	t.Setenv("CAPTIONMINER_API_URL", "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		backend:    backend,
		socketPath: filepath.Join(cfg.Paths.DataDir, "cli.sock"),
		configPath: configPath,
	}
	if !withDaemon {
		return env
	}

	env.hub = logging.NewStreamHub(64)
	d, err := daemon.New(cfg, logging.NewNop(), env.hub)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon Start: %v", err)
	}
	server, err := ipc.NewServer(ctx, env.socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		_ = d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI daemon test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	env.daemon = d

	t.Cleanup(func() {
		cancel()
		server.Close()
		_ = d.Close()
	})
	return env
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLI(t, args, e.socketPath, e.configPath, "")
}

func runCLI(t *testing.T, args []string, socket, configPath, stdin string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
