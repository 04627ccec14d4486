package daemonctl_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"captionminer/internal/cards"
	"captionminer/internal/daemon"
	"captionminer/internal/daemonctl"
	"captionminer/internal/ipc"
	"captionminer/internal/logging"
	"captionminer/internal/testsupport"
)

func TestProcessInfoWithoutDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	alive, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
	if _, err := daemonctl.StopAndTerminate(socket, filepath.Join(t.TempDir(), "x.pid"), time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestWaitForClientTimesOut(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	if _, err := daemonctl.WaitForClient(socket, 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}
	if err := daemonctl.WaitForShutdown(socket, 300*time.Millisecond); err != nil {
		t.Fatalf("absent daemon counts as shut down, got %v", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected empty executable to fail")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	q := testsupport.MustOpenQueue(t, cfg)
	draft := cards.DraftCard{DeckID: "deck-1", Mode: cards.ModeWord, TargetWord: "你好"}
	if _, err := q.Append(context.Background(), cards.NewLocalCard(draft, "local-1", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), filepath.Join(cfg.Paths.DataDir, "none.sock"), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Daemon != nil {
		t.Fatalf("expected no daemon status, got %+v", snap.Daemon)
	}
	if snap.Queue.Total != 1 || snap.Queue.ByDeck["deck-1"] != 1 {
		t.Fatalf("queue stats not read from disk: %+v", snap.Queue)
	}
	if len(snap.Checks) == 0 {
		t.Fatal("expected preflight checks")
	}
}

func TestBuildStatusSnapshotWithDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.DataDir, "ctl.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	snap, err := daemonctl.BuildStatusSnapshot(ctx, socket, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Daemon == nil || !snap.Daemon.Running {
		t.Fatalf("expected running daemon, got %+v", snap.Daemon)
	}
	alive, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil || !alive || pid == 0 {
		t.Fatalf("ProcessInfo = %v, %d, %v", alive, pid, err)
	}
}
