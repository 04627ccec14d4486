package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captionminer/internal/daemonctl"
	"captionminer/internal/daemonrun"
	"captionminer/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the captionminer daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the captionminer daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), daemonrun.PIDPath(cfg), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var runStdout bool
	var runLevel string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the captionminer daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   runLevel,
				Stdout:     runStdout,
				SocketPath: ctx.socketPath(),
			})
		},
	}
	runCmd.Flags().BoolVar(&runStdout, "stdout", true, "Mirror logs to standard output")
	runCmd.Flags().StringVar(&runLevel, "log-level", "", "Override the configured log level")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, caption engine, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), snap, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, runCmd, statusCmd}
}

func renderStatus(stdout io.Writer, snap *daemonctl.Snapshot, colorize bool) {
	printSection(stdout, "Daemon", colorize)
	status := snap.Daemon
	if status == nil {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "not running", colorize))
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
		bridgeKind := statusWarn
		bridgeMsg := "no page connected"
		if status.BridgeConnected {
			bridgeKind, bridgeMsg = statusOK, "page connected"
		}
		fmt.Fprintln(stdout, renderStatusLine("Bridge", bridgeKind, bridgeMsg, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Lifecycle", statusInfo, status.Lifecycle, colorize))
		if status.Location != "" {
			fmt.Fprintln(stdout, renderStatusLine("Location", statusInfo, status.Location, colorize))
		}
		if status.HasSession {
			fmt.Fprintln(stdout, renderStatusLine("Session", statusOK, fmt.Sprintf("deck %s, %s mode", status.DeckID, status.Mode), colorize))
		} else {
			fmt.Fprintln(stdout, renderStatusLine("Session", statusWarn, "none; run `captionminer session start`", colorize))
		}
		segKind, segMsg := statusOK, "statistical"
		if !status.Segmentation {
			segKind, segMsg = statusWarn, "per-character fallback"
		}
		fmt.Fprintln(stdout, renderStatusLine("Segmentation", segKind, segMsg, colorize))
		if status.DictionaryError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Dictionary", statusError, status.DictionaryError, colorize))
		}
		if status.LastSyncAt != "" {
			kind, msg := statusOK, fmt.Sprintf("%s, %d synced", status.LastSyncAt, status.LastSyncSynced)
			if status.LastSyncError != "" {
				kind, msg = statusWarn, msg+": "+status.LastSyncError
			}
			fmt.Fprintln(stdout, renderStatusLine("Last sync", kind, msg, colorize))
		}
		if engine := status.Engine; engine != nil {
			fmt.Fprintln(stdout)
			printSection(stdout, "Caption", colorize)
			fmt.Fprintln(stdout, renderStatusLine("Text", statusInfo, engine.Caption, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Tokens", statusInfo, strings.Join(engine.Tokens, " | "), colorize))
			if engine.Target != "" {
				fmt.Fprintln(stdout, renderStatusLine("Selection", statusInfo, engine.Target, colorize))
			}
		}
	}

	fmt.Fprintln(stdout)
	printSection(stdout, "Checks", colorize)
	for _, result := range snap.Checks {
		fmt.Fprintln(stdout, renderStatusLine(result.Name, checkKind(result), result.Detail, colorize))
	}

	fmt.Fprintln(stdout)
	printSection(stdout, "Offline Queue", colorize)
	if snap.Queue.Total == 0 {
		fmt.Fprintln(stdout, "Queue is empty")
		return
	}
	decks := make([]string, 0, len(snap.Queue.ByDeck))
	for deck := range snap.Queue.ByDeck {
		decks = append(decks, deck)
	}
	sort.Strings(decks)
	rows := make([][]string, 0, len(decks))
	for _, deck := range decks {
		rows = append(rows, []string{deck, strconv.Itoa(snap.Queue.ByDeck[deck])})
	}
	fmt.Fprint(stdout, renderTable([]string{"Deck", "Cards"}, rows, []columnAlignment{alignLeft, alignRight}, colorize))
}

func checkKind(result preflight.Result) statusKind {
	if result.Passed {
		return statusOK
	}
	return statusError
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{SocketPath: ctx.socketPath()}
	if path := ctx.configPath(); path != "" {
		opts.ConfigPath = path
	}
	return opts
}
