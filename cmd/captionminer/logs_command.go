package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captionminer/internal/ipc"
	"captionminer/internal/logging"
)

const logFollowInterval = 500 * time.Millisecond

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display recent daemon log events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				runCtx := cmd.Context()
				stdout := cmd.OutOrStdout()
				req := ipc.LogTailRequest{Limit: max(lines, 0)}
				printed := false

				for {
					resp, err := client.LogTail(req)
					if err != nil {
						return fmt.Errorf("tail logs: %w", err)
					}
					if resp == nil {
						return errors.New("log tail response missing")
					}
					for _, evt := range resp.Events {
						fmt.Fprintln(stdout, formatLogEvent(evt))
						printed = true
					}
					req = ipc.LogTailRequest{Since: resp.Next}
					if !follow {
						if !printed {
							fmt.Fprintln(stdout, "No log entries available")
						}
						return nil
					}
					select {
					case <-runCtx.Done():
						return nil
					case <-time.After(logFollowInterval):
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of events to show (0 for all buffered)")
	return cmd
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Local().Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	if deck := strings.TrimSpace(evt.DeckID); deck != "" {
		parts = append(parts, "deck "+deck)
	}
	line := strings.Join(parts, " ")
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " – " + message
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	builder.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
	}
	return builder.String()
}
