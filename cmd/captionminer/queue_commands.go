package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"captionminer/internal/ipc"
	"captionminer/internal/queue"
	"captionminer/internal/queueaccess"
)

const queueSentenceWidth = 40

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline card queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueSyncCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

// withQueue prefers the daemon and falls back to opening the queue database
// directly when the daemon is not running.
func (c *commandContext) withQueue(fn func(queueaccess.Access) error) error {
	session, err := queueaccess.OpenWithFallback(
		func() (*ipc.Client, error) { return ipc.Dial(c.socketPath()) },
		func() (*queue.Store, error) {
			cfg, err := c.ensureConfig()
			if err != nil {
				return nil, err
			}
			return queue.Open(cfg)
		},
	)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cards waiting to be synced",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			print := func(items []ipc.QueueItem) {
				if len(items) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return
				}
				fmt.Fprint(stdout, renderTable(
					[]string{"Card", "Deck", "Mode", "Target", "Sentence", "Tries", "Queued"},
					buildQueueListRows(items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					shouldColorize(stdout),
				))
			}
			return ctx.withQueue(func(access queueaccess.Access) error {
				items, err := access.List(cmd.Context())
				if err != nil {
					return err
				}
				print(items)
				return nil
			})
		},
	}
}

func newQueueSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay offline cards to the backend now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueSync()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Synced %d card(s), %d remaining\n", resp.Synced, resp.Remaining)
				if resp.Error != "" {
					fmt.Fprintf(stdout, "Sync stopped early: %s\n", resp.Error)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard every offline card",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(access queueaccess.Access) error {
				removed, err := access.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d card(s)\n", removed)
				return nil
			})
		},
	}
}

func buildQueueListRows(items []ipc.QueueItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.CardID,
			item.DeckID,
			item.Mode,
			item.Target,
			runewidth.Truncate(item.Sentence, queueSentenceWidth, "…"),
			strconv.Itoa(item.Attempts),
			formatQueued(item.QueuedAt),
		})
	}
	return rows
}

func formatQueued(value string) string {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04")
}
