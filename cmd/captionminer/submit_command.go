package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"captionminer/internal/cards"
	"captionminer/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a card from the current caption selection",
		Long: "Create a card from the tokens currently selected in the overlay. " +
			"The session's card mode is used unless --mode overrides it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				if _, err := cards.ParseMode(mode); err != nil {
					return err
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(mode)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), describeSubmit(resp))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Card mode override (word, sentence, cloze)")
	return cmd
}

func describeSubmit(resp *ipc.SubmitResponse) string {
	if resp.Outcome == "queued" {
		return fmt.Sprintf("Backend unreachable; %s card for %q saved offline as %s", resp.Mode, resp.Target, resp.CardID)
	}
	return fmt.Sprintf("Created %s card %s for %q", resp.Mode, resp.CardID, resp.Target)
}
