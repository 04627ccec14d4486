package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"captionminer/internal/kvstore"
	"captionminer/internal/language"
	"captionminer/internal/services/cardsvc"
	"captionminer/internal/session"
)

func newDecksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "decks",
		Short: "List decks available on the card backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *kvstore.Store) error {
				client := cardsvc.NewFromConfig(cfg, session.TokenSource{Store: store, Fallback: cfg.API.Token})
				reqCtx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout())
				defer cancel()
				decks, err := client.Decks(reqCtx)
				if err != nil {
					return fmt.Errorf("list decks: %w", err)
				}
				stdout := cmd.OutOrStdout()
				if len(decks) == 0 {
					fmt.Fprintln(stdout, "No decks")
					return nil
				}
				rows := make([][]string, 0, len(decks))
				for _, deck := range decks {
					rows = append(rows, []string{deck.ID, deck.Name, deckLanguage(deck.Language)})
				}
				fmt.Fprint(stdout, renderTable([]string{"ID", "Name", "Language"}, rows, nil, shouldColorize(stdout)))
				return nil
			})
		},
	}
}

func deckLanguage(code string) string {
	if code == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", language.DisplayName(code), code)
}
