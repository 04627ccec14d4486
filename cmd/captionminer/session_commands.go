package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captionminer/internal/cards"
	"captionminer/internal/kvstore"
	"captionminer/internal/services/cardsvc"
	"captionminer/internal/session"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the active study session",
	}
	sessionCmd.AddCommand(newSessionStartCommand(ctx))
	sessionCmd.AddCommand(newSessionStopCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))
	return sessionCmd
}

func newSessionStartCommand(ctx *commandContext) *cobra.Command {
	var (
		deckID      string
		deckName    string
		mode        string
		translation bool
		noVerify    bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a study session; a running daemon attaches the overlay",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := cards.ParseMode(mode)
			if err != nil {
				return err
			}
			sess := session.StudySession{
				DeckID:             strings.TrimSpace(deckID),
				DeckName:           strings.TrimSpace(deckName),
				Mode:               parsed,
				TranslationEnabled: translation,
			}
			if err := sess.Validate(); err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()

			return ctx.withStore(func(store *kvstore.Store) error {
				if !noVerify {
					name, err := verifyDeck(cmd.Context(), ctx, store, sess.DeckID)
					switch {
					case errors.Is(err, errDeckNotFound):
						return err
					case err != nil:
						fmt.Fprintf(stdout, "warn: could not verify deck (%v); saving anyway\n", err)
					case sess.DeckName == "":
						sess.DeckName = name
					}
				}
				if err := session.Save(cmd.Context(), store, sess); err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Session started: deck %s, %s mode\n", deckLabel(sess), sess.Mode)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&deckID, "deck", "", "Deck id to add cards to")
	cmd.Flags().StringVar(&deckName, "deck-name", "", "Deck display name (looked up when omitted)")
	cmd.Flags().StringVar(&mode, "mode", string(cards.ModeWord), "Card mode (word, sentence, cloze)")
	cmd.Flags().BoolVar(&translation, "translate", true, "Attach a sentence translation to created cards")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip checking the deck against the backend")
	_ = cmd.MarkFlagRequired("deck")
	return cmd
}

var errDeckNotFound = errors.New("deck not found")

// verifyDeck confirms deckID exists on the backend and returns its name.
func verifyDeck(ctx context.Context, cmdCtx *commandContext, store *kvstore.Store, deckID string) (string, error) {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return "", err
	}
	reqCtx, cancel := context.WithTimeout(ctx, cfg.APITimeout()+time.Second)
	defer cancel()
	client := cardsvc.NewFromConfig(cfg, session.TokenSource{Store: store, Fallback: cfg.API.Token})
	decks, err := client.Decks(reqCtx)
	if err != nil {
		return "", err
	}
	for _, deck := range decks {
		if deck.ID == deckID {
			return deck.Name, nil
		}
	}
	return "", fmt.Errorf("%w: %s; run `captionminer decks` to list available decks", errDeckNotFound, deckID)
}

func newSessionStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "End the study session; a running daemon detaches the overlay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				if err := session.Clear(cmd.Context(), store); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session stopped")
				return nil
			})
		},
	}
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored study session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				sess, ok, err := session.Load(cmd.Context(), store)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if !ok {
					fmt.Fprintln(stdout, "No active session")
					return nil
				}
				rows := [][]string{
					{"Deck", deckLabel(sess)},
					{"Mode", string(sess.Mode)},
					{"Translation", yesNo(sess.TranslationEnabled)},
					{"Audio", yesNo(sess.AudioEnabled)},
				}
				fmt.Fprint(stdout, renderTable([]string{"Field", "Value"}, rows, nil, shouldColorize(stdout)))
				return nil
			})
		},
	}
}

func deckLabel(sess session.StudySession) string {
	if sess.DeckName == "" {
		return sess.DeckID
	}
	return fmt.Sprintf("%s (%s)", sess.DeckName, sess.DeckID)
}
