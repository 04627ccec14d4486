package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"captionminer/internal/dictionary"
	"captionminer/internal/kvstore"
	"captionminer/internal/logging"
	"captionminer/internal/lookup"
	"captionminer/internal/segment"
	"captionminer/internal/services/translate"
	"captionminer/internal/session"
)

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "segment <text>",
		Short: "Split caption text into tokens the way the overlay does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			adapter := segment.NewFromConfig(cfg, logging.NewNop())
			tokens := adapter.Segment(strings.Join(args, " "))
			stdout := cmd.OutOrStdout()
			if len(tokens) == 0 {
				fmt.Fprintln(stdout, "No tokens")
				return nil
			}
			if !adapter.Available() {
				fmt.Fprintln(stdout, "note: segmentation engine unavailable; using per-character tokens")
			}
			rows := make([][]string, 0, len(tokens))
			for i, token := range tokens {
				rows = append(rows, []string{fmt.Sprintf("%d", i), token})
			}
			fmt.Fprint(stdout, renderTable([]string{"#", "Token"}, rows, []columnAlignment{alignRight, alignLeft}, shouldColorize(stdout)))
			return nil
		},
	}
}

func newLookupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <text>",
		Short: "Resolve pinyin and a definition for text as the tooltip would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			return ctx.withStore(func(store *kvstore.Store) error {
				logger := logging.NewNop()
				resolver := lookup.NewResolver(
					dictionary.NewLazy(cfg.Paths.DictionaryPath, logger),
					translate.NewFromConfig(cfg, session.TokenSource{Store: store, Fallback: cfg.API.Token}),
					lookup.WithLogger(logger),
				)
				reqCtx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout())
				defer cancel()
				result := resolver.Resolve(reqCtx, text)

				stdout := cmd.OutOrStdout()
				rows := [][]string{
					{"Text", text},
					{"Pinyin", result.Phonetic},
					{"Definition", result.Definition},
				}
				fmt.Fprint(stdout, renderTable([]string{"Field", "Value"}, rows, nil, shouldColorize(stdout)))
				return nil
			})
		},
	}
}
