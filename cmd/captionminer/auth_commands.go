package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"captionminer/internal/kvstore"
	"captionminer/internal/session"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the card backend auth token",
	}

	setCmd := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the bearer token (reads stdin when no argument is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && strings.TrimSpace(line) == "" {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				token = line
			}
			return ctx.withStore(func(store *kvstore.Store) error {
				if err := session.SetAuthToken(cmd.Context(), store, token); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Auth token saved")
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *kvstore.Store) error {
				if err := session.ClearAuthToken(cmd.Context(), store); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Auth token cleared")
				return nil
			})
		},
	}

	authCmd.AddCommand(setCmd, clearCmd)
	return authCmd
}
