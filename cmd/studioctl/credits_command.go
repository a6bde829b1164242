package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	creditsCmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant generation credits",
	}

	creditsCmd.AddCommand(newCreditsGrantCommand(ctx))
	creditsCmd.AddCommand(newCreditsShowCommand(ctx))

	return creditsCmd
}

func newCreditsGrantCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <credits>",
		Short: "Add credits to a user's account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := parseCredits(args[1])
			if err != nil {
				return err
			}
			admin, err := ctx.ensureAdmin(cmd.Context())
			if err != nil {
				return err
			}

			userID := args[0]
			if err := admin.Credits.Grant(cmd.Context(), userID, n); err != nil {
				return err
			}
			// 会话下次刷新时读到新余额
			if err := admin.Checker.Invalidate(cmd.Context(), userID); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: balance cache not cleared: %v\n", err)
			}

			balance, err := admin.Checker.Balance(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted %d credits to %s (remaining %s)\n", n, userID, formatRemaining(balance.Remaining, balance.Unlimited))
			return nil
		},
	}
}

func newCreditsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's remaining credits and today's usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := ctx.ensureAdmin(cmd.Context())
			if err != nil {
				return err
			}
			userID := args[0]
			balance, err := admin.Checker.Balance(cmd.Context(), userID)
			if err != nil {
				return err
			}
			used, err := admin.Checker.UsedToday(cmd.Context(), userID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "User:       %s\n", userID)
			fmt.Fprintf(out, "Remaining:  %s\n", formatRemaining(balance.Remaining, balance.Unlimited))
			fmt.Fprintf(out, "Used today: %d\n", used)
			return nil
		},
	}
}

func parseCredits(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("credits must be a positive integer, got %q", raw)
	}
	return n, nil
}

func formatRemaining(remaining int, unlimited bool) string {
	if unlimited {
		return "unlimited"
	}
	return strconv.Itoa(remaining)
}
