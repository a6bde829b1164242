package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBriefCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "brief <creative-id>",
		Short: "Render the video editing brief for a saved creative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := ctx.ensureAdmin(cmd.Context())
			if err != nil {
				return err
			}
			brief, err := admin.Briefs.Preview(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), brief)
			return nil
		},
	}
}
