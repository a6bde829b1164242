package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configDir string

	ctx := newCommandContext(&configDir)

	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "FlashFlow studio admin CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		ctx.close()
	}

	rootCmd.PersistentFlags().StringVarP(&configDir, "config-dir", "c", "configs", "Directory containing config.yaml")

	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newCreditsCommand(ctx))
	rootCmd.AddCommand(newCreativesCommand(ctx))
	rootCmd.AddCommand(newBriefCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))

	return rootCmd
}
