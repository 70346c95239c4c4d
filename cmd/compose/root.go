package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(load pipelineLoader) *cobra.Command {
	ctx := newCommandContext(load)

	rootCmd := &cobra.Command{
		Use:           "compose",
		Short:         "Overlay, concatenate and mix video with ffmpeg",
		Long:          "compose runs the mediacompose pipelines locally. Engine settings come from the same environment variables as the server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&ctx.jsonFlag, "json", false, "Write JSON even when stdout is a terminal")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Override LOG_LEVEL (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newProbeCommand(ctx))
	rootCmd.AddCommand(newOverlayCommand(ctx))
	rootCmd.AddCommand(newConcatCommand(ctx))
	rootCmd.AddCommand(newMixCommand(ctx))
	rootCmd.AddCommand(newAudioCommand(ctx))

	return rootCmd
}
