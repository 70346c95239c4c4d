package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAudioCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audio",
		Short: "Silence padding and gapped joins for narration audio",
	}
	cmd.AddCommand(newPadCommand(ctx), newJoinCommand(ctx))
	return cmd
}

func newPadCommand(ctx *commandContext) *cobra.Command {
	var front, back float64

	cmd := &cobra.Command{
		Use:   "pad <input> <output>",
		Short: "Add silence before and after an audio file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipes, err := ctx.ensurePipelines(cmd)
			if err != nil {
				return err
			}
			if err := pipes.mixer.ExtendWithSilence(cmd.Context(), args[0], args[1], front, back); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}

	cmd.Flags().Float64Var(&front, "front", 0, "Seconds of silence before the audio")
	cmd.Flags().Float64Var(&back, "back", 0, "Seconds of silence after the audio")
	return cmd
}

func newJoinCommand(ctx *commandContext) *cobra.Command {
	var (
		output string
		gap    float64
	)

	cmd := &cobra.Command{
		Use:   "join --out <file> <chunk>...",
		Short: "Join audio chunks with silence between them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipes, err := ctx.ensurePipelines(cmd)
			if err != nil {
				return err
			}
			if err := pipes.mixer.ConcatWithSilence(cmd.Context(), args, output, gap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %d chunks into %s\n", len(args), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file")
	cmd.Flags().Float64Var(&gap, "gap", 0.5, "Seconds of silence between chunks")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
