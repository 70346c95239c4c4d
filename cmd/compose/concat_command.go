package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConcatCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "concat --out <file> <segment>...",
		Short: "Join video segments in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipes, err := ctx.ensurePipelines(cmd)
			if err != nil {
				return err
			}
			if err := pipes.concat.Concatenate(cmd.Context(), args, output); err != nil {
				return err
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, map[string]any{"output": output, "segments": args})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "joined %d segments into %s\n", len(args), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
