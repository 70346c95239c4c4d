package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/mediacompose/internal/audio"
)

// mixRequest is the request file layout for the mix command.
type mixRequest struct {
	Tracks      []audio.Track `json:"tracks" yaml:"tracks" toml:"tracks"`
	MainGain    float64       `json:"main_gain" yaml:"main_gain" toml:"main_gain"`
	FadeSeconds float64       `json:"fade_seconds" yaml:"fade_seconds" toml:"fade_seconds"`
}

func newMixCommand(ctx *commandContext) *cobra.Command {
	var (
		videoPath, output, requestFile string
		mainGain, fade                 float64
	)

	cmd := &cobra.Command{
		Use:   "mix --video <file> --out <file> --request <tracks file>",
		Short: "Lay background music tracks under a video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defaults := audio.DefaultMixOptions()
			req := mixRequest{MainGain: defaults.MainGain, FadeSeconds: defaults.FadeSeconds}
			if err := decodeRequestFile(requestFile, &req); err != nil {
				return err
			}
			if cmd.Flags().Changed("main-gain") {
				req.MainGain = mainGain
			}
			if cmd.Flags().Changed("fade") {
				req.FadeSeconds = fade
			}

			pipes, err := ctx.ensurePipelines(cmd)
			if err != nil {
				return err
			}
			res, err := pipes.mixer.AddBackgroundMusic(cmd.Context(), videoPath, req.Tracks, output,
				audio.MixOptions{MainGain: req.MainGain, FadeSeconds: req.FadeSeconds})
			if err != nil {
				return err
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			for _, s := range res.Skipped {
				fmt.Fprintf(out, "skipped %s\n", s)
			}
			if res.Copied {
				fmt.Fprintf(out, "no usable music, copied video to %s\n", res.Output)
				return nil
			}
			fmt.Fprintf(out, "mixed %d tracks into %s\n", res.Tracks, res.Output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&videoPath, "video", "", "Input video")
	flags.StringVarP(&output, "out", "o", "", "Output file")
	flags.StringVarP(&requestFile, "request", "r", "", "Tracks file (.toml, .yaml, .yml, .json)")
	flags.Float64Var(&mainGain, "main-gain", 0, "Gain applied to the video's own audio")
	flags.Float64Var(&fade, "fade", 0, "Fade length in seconds at track boundaries")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("request")

	return cmd
}
