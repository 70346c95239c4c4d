package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/mediacompose/internal/probe"
)

const defaultProbeJobs = 4

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var jobs int

	cmd := &cobra.Command{
		Use:   "probe <file>...",
		Short: "Describe media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipes, err := ctx.ensurePipelines(cmd)
			if err != nil {
				return err
			}

			descs := make([]*probe.MediaDescriptor, len(args))
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(jobs, 1))
			for i, path := range args {
				g.Go(func() error {
					d, err := pipes.prober.Probe(gctx, path)
					if err != nil {
						return fmt.Errorf("probe %s: %w", path, err)
					}
					descs[i] = d
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, descs)
			}
			fmt.Fprintln(cmd.OutOrStdout(), probeTable(descs))
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", defaultProbeJobs, "Number of files probed at once")
	return cmd
}

func probeTable(descs []*probe.MediaDescriptor) string {
	headers := []string{"File", "Size", "FPS", "Duration", "Pixel format", "Codec", "Alpha", "Audio"}
	rows := make([][]string, 0, len(descs))
	for _, d := range descs {
		size := fmt.Sprintf("%dx%d", d.Width, d.Height)
		if d.DisplayWidth != 0 && d.DisplayWidth != d.Width {
			size += fmt.Sprintf(" (%dx%d)", d.DisplayWidth, d.Height)
		}
		rows = append(rows, []string{
			d.Path,
			size,
			strconv.FormatFloat(d.FrameRate, 'f', 3, 64),
			seconds(d.Duration),
			d.PixelFormat,
			d.Codec,
			yesNo(d.HasAlpha),
			yesNo(d.HasAudio),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignRight})
}
