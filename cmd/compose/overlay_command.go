package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/mediacompose/internal/overlay"
	"github.com/maauso/mediacompose/internal/probe"
)

// overlayPlan is the dry-run report.
type overlayPlan struct {
	Base             *probe.MediaDescriptor `json:"base"`
	Overlay          *probe.MediaDescriptor `json:"overlay"`
	Placements       []overlay.Placement    `json:"placements"`
	Skipped          []float64              `json:"skipped_starts,omitempty"`
	Capped           bool                   `json:"capped"`
	ExpectedDuration float64                `json:"expected_duration_seconds"`
	Passthrough      bool                   `json:"passthrough"`
	FilterGraph      string                 `json:"filter_graph,omitempty"`
}

func newOverlayCommand(ctx *commandContext) *cobra.Command {
	var (
		basePath, overlayPath, output, requestFile string
		position                                   string
		start, repeatEvery, scale                  float64
		maxRepeats                                 int
		allowExtend, dryRun                        bool
	)

	cmd := &cobra.Command{
		Use:   "overlay --base <video> --overlay <clip> --out <file>",
		Short: "Place a chroma-keyed overlay clip onto a base video",
		Long: "Places the overlay at --start and every --repeat-every seconds after that. " +
			"Options are read from --request (TOML, YAML or JSON) and then from flags.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := overlay.DefaultRequest()
			if requestFile != "" {
				if err := decodeRequestFile(requestFile, &req); err != nil {
					return err
				}
			}

			flags := cmd.Flags()
			if flags.Changed("position") {
				p, err := overlay.ParsePosition(position)
				if err != nil {
					return err
				}
				req.Position = p
			}
			if flags.Changed("start") {
				req.StartTime = start
			}
			if flags.Changed("repeat-every") {
				req.RepeatEvery = repeatEvery
			}
			if flags.Changed("scale") {
				req.ScalePercent = scale
			}
			if flags.Changed("max-repeats") {
				req.MaxRepeats = maxRepeats
			}
			if flags.Changed("allow-extend") {
				req.AllowExtendDuration = allowExtend
			}
			if err := req.Validate(); err != nil {
				return err
			}
			if !dryRun && output == "" {
				return errors.New("--out is required unless --dry-run is set")
			}

			pipes, err := ctx.ensurePipelines(cmd)
			if err != nil {
				return err
			}

			if dryRun {
				prep, err := pipes.compositor.Prepare(cmd.Context(), basePath, overlayPath, req)
				if err != nil {
					return err
				}
				return printPlan(ctx, cmd, newOverlayPlan(prep))
			}

			res, err := pipes.compositor.Compose(cmd.Context(), basePath, overlayPath, output, req)
			if err != nil {
				return err
			}
			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), placementTable(res.Placements))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, passthrough: %s)\n",
				res.Output, seconds(res.ExpectedDuration), yesNo(res.Passthrough))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&basePath, "base", "", "Base video")
	flags.StringVar(&overlayPath, "overlay", "", "Overlay clip")
	flags.StringVarP(&output, "out", "o", "", "Output file")
	flags.StringVarP(&requestFile, "request", "r", "", "Request file (.toml, .yaml, .yml, .json)")
	flags.StringVar(&position, "position", "", "center, top-left, top-right, bottom-left or bottom-right")
	flags.Float64Var(&start, "start", 0, "First placement start in seconds")
	flags.Float64Var(&repeatEvery, "repeat-every", 0, "Seconds between placements; 0 places once, negative disables repeats")
	flags.Float64Var(&scale, "scale", 0, "Rendered size as a fraction of the overlay's own size")
	flags.IntVar(&maxRepeats, "max-repeats", 0, "Cap on placements; 0 means unlimited")
	flags.BoolVar(&allowExtend, "allow-extend", false, "Let placements run past the end of the base video")
	flags.BoolVar(&dryRun, "dry-run", false, "Probe and plan without encoding")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("overlay")

	return cmd
}

func newOverlayPlan(prep *overlay.Prepared) overlayPlan {
	plan := overlayPlan{
		Base:        prep.Base,
		Overlay:     prep.Overlay,
		Placements:  prep.Schedule.Placements,
		Skipped:     prep.Schedule.Skipped,
		Capped:      prep.Schedule.Capped,
		Passthrough: prep.Composition == nil,
	}
	if prep.Base != nil {
		plan.ExpectedDuration = prep.Base.Duration
	}
	if prep.Composition != nil {
		plan.ExpectedDuration = prep.Composition.Duration
		if graph, err := prep.Composition.Graph.Compile(); err == nil {
			plan.FilterGraph = graph
		}
	}
	return plan
}

func printPlan(ctx *commandContext, cmd *cobra.Command, plan overlayPlan) error {
	if ctx.wantJSON(cmd) {
		return writeJSON(cmd, plan)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, placementTable(plan.Placements))
	fmt.Fprintf(out, "expected duration: %s\n", seconds(plan.ExpectedDuration))
	if plan.Passthrough {
		fmt.Fprintln(out, "no valid placement: the base video would be copied unchanged")
	}
	if plan.Capped {
		fmt.Fprintln(out, "placements stopped at the extension ceiling")
	}
	if plan.FilterGraph != "" {
		fmt.Fprintf(out, "filter graph:\n%s\n", plan.FilterGraph)
	}
	return nil
}

func placementTable(placements []overlay.Placement) string {
	rows := make([][]string, 0, len(placements))
	for i, p := range placements {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			seconds(p.Start),
			seconds(p.End()),
			string(p.Position),
		})
	}
	return renderTable([]string{"#", "Start", "End", "Position"}, rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignLeft})
}
