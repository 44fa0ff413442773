package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"video2notes/internal/api"
	"video2notes/internal/runconfig"
)

type startOptions struct {
	file         string
	skipROI      bool
	roiTimestamp float64
	noAudio      bool
	timestamps   string
	noLabel      bool
	refine       bool
	refineModel  string
	threshold    int
	maxChars     int
	output       string
	follow       bool
	jsonOutput   bool
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var opts startOptions
	cmd := &cobra.Command{
		Use:   "start [video]",
		Short: "Start a pipeline run for a video",
		Long: "Start a run on the daemon. Options come from flags, or from a run " +
			"file (--file, TOML/YAML/JSON) which flags then override.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rc, err := buildRunConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				run, err := client.StartRun(cmd.Context(), rc)
				if err != nil {
					return describeAPIError(err)
				}
				if opts.jsonOutput {
					return writeJSON(cmd, run)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started run %s for %s\n", run.RunID, run.VideoPath)
				if run.Artifacts != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Output directory: %s\n", run.Artifacts.OutputDir)
				}
				if !opts.follow {
					return nil
				}
				return followEvents(cmd.Context(), client, cmd.OutOrStdout(), 0, run.RunID)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "Run configuration file (toml, yaml or json)")
	flags.BoolVar(&opts.skipROI, "skip-roi", false, "Use the full frame instead of asking for a slide region")
	flags.Float64Var(&opts.roiTimestamp, "roi-timestamp", 0, "Seconds into the video for the region-selection frame")
	flags.BoolVar(&opts.noAudio, "no-audio", false, "Do not extract audio or transcribe")
	flags.StringVar(&opts.timestamps, "timestamps", "", "Split the video at the ranges listed in this file")
	flags.BoolVar(&opts.noLabel, "no-label-speakers", false, "Skip the interactive speaker-labeling step")
	flags.BoolVar(&opts.refine, "refine", false, "Refine the notes with the configured LLM")
	flags.StringVar(&opts.refineModel, "refine-model", "", "Model for note refinement (implies --refine)")
	flags.IntVar(&opts.threshold, "threshold", 0, "Slide deduplication Hamming threshold (0 uses the configured default)")
	flags.IntVar(&opts.maxChars, "max-chars", 0, "Maximum characters per transcript block (0 disables)")
	flags.StringVarP(&opts.output, "output", "o", "", "Output directory (default <video dir>/<name>_output_<timestamp>)")
	flags.BoolVar(&opts.follow, "follow", false, "Stream progress events until the run finishes")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// buildRunConfig merges an optional run file with explicitly set flags and
// makes every path absolute, since the daemon may run elsewhere.
func buildRunConfig(cmd *cobra.Command, opts startOptions, args []string) (runconfig.RunConfig, error) {
	rc := runconfig.Default()
	if opts.file != "" {
		loaded, err := runconfig.Load(opts.file)
		if err != nil {
			return rc, err
		}
		rc = loaded
	}
	if len(args) == 1 {
		rc.VideoPath = args[0]
	}
	if strings.TrimSpace(rc.VideoPath) == "" {
		return rc, errors.New("a video path is required (argument or video_path in --file)")
	}

	flags := cmd.Flags()
	if flags.Changed("skip-roi") {
		rc.SkipROI = opts.skipROI
	}
	if flags.Changed("roi-timestamp") {
		ts := opts.roiTimestamp
		rc.ROITimestamp = &ts
	}
	if flags.Changed("no-audio") {
		rc.ExtractAudio = !opts.noAudio
	}
	if flags.Changed("timestamps") {
		rc.DoSplit = opts.timestamps != ""
		rc.TimestampFile = opts.timestamps
	}
	if flags.Changed("no-label-speakers") {
		rc.DoLabelSpeakers = !opts.noLabel
	}
	if flags.Changed("refine") {
		rc.DoRefineNotes = opts.refine
	}
	if flags.Changed("refine-model") {
		rc.DoRefineNotes = true
		rc.RefineNotesModel = opts.refineModel
	}
	if flags.Changed("threshold") {
		rc.DedupThreshold = opts.threshold
	}
	if flags.Changed("max-chars") {
		rc.MaxChars = opts.maxChars
	}
	if flags.Changed("output") {
		rc.OutputDir = opts.output
	}

	for _, p := range []*string{&rc.VideoPath, &rc.TimestampFile, &rc.OutputDir} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return rc, fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return rc, nil
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Cancel the active run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				run, err := client.StopRun(cmd.Context())
				if err != nil {
					return describeAPIError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s %s\n", run.RunID, run.Status)
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and run status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderDaemonStatus(status, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var since uint64
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print progress events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if follow {
					return followEvents(cmd.Context(), client, cmd.OutOrStdout(), since, "")
				}
				resp, err := client.Events(cmd.Context(), api.EventQuery{Since: since, Limit: limit})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				for _, ev := range resp.Events {
					fmt.Fprintln(cmd.OutOrStdout(), renderEvent(ev))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events until interrupted")
	cmd.Flags().Uint64Var(&since, "since", 0, "Only show events after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events to fetch (0 for the server default)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// followEvents long-polls the daemon and prints events until ctx ends or,
// when runID is set, that run reports a terminal event.
func followEvents(ctx context.Context, client *api.Client, out io.Writer, since uint64, runID string) error {
	for {
		resp, err := client.Events(ctx, api.EventQuery{Since: since, Follow: true})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, ev := range resp.Events {
			fmt.Fprintln(out, renderEvent(ev))
			if runID != "" && ev.RunID == runID && ev.Terminal {
				return nil
			}
		}
		if resp.Next > since {
			since = resp.Next
		}
		if len(resp.Events) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List archived runs or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					run, err := client.Run(cmd.Context(), args[0])
					if err != nil {
						return describeAPIError(err)
					}
					if jsonOutput {
						return writeJSON(cmd, run)
					}
					fmt.Fprintln(out, renderRunDetail(run))
					return nil
				}
				runs, err := client.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No archived runs")
					return nil
				}
				fmt.Fprintln(out, renderRunHistory(runs))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderRunHistory(runs []api.RunSummary) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			filepath.Base(run.VideoPath),
			run.Status,
			run.FailedStage,
			run.StartedAt,
			formatSeconds(run.DurationSeconds),
		})
	}
	return renderTable(
		[]string{"ID", "Video", "Status", "Failed stage", "Started", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderRunDetail(run api.RunDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:      %s\n", run.ID)
	fmt.Fprintf(&b, "Video:    %s\n", run.VideoPath)
	fmt.Fprintf(&b, "Status:   %s\n", run.Status)
	if run.OutputDir != "" {
		fmt.Fprintf(&b, "Output:   %s\n", run.OutputDir)
	}
	fmt.Fprintf(&b, "Duration: %s\n", formatSeconds(run.DurationSeconds))
	if run.Error != "" {
		fmt.Fprintf(&b, "Error:    %s\n", run.Error)
	}
	rows := make([][]string, 0, len(run.Stages))
	for _, st := range run.Stages {
		rows = append(rows, []string{st.Name, st.Status, strings.Join(st.Outputs, ", ")})
	}
	b.WriteString(renderTable([]string{"Stage", "Status", "Outputs"}, rows, nil))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

// describeAPIError appends validation problems reported by the daemon.
func describeAPIError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && len(apiErr.Problems) > 0 {
		return fmt.Errorf("%s:\n  - %s", apiErr.Message, strings.Join(apiErr.Problems, "\n  - "))
	}
	return err
}
