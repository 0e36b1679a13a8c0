package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/local/cbzbinder/internal/merge"
	"github.com/local/cbzbinder/internal/metrics"
	"github.com/local/cbzbinder/internal/pdfout"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var src sourceFlags
	var output string
	var formats []string
	var paper string
	var dpi int
	var noGuide bool
	var metricsFile string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge numbered archives into one CBZ and an imposed booklet PDF",
		Long: "Merge collects [N]-numbered comic archives in number order, splits two-page spreads,\n" +
			"lays the pages out so every spread faces itself in the printed booklet and writes\n" +
			"the merged archive plus <output>.pdf.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mc := cfg.Merge
			if cmd.Flags().Changed("output") {
				mc.Output = output
			}
			if cmd.Flags().Changed("format") {
				mc.Formats = formats
			}
			if cmd.Flags().Changed("paper") {
				mc.PaperSize = paper
			}
			if cmd.Flags().Changed("dpi") {
				mc.DPI = dpi
			}
			if noGuide {
				mc.GuideLine = false
			}

			sources, err := src.sources()
			if err != nil {
				return err
			}
			logSources(sources)
			ov, err := merge.ParseOverrides(src.spread, src.single)
			if err != nil {
				return err
			}
			resolver, err := newResolver(cmd.Context(), cfg, sources)
			if err != nil {
				return err
			}

			opts := merge.Options{
				Sources:     sources,
				Output:      mc.Output,
				Formats:     mc.Formats,
				Ranges:      ov,
				HalfQuality: mc.HalfQuality,
				ScanWorkers: mc.ScanWorkers,
				Render: pdfout.Options{
					PaperSize: mc.PaperSize,
					DPI:       mc.DPI,
					Quality:   mc.SheetQuality,
					GuideLine: mc.GuideLine,
				},
			}
			if bar := newBarProgress(os.Stderr, ctx.colorForced()); bar != nil {
				opts.Progress = bar
			}

			metrics.Init()
			res, err := merge.NewRunner(resolver).Run(cmd.Context(), opts)
			if metricsFile != "" {
				if werr := metrics.WriteTextfile(metricsFile); werr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "write metrics: %v\n", werr)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := res.Stats
			fmt.Fprintln(out, renderTable(
				[]string{"Archives", "Pages", "Spreads", "Gaps", "Pads", "Sheets", "Time"},
				[][]string{{
					strconv.Itoa(len(sources)),
					strconv.Itoa(st.Pages),
					strconv.Itoa(st.Spreads),
					strconv.Itoa(st.Gaps),
					strconv.Itoa(st.Pads),
					strconv.Itoa(st.Sheets),
					res.Duration.Round(time.Millisecond).String(),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			if res.CBZPath != "" {
				fmt.Fprintf(out, "Archive: %s\n", res.CBZPath)
			}
			if res.PDFPath != "" {
				fmt.Fprintf(out, "Booklet: %s\n", res.PDFPath)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "combined_output.cbz", "Merged archive path; the booklet goes to <output>.pdf")
	cmd.Flags().StringSliceVar(&formats, "format", []string{merge.FormatCBZ, merge.FormatPDF}, "Outputs to write (cbz, pdf)")
	cmd.Flags().StringVar(&paper, "paper", "A4", "Booklet paper size (A3, A4, A5, LETTER, LEGAL)")
	cmd.Flags().IntVar(&dpi, "dpi", 150, "Booklet render resolution")
	cmd.Flags().BoolVar(&noGuide, "no-guide", false, "Do not draw the fold guide line on spread sheets")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	return cmd
}
