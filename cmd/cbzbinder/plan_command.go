package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/local/cbzbinder/internal/imposition"
	"github.com/local/cbzbinder/internal/merge"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var src sourceFlags
	var sides bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the reading and print order without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sources, err := src.sources()
			if err != nil {
				return err
			}
			ov, err := merge.ParseOverrides(src.spread, src.single)
			if err != nil {
				return err
			}
			resolver, err := newResolver(cmd.Context(), cfg, sources)
			if err != nil {
				return err
			}

			sc, err := merge.NewRunner(resolver).Scan(cmd.Context(), merge.Options{
				Sources:     sources,
				ScanWorkers: cfg.Merge.ScanWorkers,
				HalfQuality: cfg.Merge.HalfQuality,
			})
			if err != nil {
				return err
			}
			defer sc.Close()
			res, err := sc.Plan(sc.Overrides(nil, ov))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reading order: %s\n", res.Reading)
			fmt.Fprintf(out, "Print order:   %s\n", res.Print)
			st := res.Stats
			fmt.Fprintln(out, renderTable(
				[]string{"Pages", "Singles", "Spreads", "Gaps", "Pads", "Sheets"},
				[][]string{{
					strconv.Itoa(st.Pages), strconv.Itoa(st.Singles), strconv.Itoa(st.Spreads),
					strconv.Itoa(st.Gaps), strconv.Itoa(st.Pads), strconv.Itoa(st.Sheets),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			if sides {
				fmt.Fprintln(out, renderSides(res.Print))
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&sides, "sides", false, "List every printed sheet side")
	return cmd
}

func renderSides(po *imposition.PrintOrder) string {
	var rows [][]string
	for _, side := range po.Sides() {
		face := "front"
		if side.Back {
			face = "back"
		}
		rows = append(rows, []string{
			strconv.Itoa(side.Sheet + 1),
			face,
			imposition.SlotLabel(po.Pages, side.Left, nil, "X"),
			imposition.SlotLabel(po.Pages, side.Right, nil, "X"),
		})
	}
	return renderTable([]string{"Sheet", "Side", "Left", "Right"}, rows, []columnAlignment{alignRight})
}
