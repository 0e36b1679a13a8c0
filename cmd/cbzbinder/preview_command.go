package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/local/cbzbinder/internal/imagerender"
)

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var page int
	var dpi int
	var quality int
	var gray bool
	var output string

	cmd := &cobra.Command{
		Use:   "preview <booklet.pdf>",
		Short: "Rasterise one booklet sheet side to JPEG for proofing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			mode := imagerender.ColorRGB
			if gray {
				mode = imagerender.ColorGray
			}
			pv, err := imagerender.RenderPageToJPEG(args[0], page, dpi, quality, mode)
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("%s.p%03d.jpg", strings.TrimSuffix(args[0], ".pdf"), page)
			}
			if err := os.WriteFile(output, pv.JPEG, 0o644); err != nil {
				return fmt.Errorf("write preview: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: page %d of %d, %dx%d\n", output, page, pv.Pages, pv.Width, pv.Height)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "Booklet page (sheet side) to render, 1-based")
	cmd.Flags().IntVar(&dpi, "dpi", 72, "Preview resolution")
	cmd.Flags().IntVar(&quality, "quality", 85, "JPEG quality")
	cmd.Flags().BoolVar(&gray, "gray", false, "Render in grayscale")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Preview path (default <booklet>.pNNN.jpg)")
	return cmd
}
