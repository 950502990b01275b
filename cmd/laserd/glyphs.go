package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/lasercard/glyph"
)

var glyphsCmd = &cobra.Command{
	Use:   "glyphs [SIZE]",
	Short: "List font sizes, or the metrics of every glyph of a size.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		lf, err := glyph.LoadLayouts(cfg.Layouts)
		if err != nil {
			return err
		}
		cat, err := glyph.LoadCatalog(cfg.Glyphs, lf.Fonts)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			for _, size := range cat.Sizes() {
				fmt.Fprintln(cmd.OutOrStdout(), size)
			}
			return nil
		}

		metrics := cat.Measure(args[0])
		if metrics == nil {
			return fmt.Errorf("no font of size %s", args[0])
		}
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "GLYPH\tADVANCE\tBASELINE")
		for _, name := range names {
			m := metrics[name]
			fmt.Fprintf(tw, "%s\t%g\t%g\n", name, m.Advance, m.Baseline)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(glyphsCmd)
}
