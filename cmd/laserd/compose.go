package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/lasercard/coord"
	"github.com/mastercactapus/lasercard/glyph"
)

var composeCmd = &cobra.Command{
	Use:   "compose [VARIANT]",
	Short: "Compose a card program and print it, or list the layout variants.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		comp, err := loadCompositor(cfg)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return listVariants(cmd.OutOrStdout(), comp.Layouts())
		}

		f := cmd.Flags()
		var card glyph.CardFields
		card.Title, _ = f.GetString("title")
		card.Name, _ = f.GetString("name")
		card.Division, _ = f.GetString("division")
		card.JobTitle, _ = f.GetString("job-title")
		card.Phone, _ = f.GetString("phone")
		card.Fax, _ = f.GetString("fax")
		card.Mail, _ = f.GetString("mail")
		x, _ := f.GetFloat64("x")
		y, _ := f.GetFloat64("y")

		prog, err := comp.ComposeCard(args[0], coord.XY(x, y), card)
		if err != nil {
			return err
		}

		out, _ := f.GetString("out")
		if out == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), prog)
			return err
		}
		return os.WriteFile(out, []byte(prog), 0644)
	},
}

func listVariants(w io.Writer, l *glyph.Layouts) error {
	for _, name := range l.Names() {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(composeCmd)
	f := composeCmd.Flags()
	f.String("title", "", "Title line.")
	f.String("name", "", "Name line.")
	f.String("division", "", "Division line.")
	f.String("job-title", "", "Job title line.")
	f.String("phone", "", "Phone line.")
	f.String("fax", "", "Fax line.")
	f.String("mail", "", "Mail line.")
	f.Float64("x", 4, "Card anchor X.")
	f.Float64("y", 86, "Card anchor Y.")
	f.StringP("out", "o", "", "Write the program to a file instead of stdout.")
}
