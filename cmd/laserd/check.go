package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/lasercard/gcode"
	"github.com/mastercactapus/lasercard/programs"
)

var checkCmd = &cobra.Command{
	Use:   "check PROGRAM...",
	Short: "Report lines of stored programs that are not valid G-code.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir := programs.NewDir(cfg.Programs)

		var bad int
		for _, name := range args {
			data, err := dir.Read(name)
			if err != nil {
				return err
			}
			if !checkProgram(cmd.OutOrStdout(), name, data) {
				bad++
			}
		}
		if bad > 0 {
			return fmt.Errorf("check: %d of %d programs invalid", bad, len(args))
		}
		return nil
	},
}

// checkProgram writes one line per problem in data and reports whether
// there were none.
func checkProgram(w io.Writer, name, data string) bool {
	blocks, err := gcode.Parse(data)
	ok := err == nil
	if err != nil {
		for _, msg := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(w, "%s: %s\n", name, msg)
		}
	}
	for _, b := range blocks {
		if err := b.Validate(); err != nil {
			ok = false
			fmt.Fprintf(w, "%s: %s: %v\n", name, b, err)
		}
	}
	fmt.Fprintf(w, "%s: %d blocks\n", name, len(blocks))
	return ok
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
