package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/lasercard/remote"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a running laserd.",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		c := remote.NewClient(url)
		if err := c.Connect(cmd.Context()); err != nil {
			return err
		}
		defer c.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "connected:", c.IsConnected())
		fmt.Fprintln(w, "actuator: ", c.ActuatorLinked())
		fmt.Fprintln(w, "running:  ", c.Running())
		fmt.Fprintf(w, "progress:   %d%%\n", c.Progress())
		fmt.Fprintln(w, "orders:   ", c.CountTodo(), "open,", c.CountDone(), "done")

		if n, _ := cmd.Flags().GetInt("history"); n > 0 {
			for _, r := range c.History(n) {
				fmt.Fprintf(w, "%s %-13s %-9s %s %v\n", r.ID, r.Kind, r.Outcome, r.Start.Format("2006-01-02 15:04:05"), r.End.Sub(r.Start))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("url", "ws://localhost:9091/ws", "Websocket URL of the laserd to query.")
	statusCmd.Flags().Int("history", 0, "Also list this many finished tasks.")
}
