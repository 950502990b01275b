package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "laserd",
	Short: "Laser card engraver controller.",
	Long: `laserd drives a Grbl laser engraver with a card handling arm and ` +
		`exposes it to remote clients over a websocket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		envFile, _ := cmd.Flags().GetString("env")
		return loadDotEnv(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "laserd.yaml", "Path to the configuration file.")
	rootCmd.PersistentFlags().String("env", ".env", "Path to a .env file (ignored if missing).")
}

// loadDotEnv loads environment variables from path. A missing file is
// ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return LoadConfig(path)
}
