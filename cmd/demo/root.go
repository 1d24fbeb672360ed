package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "demo",
	Short: "Headless run of the detail screen demo",
	Long: `Runs the demo application without a view layer: the detail screen is
presented, its timer and avatars run on the real clock, and it is dismissed
again, tearing down every effect it started.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().StringToString("set", nil, "config override as dotted key=value, e.g. engine.num_workers=4")
}
