package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "healthreport",
		Short:        "Extract structured health data from scanned reports",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "log format, json or text (overrides LOG_FORMAT)")
	rootCmd.PersistentFlags().String("addr", "localhost:8080", "daemon address for remote commands")

	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(jobsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
