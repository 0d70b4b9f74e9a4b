package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var scanDay string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a single ingest and print the report",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanDay, "day", "", "day to scan (YYYY-MM-DD, defaults to today)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	day := time.Now()
	if scanDay != "" {
		parsed, err := time.Parse(time.DateOnly, scanDay)
		if err != nil {
			return fmt.Errorf("invalid --day %q: %w", scanDay, err)
		}
		day = parsed
	}

	application, err := openApp()
	if err != nil {
		return err
	}
	defer application.Close()

	report, runErr := application.RunOnce(cmd.Context(), day)
	if err := printJSON(report); err != nil {
		return err
	}
	return runErr
}
