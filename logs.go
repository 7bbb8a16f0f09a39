package main

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/micha/capture-hotkey/monitor"
	"github.com/micha/capture-hotkey/parser"
)

func (a *app) newLogsCmd() *cobra.Command {
	var (
		tailLines  int
		follow     bool
		since      time.Duration
		grep       string
		errorsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		Long: `Show and filter the daemon log.

Examples:
  # Show the last 20 lines
  capture-hotkey logs

  # Follow the log in real time
  capture-hotkey logs -f

  # Show failures from the last hour
  capture-hotkey logs --since 1h --errors

  # Search for specific patterns
  capture-hotkey logs -n 0 --grep "timed out|failed"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			filter := parser.Filter{ErrorsOnly: errorsOnly}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			if grep != "" {
				re, err := regexp.Compile(grep)
				if err != nil {
					return fmt.Errorf("invalid grep pattern: %w", err)
				}
				filter.Pattern = re
			}

			lines, err := monitor.LastLinesMatching(cfg.Daemon.LogFile, tailLines, filter.Match)
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(a.stdout, line)
			}
			if !follow {
				return nil
			}

			m, err := monitor.NewMonitor(cfg.Daemon.LogFile)
			if err != nil {
				return err
			}
			defer m.Stop()
			return m.Follow(cmd.Context(), func(line string) {
				if filter.Match(line) {
					fmt.Fprintln(a.stdout, line)
				}
			})
		},
	}

	cmd.Flags().IntVarP(&tailLines, "tail", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().DurationVar(&since, "since", 0, "Show lines newer than this (e.g. 1h, 30m)")
	cmd.Flags().StringVar(&grep, "grep", "", "Show lines matching this regex")
	cmd.Flags().BoolVar(&errorsOnly, "errors", false, "Show only WARN and ERROR lines")
	return cmd
}
