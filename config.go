package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/micha/capture-hotkey/config"
	"github.com/micha/capture-hotkey/setup"
)

func (a *app) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check device access, the capture tool and output directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			report := setup.Run(cfg)
			for _, c := range report {
				a.printCheck(c)
			}

			if c := findCheck(report, "input device"); c != nil && c.Status == setup.StatusFail {
				a.printInputDevices()
			}

			if !report.OK() {
				return errSilent
			}
			return nil
		},
	}
}

func (a *app) printCheck(c setup.Check) {
	var mark string
	switch c.Status {
	case setup.StatusOK:
		mark = successStyle.Render("✔")
	case setup.StatusWarn:
		mark = warnStyle.Render("!")
	default:
		mark = errorStyle.Render("✘")
	}
	fmt.Fprintf(a.stdout, "%s %-15s %s\n", mark, c.Name, c.Detail)
	if c.Fix != "" {
		fmt.Fprintf(a.stdout, "  %s\n", mutedStyle.Render(c.Fix))
	}
}

func findCheck(r setup.Report, name string) *setup.Check {
	for i := range r {
		if r[i].Name == name {
			return &r[i]
		}
	}
	return nil
}

func (a *app) printInputDevices() {
	devices := listInputDevices(inputDevDir, inputSysDir)
	if len(devices) == 0 {
		return
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, boldStyle.Render("Available input devices:"))
	for _, d := range devices {
		fmt.Fprintf(a.stdout, "  %-20s %s\n", d.Path, d.Name)
	}
}

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate first so a broken file is reported, not printed
			if _, err := a.config(); err != nil {
				return err
			}
			v, err := a.initViper()
			if err != nil {
				return err
			}

			if used := v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(a.stdout, "# Config file: %s\n", used)
			} else {
				fmt.Fprintln(a.stdout, "# Config file: (none - using defaults)")
			}

			out, err := yaml.Marshal(settingsTree(v.AllKeys(), v.Get))
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Show the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.initViper()
			if err != nil {
				return err
			}
			if used := v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(a.stdout, "Active config: %s\n", used)
			} else {
				fmt.Fprintf(a.stdout, "Default path: %s (not created)\n", config.ConfigFile())
			}
			fmt.Fprintf(a.stdout, "\nEnvironment variables: %s_* (e.g., %s_DAEMON_LOG_FILE)\n", config.EnvPrefix, config.EnvPrefix)
			return nil
		},
	}

	cmd.AddCommand(show, path)
	return cmd
}

// settingsTree turns viper's flat dotted keys into nested maps. Durations
// are rendered as strings ("2s") so the output can be pasted into a config
// file.
func settingsTree(keys []string, get func(string) any) map[string]any {
	slices.Sort(keys)
	tree := map[string]any{}
	for _, key := range keys {
		parts := strings.Split(key, ".")
		node := tree
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}

		val := get(key)
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		node[parts[len(parts)-1]] = val
	}
	return tree
}
