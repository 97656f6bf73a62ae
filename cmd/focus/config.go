package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nwant/thinking-partner-focus/paths"
)

var errConfigExists = errors.New("config file already exists (use --force to overwrite)")

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the config file",
	}
	cmd.AddCommand(newConfigPathCmd(a), newConfigInitCmd(a))
	return cmd
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where config.yaml is read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.FilePath())
			return nil
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to config.yaml",
		Long:  "init writes the configuration currently in effect, including flag and environment overrides, to the config file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.FilePath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s", errConfigExists, path)
			}
			if err := a.cfg.Save(); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// writeConfigLocation prints the config file and the directory layout in use.
func writeConfigLocation(out io.Writer, path string) {
	layout := "XDG"
	if paths.IsLegacyLayout() {
		layout = "~/.thinking-partner"
	}
	fmt.Fprintf(out, "Config file (%s layout):\n  %s", layout, path)
	if _, err := os.Stat(path); err != nil {
		fmt.Fprint(out, " [not written, defaults in use]")
	}
	fmt.Fprintln(out)
}
