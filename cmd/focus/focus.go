package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nwant/thinking-partner-focus/focus"
)

func newCurrentCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the current focus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			current := a.svc.GetCurrentFocus(cmd.Context())
			if format := a.output(); format != outputText {
				return writeStructured(cmd.OutOrStdout(), format, current)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), newStyles().renderCurrent(current, a.now()))
			return err
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "set <topic>",
		Short: "Complete the current focus and start a new one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.TrimSpace(strings.Join(args, " "))
			if topic == "" {
				return errors.New("topic must not be empty")
			}
			return a.setFocus(cmd, focus.SetFocusParams{Topic: topic, Context: notes})
		},
	}

	cmd.Flags().StringVarP(&notes, "context", "c", "", "additional context or details")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Start a new focus with the topic and context of an earlier one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history := a.svc.GetFocusHistory(cmd.Context())
			for _, f := range history {
				if f.ID == args[0] {
					return a.setFocus(cmd, focus.SetFocusParams{Topic: f.Topic, Context: f.Context})
				}
			}
			return fmt.Errorf("no focus with id %q in history", args[0])
		},
	}
}

func (a *app) setFocus(cmd *cobra.Command, params focus.SetFocusParams) error {
	f, err := a.svc.SetFocus(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("failed to set focus: %w", err)
	}
	if format := a.output(); format != outputText {
		return writeStructured(cmd.OutOrStdout(), format, f)
	}

	s := newStyles()
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", s.ok.Render("Focus set."), "Now focusing on: "+s.topic.Render(f.Topic))
	return err
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List earlier foci, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit > 0 {
				a.cfg.SetHistoryLimit(limit)
			}
			history := visibleHistory(a.svc.GetFocusHistory(cmd.Context()), nil, a.cfg.GetHistoryLimit())
			if format := a.output(); format != outputText {
				return writeStructured(cmd.OutOrStdout(), format, history)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), newStyles().renderHistory(history, a.now()))
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of entries (default from config)")
	return cmd
}
