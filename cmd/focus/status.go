package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nwant/thinking-partner-focus/focus"
)

// statusView is the combined current focus and history.
type statusView struct {
	Current focus.CurrentFocus `json:"current" yaml:"current"`
	History []focus.Focus      `json:"history" yaml:"history"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current focus and recent history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := a.loadStatus(cmd.Context())
			if err != nil {
				return err
			}
			if format := a.output(); format != outputText {
				return writeStructured(cmd.OutOrStdout(), format, view)
			}

			s := newStyles()
			now := a.now()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n",
				s.renderCurrent(view.Current, now),
				s.section.Render(s.renderHistory(view.History, now)))
			return err
		},
	}
}

// loadStatus fetches the current focus and history concurrently. Both share
// one session; whichever call arrives second joins the pending connect.
func (a *app) loadStatus(ctx context.Context) (statusView, error) {
	var (
		view    statusView
		history []focus.Focus
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		view.Current = a.svc.GetCurrentFocus(ctx)
		return nil
	})
	g.Go(func() error {
		history = a.svc.GetFocusHistory(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return statusView{}, err
	}

	view.History = visibleHistory(history, view.Current.CurrentFocus, a.cfg.GetHistoryLimit())
	return view, nil
}
