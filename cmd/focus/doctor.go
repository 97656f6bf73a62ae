package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nwant/thinking-partner-focus/locator"
)

var errDoctorFailed = errors.New("doctor found problems")

func newDoctorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the interpreter, the server install and the connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := newStyles()
			out := cmd.OutOrStdout()
			healthy := true
			mark := func(ok bool) string {
				if ok {
					return s.ok.Render("✓")
				}
				healthy = false
				return s.bad.Render("✗")
			}

			writeConfigLocation(out, a.cfg.FilePath())
			fmt.Fprintln(out)

			if !a.embedded() {
				results := a.locator.Check(cmd.Context())
				fmt.Fprint(out, locator.FormatCheckResults(results))
				found := false
				for _, r := range results {
					found = found || r.Found
				}
				if !found {
					mark(false)
				}

				serverPath := a.cfg.GetServerPath()
				_, statErr := os.Stat(serverPath)
				fmt.Fprintf(out, "\nServer entry point:\n  %s %s", mark(statErr == nil), serverPath)
				if statErr != nil {
					fmt.Fprint(out, " [not installed]")
				}
				fmt.Fprintln(out)
			}

			fmt.Fprintf(out, "\nServer %s:\n", a.cfg.GetServerName())
			tools, err := a.rpc.Tools(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "  %s %v\n", mark(false), err)
			} else {
				sess := a.mgr.Current()
				via := "in-process"
				if sess != nil && !a.embedded() {
					via = sess.Interpreter
				}
				fmt.Fprintf(out, "  %s connected via %s\n", mark(true), via)
				fmt.Fprintf(out, "  tools: %s\n", strings.Join(tools, ", "))
			}

			if !healthy {
				return errDoctorFailed
			}
			return nil
		},
	}
}
