// Command focus-server serves the focus tools over stdio, backed by a JSON
// context document. Any MCP host can spawn it; the focus CLI does so when
// pointed at it with --server-path.
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nwant/thinking-partner-focus/contextstore"
	"github.com/nwant/thinking-partner-focus/logger"
	"github.com/nwant/thinking-partner-focus/mcp"
	"github.com/nwant/thinking-partner-focus/paths"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	var (
		contextFile string
		shape       string
		noHistory   bool
		debug       bool
	)

	cmd := &cobra.Command{
		Use:          "focus-server",
		Short:        "Serve get_context, set_focus and get_focus_history over stdio",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := mcp.ParseShape(shape)
			if err != nil {
				return err
			}
			opts := []mcp.ServerOption{mcp.WithResponseShape(s)}
			if noHistory {
				opts = append(opts, mcp.WithoutHistoryTool())
			}

			logPath, err := logger.ServerLogPath()
			if err != nil {
				return err
			}
			if err := logger.Init(logPath); err != nil {
				return err
			}
			logger.SetDebug(debug)

			if contextFile == "" {
				if contextFile, err = paths.ContextFile(); err != nil {
					return err
				}
			}

			logger.WithComponent("server").Info("serving on stdio", "contextFile", contextFile, "shape", s.String())
			return mcp.NewServer(in, out, contextstore.Open(contextFile), opts...).Run()
		},
	}

	cmd.Flags().StringVar(&contextFile, "context-file", "", "context document (default is the server checkout's data/context.json)")
	cmd.Flags().StringVar(&shape, "shape", mcp.ShapeNested.String(), "response layout: nested, flat or focus-key")
	cmd.Flags().BoolVar(&noHistory, "no-history-tool", false, "do not offer get_focus_history")
	cmd.Flags().BoolVar(&debug, "debug", false, "write debug lines to the log file")
	return cmd
}
