package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nwant/thinking-partner-focus/config"
	"github.com/nwant/thinking-partner-focus/contextstore"
	"github.com/nwant/thinking-partner-focus/focus"
	"github.com/nwant/thinking-partner-focus/locator"
	"github.com/nwant/thinking-partner-focus/logger"
	"github.com/nwant/thinking-partner-focus/paths"
	"github.com/nwant/thinking-partner-focus/rpc"
	"github.com/nwant/thinking-partner-focus/session"
)

const (
	envPrefix       = "THINKING_PARTNER"
	shutdownTimeout = 5 * time.Second
)

// app holds everything a command needs. It is wired once per invocation in
// the root command's PersistentPreRunE.
type app struct {
	v       *viper.Viper
	cfg     *config.Config
	locator *locator.Locator
	mgr     *session.Manager
	svc     *focus.Service
	rpc     *rpc.Adapter
	now     func() time.Time
}

// run executes the CLI with args and always releases the session before
// returning.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root, a := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	defer a.shutdown()
	return root.ExecuteContext(ctx)
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: viper.New(), now: time.Now}

	rootCmd := &cobra.Command{
		Use:           "focus",
		Short:         "Track what you are working on",
		Long:          "focus keeps one session open with the thinking-partner context server and reads or sets the current focus through it.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.wire()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is config.yaml in the config directory)")
	flags.String("server-path", "", "absolute path of the context server entry point")
	flags.String("tool", "", "surface foci are recorded for: desktop or code")
	flags.Bool("embedded", false, "use an in-process context server instead of spawning one")
	flags.String("context-file", "", "context document used with --embedded")
	flags.StringP("output", "o", string(outputText), "output format: text, json or yaml")
	flags.Bool("debug", false, "write debug lines to the log file")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	_ = a.v.BindPFlags(flags)

	rootCmd.AddCommand(
		newCurrentCmd(a),
		newSetCmd(a),
		newResumeCmd(a),
		newHistoryCmd(a),
		newStatusCmd(a),
		newDoctorCmd(a),
		newConfigCmd(a),
	)
	return rootCmd, a
}

// wire loads configuration, applies flag and environment overrides and
// builds the session manager and services.
func (a *app) wire() error {
	var (
		cfg *config.Config
		err error
	)
	if path := a.v.GetString("config"); path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if p := a.v.GetString("server-path"); p != "" {
		cfg.SetServerPath(p)
	}
	if tool := a.v.GetString("tool"); tool != "" {
		if err := cfg.SetDefaultTool(tool); err != nil {
			return err
		}
	}
	if a.v.GetBool("debug") {
		cfg.SetLogLevel("debug")
	}
	if _, err := parseOutput(a.v.GetString("output")); err != nil {
		return err
	}

	if logPath, err := logger.DefaultLogPath(); err == nil {
		if err := logger.Init(logPath); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	logger.SetLevel(cfg.GetLogLevel())

	a.cfg = cfg
	a.locator = locator.New(cfg.GetInterpreters(), locator.WithProbeTimeout(cfg.GetProbeTimeout()))
	a.mgr = session.NewManager(cfg, a.locator)
	a.svc = focus.NewService(cfg, a.mgr)
	a.rpc = rpc.NewAdapter(a.mgr)

	if a.v.GetBool("embedded") {
		contextFile := a.v.GetString("context-file")
		if contextFile == "" {
			if contextFile, err = paths.ContextFile(); err != nil {
				return fmt.Errorf("resolve context file: %w", err)
			}
		}
		a.mgr.UseInProcessServer(contextstore.Open(contextFile))
	}
	return nil
}

func (a *app) embedded() bool {
	return a.v.GetBool("embedded")
}

func (a *app) output() outputFormat {
	format, _ := parseOutput(a.v.GetString("output"))
	return format
}

// shutdown releases the session, if one was ever opened.
func (a *app) shutdown() {
	if a.svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.svc.Disconnect(ctx); err != nil {
		logger.WithComponent("cli").Warn("disconnect failed", "error", err)
	}
}
