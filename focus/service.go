// Package focus implements the focus operations on top of the rpc adapter:
// reading the current focus, setting a new one and listing history.
//
// Read operations never fail. Transport and decode problems are logged and
// the operation answers with its empty default. SetFocus reports every
// failure, since dropping a write silently would lose it.
package focus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nwant/thinking-partner-focus/logger"
	"github.com/nwant/thinking-partner-focus/rpc"
	"github.com/nwant/thinking-partner-focus/session"
)

// Remote tool names and get_context scopes.
const (
	ToolGetContext      = "get_context"
	ToolSetFocus        = "set_focus"
	ToolGetFocusHistory = "get_focus_history"

	ScopeCurrent = "current"
	ScopeAll     = "all"
)

// Config is what the Service reads from configuration.
//
// *config.Config satisfies this interface implicitly.
type Config interface {
	GetDefaultTool() string
	GetHistoryLimit() int
}

// Caller issues tool calls. *rpc.Adapter satisfies it.
type Caller interface {
	Call(ctx context.Context, tool string, args map[string]any) (rpc.Payload, error)
}

// Releaser drops the live session. *session.Manager satisfies it.
type Releaser interface {
	Release(ctx context.Context) error
}

var (
	_ Caller   = (*rpc.Adapter)(nil)
	_ Releaser = (*session.Manager)(nil)
)

// historyStrategy is one way of obtaining history: a tool, its arguments
// and how to pull the history out of the answer.
type historyStrategy struct {
	Tool    string
	Args    func(tool string, limit int) map[string]any
	Extract func(rpc.Payload) ([]Focus, bool)
}

var historyStrategies = []historyStrategy{
	{
		Tool: ToolGetFocusHistory,
		Args: func(tool string, limit int) map[string]any {
			return map[string]any{"tool": tool, "limit": limit}
		},
		Extract: decodeHistory,
	},
	{
		Tool: ToolGetContext,
		Args: func(tool string, _ int) map[string]any {
			return map[string]any{"tool": tool, "scope": ScopeAll}
		},
		Extract: decodeHistory,
	},
	{
		Tool: ToolGetContext,
		Args: func(tool string, _ int) map[string]any {
			return map[string]any{"tool": tool, "scope": ScopeCurrent}
		},
		Extract: decodeCurrentAsHistory,
	},
}

// Service exposes the focus operations.
type Service struct {
	cfg      Config
	calls    Caller
	sessions Releaser
	log      *slog.Logger
}

// NewService builds a Service whose calls go through mgr.
func NewService(cfg Config, mgr *session.Manager) *Service {
	return &Service{
		cfg:      cfg,
		calls:    rpc.NewAdapter(mgr),
		sessions: mgr,
		log:      logger.WithComponent("focus"),
	}
}

// SetCaller replaces the tool caller (for testing).
func (s *Service) SetCaller(c Caller) {
	s.calls = c
}

// GetCurrentFocus returns the current focus and recent context. Any failure
// yields EmptyCurrentFocus.
func (s *Service) GetCurrentFocus(ctx context.Context) CurrentFocus {
	p, err := s.calls.Call(ctx, ToolGetContext, map[string]any{
		"tool":  s.cfg.GetDefaultTool(),
		"scope": ScopeCurrent,
	})
	if err != nil {
		s.log.Error("failed to get current focus", "error", err)
		return EmptyCurrentFocus()
	}

	current, ok := firstCurrent(p)
	if !ok {
		s.log.Warn("unrecognized get_context response", "keys", keys(p))
		return EmptyCurrentFocus()
	}
	return current
}

// SetFocus completes the active focus and starts a new one on the server.
// Remote and connect errors are returned unchanged; a response no decoder
// recognizes is a *rpc.DecodeError.
func (s *Service) SetFocus(ctx context.Context, params SetFocusParams) (*Focus, error) {
	tool := params.Tool
	if tool == "" {
		tool = s.cfg.GetDefaultTool()
	}

	p, err := s.calls.Call(ctx, ToolSetFocus, map[string]any{
		"topic":   params.Topic,
		"context": params.Context,
		"tool":    tool,
	})
	if err != nil {
		return nil, err
	}

	f, ok := firstFocus(p)
	if !ok {
		return nil, &rpc.DecodeError{Tool: ToolSetFocus, Reason: "no focus in response"}
	}
	s.log.Info("focus set", "id", f.ID, "topic", f.Topic, "tool", f.Tool)
	return f, nil
}

// GetFocusHistory tries each history strategy in order and returns the
// first non-empty result, or an empty slice.
func (s *Service) GetFocusHistory(ctx context.Context) []Focus {
	tool, limit := s.cfg.GetDefaultTool(), s.cfg.GetHistoryLimit()

	for _, strategy := range historyStrategies {
		p, err := s.calls.Call(ctx, strategy.Tool, strategy.Args(tool, limit))
		if err != nil {
			s.log.Debug("history strategy failed", "tool", strategy.Tool, "error", err)
			if ctx.Err() != nil || isConnectFailure(err) {
				break
			}
			continue
		}
		if history, ok := strategy.Extract(p); ok {
			return history
		}
	}

	s.log.Warn("no focus history available")
	return []Focus{}
}

// Disconnect releases the live session.
func (s *Service) Disconnect(ctx context.Context) error {
	return s.sessions.Release(ctx)
}

// isConnectFailure reports errors no later strategy can get past.
func isConnectFailure(err error) bool {
	var connErr *session.ConnectError
	return errors.As(err, &connErr)
}

func keys(p rpc.Payload) []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	return out
}
