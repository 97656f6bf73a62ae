package focus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nwant/thinking-partner-focus/contextstore"
	"github.com/nwant/thinking-partner-focus/logger"
	"github.com/nwant/thinking-partner-focus/mcp"
	"github.com/nwant/thinking-partner-focus/rpc"
	"github.com/nwant/thinking-partner-focus/session"
)

func TestMain(m *testing.M) {
	logger.Reset()
	logger.Init(os.DevNull)
	os.Exit(m.Run())
}

type testConfig struct {
	serverPath string
	tool       string
	limit      int
}

func (c *testConfig) GetServerName() string { return "thinking-partner-mcp" }
func (c *testConfig) GetServerPath() string { return c.serverPath }
func (c *testConfig) GetClientName() string { return "thinking-partner-raycast" }
func (c *testConfig) GetClientVersion() string { return "1.0.0" }
func (c *testConfig) GetConnectTimeout() time.Duration { return 5 * time.Second }
func (c *testConfig) GetStabilizeDelay() time.Duration { return 0 }
func (c *testConfig) GetDefaultTool() string { return c.tool }
func (c *testConfig) GetHistoryLimit() int { return c.limit }

func newTestConfig() *testConfig {
	return &testConfig{serverPath: "/unused/index.js", tool: ToolDesktop, limit: 50}
}

// newInProcess wires a Service to an in-process server with the given
// server options.
func newInProcess(t *testing.T, opts ...mcp.ServerOption) (*Service, *contextstore.Store) {
	t.Helper()
	cfg := newTestConfig()
	store := contextstore.Open(filepath.Join(t.TempDir(), "context.json"))
	mgr := session.NewManager(cfg, nil)
	mgr.UseInProcessServer(store, opts...)
	t.Cleanup(func() { mgr.Release(context.Background()) })
	return NewService(cfg, mgr), store
}

type call struct {
	Tool string
	Args map[string]any
}

// scriptedCaller answers by tool and scope.
type scriptedCaller struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]rpc.Payload
	errs      map[string]error
}

func newScriptedCaller() *scriptedCaller {
	return &scriptedCaller{responses: map[string]rpc.Payload{}, errs: map[string]error{}}
}

func callKey(tool string, args map[string]any) string {
	if scope, ok := args["scope"].(string); ok {
		return tool + ":" + scope
	}
	return tool
}

func (c *scriptedCaller) Call(_ context.Context, tool string, args map[string]any) (rpc.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{Tool: tool, Args: args})
	key := callKey(tool, args)
	if err, ok := c.errs[key]; ok {
		return nil, err
	}
	if p, ok := c.responses[key]; ok {
		return p, nil
	}
	return rpc.Payload{}, nil
}

func (c *scriptedCaller) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, cl := range c.calls {
		out[i] = callKey(cl.Tool, cl.Args)
	}
	return out
}

func newScripted(t *testing.T) (*Service, *scriptedCaller) {
	t.Helper()
	cfg := newTestConfig()
	svc := NewService(cfg, session.NewManager(cfg, nil))
	caller := newScriptedCaller()
	svc.SetCaller(caller)
	return svc, caller
}

func TestSetFocus_NestedShapeAppliesDefaults(t *testing.T) {
	svc, _ := newInProcess(t, mcp.WithResponseShape(mcp.ShapeNested))

	f, err := svc.SetFocus(context.Background(), SetFocusParams{Topic: "Write spec"})
	if err != nil {
		t.Fatalf("SetFocus: %v", err)
	}
	if f.Topic != "Write spec" {
		t.Errorf("Topic = %q", f.Topic)
	}
	if f.Status != StatusActive {
		t.Errorf("Status = %q", f.Status)
	}
	if f.Context != "" {
		t.Errorf("Context = %q, want empty", f.Context)
	}
	if f.Tool != ToolDesktop {
		t.Errorf("Tool = %q, want configured default", f.Tool)
	}
	if f.ID == "" || f.StartedAt.IsZero() {
		t.Errorf("expected id and start time, got %+v", f)
	}
}

func TestSetFocus_EveryServerShape(t *testing.T) {
	for _, shape := range []mcp.Shape{mcp.ShapeNested, mcp.ShapeFlat, mcp.ShapeFocusKey} {
		t.Run(shape.String(), func(t *testing.T) {
			svc, _ := newInProcess(t, mcp.WithResponseShape(shape))
			ctx := context.Background()

			f, err := svc.SetFocus(ctx, SetFocusParams{Topic: "Review PR", Context: "#42", Tool: ToolCode})
			if err != nil {
				t.Fatalf("SetFocus: %v", err)
			}
			if f.Topic != "Review PR" || f.Context != "#42" || f.Tool != ToolCode {
				t.Errorf("got %+v", f)
			}

			current := svc.GetCurrentFocus(ctx)
			if current.CurrentFocus == nil || current.CurrentFocus.ID != f.ID {
				t.Errorf("GetCurrentFocus = %+v, want id %s", current.CurrentFocus, f.ID)
			}
		})
	}
}

func TestSetFocus_CompletesPrevious(t *testing.T) {
	svc, store := newInProcess(t)
	ctx := context.Background()

	first, err := svc.SetFocus(ctx, SetFocusParams{Topic: "first"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.SetFocus(ctx, SetFocusParams{Topic: "second"})
	if err != nil {
		t.Fatal(err)
	}

	history := svc.GetFocusHistory(ctx)
	if len(history) != 1 || history[0].ID != first.ID {
		t.Fatalf("history = %+v", history)
	}
	if history[0].Status != StatusCompleted || history[0].CompletedAt.IsZero() {
		t.Errorf("previous focus not completed: %+v", history[0])
	}
	if history[0].CompletedAt.After(second.StartedAt) {
		t.Error("previous focus must complete before the next one starts")
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	active := 0
	if doc.CurrentFocus != nil && doc.CurrentFocus.Status == StatusActive {
		active++
	}
	for _, h := range doc.FocusHistory {
		if h.Status == StatusActive {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly one active focus, found %d", active)
	}
}

func TestSetFocus_RemoteErrorPropagates(t *testing.T) {
	svc, _ := newInProcess(t)

	_, err := svc.SetFocus(context.Background(), SetFocusParams{Topic: ""})

	var remote *rpc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestSetFocus_UnrecognizedResponse(t *testing.T) {
	svc, caller := newScripted(t)
	caller.responses[ToolSetFocus] = rpc.Payload{"success": true, "message": "ok"}

	f, err := svc.SetFocus(context.Background(), SetFocusParams{Topic: "Write spec"})

	if f != nil {
		t.Errorf("expected no focus, got %+v", f)
	}
	var decodeErr *rpc.DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Tool != ToolSetFocus {
		t.Fatalf("expected DecodeError for set_focus, got %v", err)
	}
}

func TestSetFocus_ConnectFailurePropagates(t *testing.T) {
	cfg := newTestConfig()
	cfg.serverPath = filepath.Join(t.TempDir(), "missing", "index.js")
	svc := NewService(cfg, session.NewManager(cfg, nil))

	_, err := svc.SetFocus(context.Background(), SetFocusParams{Topic: "Write spec"})

	if !errors.Is(err, session.ErrServerNotInstalled) {
		t.Fatalf("expected ErrServerNotInstalled, got %v", err)
	}
}

func TestGetCurrentFocus_NeverFails(t *testing.T) {
	t.Run("server not installed", func(t *testing.T) {
		cfg := newTestConfig()
		cfg.serverPath = filepath.Join(t.TempDir(), "missing", "index.js")
		svc := NewService(cfg, session.NewManager(cfg, nil))

		got := svc.GetCurrentFocus(context.Background())
		if got.CurrentFocus != nil || got.RecentContext == nil || len(got.RecentContext) != 0 {
			t.Errorf("got %+v, want empty default", got)
		}
	})

	t.Run("remote error", func(t *testing.T) {
		svc, caller := newScripted(t)
		caller.errs[ToolGetContext+":"+ScopeCurrent] = &rpc.RemoteError{Tool: ToolGetContext, Message: "boom"}

		got := svc.GetCurrentFocus(context.Background())
		if got.CurrentFocus != nil || len(got.RecentContext) != 0 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		svc, caller := newScripted(t)
		caller.responses[ToolGetContext+":"+ScopeCurrent] = rpc.Payload{"message": "hi"}

		got := svc.GetCurrentFocus(context.Background())
		if got.CurrentFocus != nil || got.RecentContext == nil {
			t.Errorf("got %+v", got)
		}
	})
}

func TestGetCurrentFocus_Empty(t *testing.T) {
	svc, _ := newInProcess(t)

	got := svc.GetCurrentFocus(context.Background())
	if got.CurrentFocus != nil {
		t.Errorf("expected no focus, got %+v", got.CurrentFocus)
	}
	if got.RecentContext == nil {
		t.Error("RecentContext should be an empty slice, not nil")
	}
}

func TestGetCurrentFocus_Args(t *testing.T) {
	svc, caller := newScripted(t)
	svc.GetCurrentFocus(context.Background())

	if len(caller.calls) != 1 {
		t.Fatalf("calls = %v", caller.calls)
	}
	args := caller.calls[0].Args
	if args["tool"] != ToolDesktop || args["scope"] != ScopeCurrent {
		t.Errorf("args = %v", args)
	}
}

func TestGetFocusHistory_UsesHistoryTool(t *testing.T) {
	svc, caller := newScripted(t)
	caller.responses[ToolGetFocusHistory] = rpc.Payload{"success": true, "focusHistory": []any{
		map[string]any{"id": "a", "topic": "A", "status": "completed"},
	}}

	got := svc.GetFocusHistory(context.Background())

	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("got %+v", got)
	}
	if keys := caller.keys(); len(keys) != 1 {
		t.Errorf("expected a single call, got %v", keys)
	}
	if args := caller.calls[0].Args; args["limit"] != 50 || args["tool"] != ToolDesktop {
		t.Errorf("args = %v", args)
	}
}

func TestGetFocusHistory_FallsBackToScopeAll(t *testing.T) {
	svc, store := newInProcess(t, mcp.WithoutHistoryTool())
	ctx := context.Background()

	for _, topic := range []string{"one", "two", "three"} {
		if _, err := store.SetFocus(topic, "", ToolDesktop); err != nil {
			t.Fatal(err)
		}
	}
	doc, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}

	got := svc.GetFocusHistory(ctx)

	if len(got) != len(doc.FocusHistory) || len(got) != 2 {
		t.Fatalf("got %d entries, want %d", len(got), len(doc.FocusHistory))
	}
	for i := range got {
		if got[i].ID != doc.FocusHistory[i].ID || got[i].Topic != doc.FocusHistory[i].Topic {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], doc.FocusHistory[i])
		}
	}
	for _, f := range got {
		if f.Topic == "three" {
			t.Error("the current focus must not be returned when scope=all has history")
		}
	}
}

func TestGetFocusHistory_ScopeAllSkipsCurrentFallback(t *testing.T) {
	svc, caller := newScripted(t)
	caller.errs[ToolGetFocusHistory] = &rpc.RemoteError{Tool: ToolGetFocusHistory, Message: "Unknown tool"}
	caller.responses[ToolGetContext+":"+ScopeAll] = rpc.Payload{"success": true, "context": map[string]any{
		"focusHistory": []any{map[string]any{"id": "h1"}},
	}}

	got := svc.GetFocusHistory(context.Background())

	if len(got) != 1 || got[0].ID != "h1" {
		t.Fatalf("got %+v", got)
	}
	want := []string{ToolGetFocusHistory, ToolGetContext + ":" + ScopeAll}
	if keys := caller.keys(); len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("calls = %v, want %v", keys, want)
	}
}

func TestGetFocusHistory_CurrentFocusAsLastResort(t *testing.T) {
	svc, caller := newScripted(t)
	caller.responses[ToolGetFocusHistory] = rpc.Payload{"success": true, "focusHistory": []any{}}
	caller.responses[ToolGetContext+":"+ScopeAll] = rpc.Payload{"success": true, "context": map[string]any{}}
	caller.responses[ToolGetContext+":"+ScopeCurrent] = rpc.Payload{"success": true, "context": map[string]any{
		"currentFocus": map[string]any{"id": "cur", "topic": "Now", "status": "active"},
	}}

	got := svc.GetFocusHistory(context.Background())

	if len(got) != 1 || got[0].ID != "cur" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetFocusHistory_Exhausted(t *testing.T) {
	svc, caller := newScripted(t)
	caller.errs[ToolGetFocusHistory] = &rpc.RemoteError{Tool: ToolGetFocusHistory, Message: "Unknown tool"}
	caller.errs[ToolGetContext+":"+ScopeAll] = &rpc.DecodeError{Tool: ToolGetContext, Reason: "invalid JSON"}

	got := svc.GetFocusHistory(context.Background())

	if got == nil || len(got) != 0 {
		t.Errorf("expected empty slice, got %#v", got)
	}
	if n := len(caller.keys()); n != 3 {
		t.Errorf("expected every strategy to be tried, got %d calls", n)
	}
}

func TestGetFocusHistory_StopsOnConnectFailure(t *testing.T) {
	svc, caller := newScripted(t)
	connErr := &session.ConnectError{Server: "thinking-partner-mcp", Err: session.ErrBinaryNotFound}
	caller.errs[ToolGetFocusHistory] = connErr
	caller.errs[ToolGetContext+":"+ScopeAll] = connErr
	caller.errs[ToolGetContext+":"+ScopeCurrent] = connErr

	got := svc.GetFocusHistory(context.Background())

	if len(got) != 0 {
		t.Errorf("got %+v", got)
	}
	if n := len(caller.keys()); n != 1 {
		t.Errorf("a connect failure should end the search, got %d calls", n)
	}
}

func TestGetFocusHistory_FlatServer(t *testing.T) {
	svc, store := newInProcess(t, mcp.WithResponseShape(mcp.ShapeFlat))
	for _, topic := range []string{"one", "two"} {
		if _, err := store.SetFocus(topic, "", ToolCode); err != nil {
			t.Fatal(err)
		}
	}

	got := svc.GetFocusHistory(context.Background())

	if len(got) != 1 || got[0].Topic != "one" {
		t.Errorf("got %+v", got)
	}
}

func TestDisconnect_NextCallReconnects(t *testing.T) {
	cfg := newTestConfig()
	store := contextstore.Open(filepath.Join(t.TempDir(), "context.json"))
	mgr := session.NewManager(cfg, nil)
	mgr.UseInProcessServer(store)
	svc := NewService(cfg, mgr)
	ctx := context.Background()

	svc.GetCurrentFocus(ctx)
	first := mgr.Current()
	if first == nil {
		t.Fatal("expected a live session")
	}

	svc.Disconnect(ctx)
	if mgr.State() != session.StateIdle {
		t.Fatalf("state after Disconnect = %v", mgr.State())
	}

	svc.GetCurrentFocus(ctx)
	second := mgr.Current()
	if second == nil || second.ID == first.ID {
		t.Error("expected a fresh session after Disconnect")
	}
	mgr.Release(ctx)
}
