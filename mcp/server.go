package mcp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/nwant/thinking-partner-focus/contextstore"
	"github.com/nwant/thinking-partner-focus/logger"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "thinking-partner-mcp"
	ServerVersion   = "1.0.0"
)

// Tool names served.
const (
	ToolGetContext      = "get_context"
	ToolSetFocus        = "set_focus"
	ToolGetFocusHistory = "get_focus_history"
)

// Scopes accepted by get_context.
const (
	ScopeCurrent = "current"
	ScopeAll     = "all"
)

const defaultHistoryLimit = 50

// knownProtocolVersions are echoed back when a client asks for them.
var knownProtocolVersions = []string{"2024-11-05", "2025-03-26", "2025-06-18"}

var validTools = []string{"desktop", "code"}

// Shape selects how tool payloads are laid out. Servers in the wild answer
// with different layouts; each Shape reproduces one of them.
type Shape int

const (
	// ShapeNested wraps results as {"success": true, "context": {...}}.
	ShapeNested Shape = iota
	// ShapeFlat puts fields at the top level with no success flag.
	ShapeFlat
	// ShapeFocusKey answers set_focus with {"success": true, "focus": {...}}
	// and otherwise behaves like ShapeNested.
	ShapeFocusKey
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeFlat:
		return "flat"
	case ShapeFocusKey:
		return "focus-key"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape maps a flag value onto a Shape.
func ParseShape(raw string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "nested":
		return ShapeNested, nil
	case "flat":
		return ShapeFlat, nil
	case "focus-key", "focus":
		return ShapeFocusKey, nil
	default:
		return ShapeNested, fmt.Errorf("unknown response shape %q", raw)
	}
}

// Server implements an MCP server exposing the focus document over
// newline-delimited JSON-RPC.
type Server struct {
	reader      *bufio.Reader
	writer      io.Writer
	store       *contextstore.Store
	shape       Shape
	historyTool bool
	mu          sync.Mutex
	log         *slog.Logger
}

// ServerOption is a functional option for configuring Server
type ServerOption func(*Server)

// WithResponseShape selects the payload layout.
func WithResponseShape(shape Shape) ServerOption {
	return func(s *Server) { s.shape = shape }
}

// WithoutHistoryTool hides get_focus_history, as older servers did.
func WithoutHistoryTool() ServerOption {
	return func(s *Server) { s.historyTool = false }
}

// NewServer creates a new MCP server reading requests from r and writing
// responses to w.
func NewServer(r io.Reader, w io.Writer, store *contextstore.Store, opts ...ServerOption) *Server {
	s := &Server{
		reader:      bufio.NewReader(r),
		writer:      w,
		store:       store,
		historyTool: true,
		log:         logger.WithComponent("mcp"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("shape", s.shape.String(), "historyTool", s.historyTool)
	return s
}

// Run starts the MCP server loop. It returns nil when the input closes.
func (s *Server) Run() error {
	s.log.Info("server starting", "store", s.store.Path())

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			s.log.Error("read error", "error", err)
			return err
		}

		if msg := strings.TrimSpace(line); msg != "" {
			s.handleLine(msg)
		}

		if err != nil {
			s.log.Info("EOF received, shutting down")
			return nil
		}
	}
}

func (s *Server) handleLine(line string) {
	s.log.Debug("received message", "line", line)

	var req JSONRPCRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.log.Error("JSON parse error", "error", err)
		s.sendError(nil, CodeParseError, "Parse error", nil)
		return
	}

	s.handleRequest(&req)
}

func (s *Server) handleRequest(req *JSONRPCRequest) {
	if req.IsNotification() {
		// notifications/initialized, notifications/cancelled, ...
		s.log.Debug("notification received", "method", req.Method)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "ping":
		s.sendResult(req.ID, struct{}{})
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolsCall(req)
	default:
		s.log.Warn("unknown method", "method", req.Method)
		s.sendError(req.ID, CodeMethodNotFound, "Method not found", nil)
	}
}

func (s *Server) handleInitialize(req *JSONRPCRequest) {
	version := ProtocolVersion
	var params InitializeParams
	if err := json.Unmarshal(req.Params, &params); err == nil && slices.Contains(knownProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}
	s.log.Info("client connected", "client", params.ClientInfo.Name, "clientVersion", params.ClientInfo.Version, "protocol", version)

	result := InitializeResult{
		ProtocolVersion: version,
		Capabilities: Capability{
			Tools: &ToolCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
		Instructions: "Tracks the current focus and the history of completed foci.",
	}

	s.sendResult(req.ID, result)
}

func (s *Server) tools() []ToolDefinition {
	toolProp := Property{Type: "string", Description: "Client surface making the call", Enum: validTools}

	tools := []ToolDefinition{
		{
			Name:        ToolGetContext,
			Description: "Return the current focus, or with scope \"all\" the focus history as well",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"tool":  toolProp,
					"scope": {Type: "string", Description: "How much context to return", Enum: []string{ScopeCurrent, ScopeAll}},
				},
			},
		},
		{
			Name:        ToolSetFocus,
			Description: "Complete the active focus and start a new one",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"topic":   {Type: "string", Description: "Short label for the new focus"},
					"context": {Type: "string", Description: "Optional supporting notes"},
					"tool":    toolProp,
				},
				Required: []string{"topic"},
			},
		},
	}

	if s.historyTool {
		tools = append(tools, ToolDefinition{
			Name:        ToolGetFocusHistory,
			Description: "Return completed foci, most recent first",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"tool":  toolProp,
					"limit": {Type: "number", Description: "Maximum number of entries"},
				},
			},
		})
	}
	return tools
}

func (s *Server) handleToolsList(req *JSONRPCRequest) {
	s.sendResult(req.ID, ToolsListResult{Tools: s.tools()})
}

func (s *Server) handleToolsCall(req *JSONRPCRequest) {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.log.Error("failed to parse tool call params", "error", err)
		s.sendError(req.ID, CodeInvalidParams, "Invalid params", nil)
		return
	}

	switch {
	case params.Name == ToolGetContext:
		s.handleGetContext(req, params)
	case params.Name == ToolSetFocus:
		s.handleSetFocus(req, params)
	case params.Name == ToolGetFocusHistory && s.historyTool:
		s.handleGetFocusHistory(req, params)
	default:
		s.log.Warn("unknown tool", "tool", params.Name)
		s.sendError(req.ID, CodeInvalidParams, "Unknown tool", nil)
	}
}

func (s *Server) handleGetContext(req *JSONRPCRequest, params ToolCallParams) {
	scope := stringArg(params.Arguments, "scope", ScopeCurrent)
	s.log.Debug("get_context called", "scope", scope)

	if scope != ScopeCurrent && scope != ScopeAll {
		s.sendToolResult(req.ID, true, fmt.Sprintf("unsupported scope %q", scope))
		return
	}

	doc, err := s.store.Load()
	if err != nil {
		s.log.Error("failed to load context", "error", err)
		s.sendToolResult(req.ID, true, err.Error())
		return
	}

	recent := doc.RecentDecisions
	if recent == nil {
		recent = []any{}
	}

	var payload map[string]any
	if s.shape == ShapeFlat {
		payload = map[string]any{"currentFocus": doc.CurrentFocus, "recentContext": recent}
		if scope == ScopeAll {
			payload["history"] = doc.FocusHistory
		}
	} else {
		inner := map[string]any{"currentFocus": doc.CurrentFocus, "recentDecisions": recent}
		if scope == ScopeAll {
			inner["focusHistory"] = doc.FocusHistory
		}
		payload = map[string]any{"success": true, "context": inner}
	}
	s.sendJSONResult(req.ID, payload)
}

func (s *Server) handleSetFocus(req *JSONRPCRequest, params ToolCallParams) {
	topic := strings.TrimSpace(stringArg(params.Arguments, "topic", ""))
	if topic == "" {
		s.sendToolResult(req.ID, true, "topic is required")
		return
	}
	tool := stringArg(params.Arguments, "tool", validTools[0])
	if !slices.Contains(validTools, tool) {
		s.sendToolResult(req.ID, true, fmt.Sprintf("unknown tool surface %q", tool))
		return
	}
	notes := stringArg(params.Arguments, "context", "")

	focus, err := s.store.SetFocus(topic, notes, tool)
	if err != nil {
		s.log.Error("failed to set focus", "error", err)
		s.sendToolResult(req.ID, true, err.Error())
		return
	}

	var payload map[string]any
	switch s.shape {
	case ShapeFlat:
		payload = map[string]any{"currentFocus": focus}
	case ShapeFocusKey:
		payload = map[string]any{"success": true, "focus": focus}
	default:
		payload = map[string]any{"success": true, "context": map[string]any{"currentFocus": focus}}
	}
	s.sendJSONResult(req.ID, payload)
}

func (s *Server) handleGetFocusHistory(req *JSONRPCRequest, params ToolCallParams) {
	limit := defaultHistoryLimit
	if v, ok := params.Arguments["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	history, err := s.store.History(limit)
	if err != nil {
		s.log.Error("failed to load history", "error", err)
		s.sendToolResult(req.ID, true, err.Error())
		return
	}

	if s.shape == ShapeFlat {
		s.sendJSONResult(req.ID, map[string]any{"history": history})
		return
	}
	s.sendJSONResult(req.ID, map[string]any{"success": true, "focusHistory": history})
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// sendJSONResult encodes payload as the single text item of a tool result.
func (s *Server) sendJSONResult(id json.RawMessage, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("failed to marshal tool payload", "error", err)
		s.sendToolResult(id, true, "internal error: failed to marshal result")
		return
	}
	s.sendToolResult(id, false, string(data))
}

// sendToolResult sends a tool call result with text content.
func (s *Server) sendToolResult(id json.RawMessage, isError bool, text string) {
	toolResult := ToolCallResult{
		Content: []ContentItem{
			{
				Type: "text",
				Text: text,
			},
		},
		IsError: isError,
	}

	s.sendResult(id, toolResult)
}

func (s *Server) sendResult(id json.RawMessage, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}

	s.send(resp)
}

func (s *Server) sendError(id json.RawMessage, code int, message string, data any) {
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}

	s.send(resp)
}

func (s *Server) send(resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("failed to marshal response", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = fmt.Fprintf(s.writer, "%s\n", data)
	if err != nil {
		s.log.Error("failed to write response", "error", err)
	} else {
		s.log.Debug("sent response", "data", string(data))
	}
}
