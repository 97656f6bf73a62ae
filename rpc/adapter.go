// Package rpc invokes remote tools over the managed session and turns the
// first text item of each response into a Payload.
package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nwant/thinking-partner-focus/logger"
	"github.com/nwant/thinking-partner-focus/session"
)

// Sessions hands out the live session. *session.Manager satisfies it.
type Sessions interface {
	Acquire(ctx context.Context) (*session.Session, error)
}

var _ Sessions = (*session.Manager)(nil)

// Adapter issues tool calls.
type Adapter struct {
	sessions Sessions
	log      *slog.Logger
}

// NewAdapter creates an Adapter that acquires sessions from sessions.
func NewAdapter(sessions Sessions) *Adapter {
	return &Adapter{
		sessions: sessions,
		log:      logger.WithComponent("rpc"),
	}
}

// Call invokes tool with args and decodes the response.
//
// Connect failures are returned as they come from the session manager. A
// rejected call is a *RemoteError and an unreadable response a *DecodeError.
func (a *Adapter) Call(ctx context.Context, tool string, args map[string]any) (Payload, error) {
	sess, err := a.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	a.log.Debug("calling tool", "tool", tool, "sessionID", sess.ID)
	res, err := sess.Client.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, &RemoteError{Tool: tool, Err: err}
	}

	text, ok := firstText(res.Content)
	if res.IsError {
		if !ok {
			text = "no details"
		}
		return nil, &RemoteError{Tool: tool, Message: text}
	}
	if !ok {
		return nil, &DecodeError{Tool: tool, Reason: "no text content"}
	}
	return decode(tool, text)
}

// Tools lists the names of the tools the server offers.
func (a *Adapter) Tools(ctx context.Context) ([]string, error) {
	sess, err := a.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	res, err := sess.Client.ListTools(ctx, nil)
	if err != nil {
		return nil, &RemoteError{Tool: "tools/list", Err: err}
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// firstText returns the text of the first text item. Later items are
// ignored.
func firstText(content []mcp.Content) (string, bool) {
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text, true
		}
	}
	return "", false
}

func decode(tool, text string) (Payload, error) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		var probe any
		if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
			return nil, &DecodeError{Tool: tool, Reason: "invalid JSON", Err: err}
		}
		return nil, &DecodeError{Tool: tool, Reason: "payload is not an object"}
	}

	var p Payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, &DecodeError{Tool: tool, Reason: "invalid JSON", Err: err}
	}
	return p, nil
}
