// Package mcp implements a small Model Context Protocol server that exposes
// the focus document to clients over stdio.
//
// # Overview
//
// The server speaks newline-delimited JSON-RPC 2.0 on its standard streams
// and handles initialize, ping, tools/list and tools/call. Notifications are
// accepted and ignored. All state lives in a contextstore.Store.
//
// # Tools
//
//   - get_context {tool, scope}: scope "current" returns the active focus and
//     recent decisions; scope "all" adds the focus history.
//   - set_focus {topic, context, tool}: completes the active focus and starts
//     a new one.
//   - get_focus_history {tool, limit}: completed foci, most recent first.
//     Hidden by WithoutHistoryTool.
//
// # Response shapes
//
// Deployed servers disagree on payload layout. WithResponseShape picks one:
//
//	nested:    {"success": true, "context": {"currentFocus": {...}, ...}}
//	flat:      {"currentFocus": {...}, "recentContext": [...], "history": [...]}
//	focus-key: set_focus answers {"success": true, "focus": {...}}
//
// Clients are expected to decode all of them.
//
// # Logging
//
// Standard output carries the protocol, so the server only logs through the
// logger package, which writes to a file.
package mcp
