// Package session owns the single live connection to the context server.
//
// # Overview
//
// A Manager holds at most one Session (a transport and the MCP client
// session bound to it, which live and die together) and at most one
// connection attempt in flight. Callers never hold a Session beyond a single
// call; they ask the Manager for it each time.
//
// # States
//
//	Idle ──Acquire──▶ Connecting ──handshake ok──▶ Connected
//	  ▲                   │                           │
//	  └──── failure ──────┘◀── close / Release ───────┘
//
// # Acquire
//
//   - Connected: the cached session is returned without any process work.
//   - Connecting: the caller joins the attempt in flight. Every waiter sees
//     the same session or the same error.
//   - Idle: a new attempt starts.
//
// The attempt runs detached from the caller that started it, so one caller
// giving up does not cancel it for the others.
//
// # Connect sequence
//
//  1. Stat the server entry point (ErrServerNotInstalled, before any spawn).
//  2. Locate an interpreter (locator.ErrBinaryNotFound).
//  3. Build the transport and the MCP client, run the handshake
//     (ErrHandshakeFailed), bounded by the connect timeout.
//  4. Subscribe to transport close and error events.
//  5. Wait the stabilization delay, then cache the session.
//
// Failures are wrapped in *ConnectError naming the server. Nothing is cached
// unless every step succeeds, and nothing is retried.
//
// # Close events
//
// A close event clears the cache only when the closing session is still the
// cached one. Events from a session that has already been replaced are
// ignored. Transport errors are logged; the close that usually follows them
// does the cleanup.
//
// # Release
//
// Release closes the cached client on a best-effort basis and always returns
// the manager to Idle. An attempt still in flight when Release is called is
// discarded when it finishes and reports ErrReleased.
package session
