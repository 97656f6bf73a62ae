package session

import (
	"errors"
	"fmt"

	"github.com/nwant/thinking-partner-focus/locator"
	"github.com/nwant/thinking-partner-focus/transport"
)

var (
	// ErrServerNotInstalled means the server entry point is missing on disk.
	ErrServerNotInstalled = errors.New("server not installed")

	// ErrHandshakeFailed means the process started but the protocol
	// handshake did not complete.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrReleased is reported to waiters of a connect that finished after
	// Release was called.
	ErrReleased = errors.New("connection released before it completed")

	// ErrBinaryNotFound is locator.ErrBinaryNotFound.
	ErrBinaryNotFound = locator.ErrBinaryNotFound

	// ErrTransportFault is transport.ErrTransportFault.
	ErrTransportFault = transport.ErrTransportFault
)

// ConnectError wraps any failure of the connect sequence.
type ConnectError struct {
	Server string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s server: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
