package session

import (
	"context"
	"os"

	"github.com/nwant/thinking-partner-focus/contextstore"
	"github.com/nwant/thinking-partner-focus/mcp"
	"github.com/nwant/thinking-partner-focus/transport"
)

// StaticLocator always yields the same interpreter.
type StaticLocator string

// Locate implements Locator.
func (s StaticLocator) Locate(context.Context) (string, error) {
	return string(s), nil
}

// InProcessFactory serves every connect from a fresh in-process server
// backed by store instead of spawning a child process.
func InProcessFactory(store *contextstore.Store, opts ...mcp.ServerOption) TransportFactory {
	return func(_, _ string) *transport.Transport {
		return transport.NewWithInner(mcp.NewPipe(store, opts...).Transport)
	}
}

// UseInProcessServer rewires m to talk to an in-process server. There is no
// entry point to check and no interpreter to locate.
func (m *Manager) UseInProcessServer(store *contextstore.Store, opts ...mcp.ServerOption) {
	m.SetStat(func(string) (os.FileInfo, error) { return nil, nil })
	m.SetLocator(StaticLocator("in-process"))
	m.SetTransportFactory(InProcessFactory(store, opts...))
}
