package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/singleflight"

	"github.com/nwant/thinking-partner-focus/config"
	"github.com/nwant/thinking-partner-focus/locator"
	"github.com/nwant/thinking-partner-focus/logger"
	"github.com/nwant/thinking-partner-focus/transport"
)

// Compile-time interface satisfaction checks.
var (
	_ Config  = (*config.Config)(nil)
	_ Locator = (*locator.Locator)(nil)
)

// connectKey is the only singleflight key: there is one server.
const connectKey = "connect"

// State is the manager's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// Config defines the configuration the Manager reads.
//
// *config.Config satisfies this interface implicitly.
type Config interface {
	GetServerName() string
	GetServerPath() string
	GetClientName() string
	GetClientVersion() string
	GetConnectTimeout() time.Duration
	GetStabilizeDelay() time.Duration
}

// Locator finds the interpreter that runs the server.
type Locator interface {
	Locate(ctx context.Context) (string, error)
}

// TransportFactory builds the transport for one connect attempt.
// This allows tests to substitute in-memory pipes.
type TransportFactory func(interpreter, entryPoint string) *transport.Transport

// StatFunc matches os.Stat.
type StatFunc func(name string) (os.FileInfo, error)

func defaultTransportFactory(interpreter, entryPoint string) *transport.Transport {
	return transport.New(interpreter, entryPoint)
}

// Session is a transport and the client session bound to it.
type Session struct {
	ID          uint64
	Transport   *transport.Transport
	Client      *mcp.ClientSession
	Interpreter string
	ConnectedAt time.Time
}

// Manager owns at most one Session and at most one connect in flight.
type Manager struct {
	cfg          Config
	locator      Locator
	newTransport TransportFactory
	stat         StatFunc
	group        singleflight.Group
	log          *slog.Logger

	mu         sync.Mutex
	current    *Session
	connecting bool
	generation uint64 // bumped by Release
	lastID     uint64
}

// NewManager creates an idle manager.
func NewManager(cfg Config, loc Locator) *Manager {
	return &Manager{
		cfg:          cfg,
		locator:      loc,
		newTransport: defaultTransportFactory,
		stat:         os.Stat,
		log:          logger.WithComponent("session").With("server", cfg.GetServerName()),
	}
}

// SetTransportFactory sets a custom transport factory (for testing).
func (m *Manager) SetTransportFactory(factory TransportFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newTransport = factory
}

// SetLocator replaces the interpreter locator.
func (m *Manager) SetLocator(loc Locator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locator = loc
}

// SetStat replaces the entry point existence check (for testing).
func (m *Manager) SetStat(stat StatFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stat = stat
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.current != nil:
		return StateConnected
	case m.connecting:
		return StateConnecting
	default:
		return StateIdle
	}
}

// Current returns the cached session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Acquire returns the cached session, joins the connect in flight, or starts
// one. If ctx ends first the caller stops waiting; the connect continues for
// the other waiters.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if s := m.Current(); s != nil {
		return s, nil
	}

	ch := m.group.DoChan(connectKey, func() (any, error) {
		return m.connectShared()
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connectShared runs inside the single flight.
func (m *Manager) connectShared() (*Session, error) {
	m.mu.Lock()
	if s := m.current; s != nil {
		// A flight that finished just before this one started cached it.
		m.mu.Unlock()
		return s, nil
	}
	m.connecting = true
	gen := m.generation
	m.mu.Unlock()

	sess, err := m.connect()

	m.mu.Lock()
	if gen == m.generation {
		m.connecting = false
	}
	if err == nil && gen != m.generation {
		err = ErrReleased
	}
	if err == nil {
		select {
		case <-sess.Transport.Done():
			err = fmt.Errorf("%w: server exited during startup: %w", ErrHandshakeFailed, transportErr(sess.Transport))
		default:
			m.current = sess
		}
	}
	m.mu.Unlock()

	if err != nil {
		if sess != nil {
			m.closeSession(sess)
		}
		m.log.Error("connect failed", "error", err)
		return nil, &ConnectError{Server: m.cfg.GetServerName(), Err: err}
	}

	logger.WithSession(strconv.FormatUint(sess.ID, 10)).Info("session connected",
		"interpreter", sess.Interpreter, "server", m.cfg.GetServerName())
	return sess, nil
}

func transportErr(t *transport.Transport) error {
	if err := t.Err(); err != nil {
		return err
	}
	if tail := t.Stderr(); tail != "" {
		return fmt.Errorf("stderr: %s", tail)
	}
	return fmt.Errorf("no output")
}

// connect performs the connect sequence. It returns a session only when the
// handshake succeeded; the caller decides whether to cache it.
func (m *Manager) connect() (*Session, error) {
	m.mu.Lock()
	loc, newTransport, stat := m.locator, m.newTransport, m.stat
	m.mu.Unlock()

	ctx := context.Background()
	if d := m.cfg.GetConnectTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	serverPath := m.cfg.GetServerPath()
	if _, err := stat(serverPath); err != nil {
		return nil, fmt.Errorf("%w: %s not found at %s, please ensure it is installed", ErrServerNotInstalled, m.cfg.GetServerName(), serverPath)
	}

	interpreter, err := loc.Locate(ctx)
	if err != nil {
		return nil, err
	}

	t := newTransport(interpreter, serverPath)
	client := mcp.NewClient(&mcp.Implementation{
		Name:    m.cfg.GetClientName(),
		Version: m.cfg.GetClientVersion(),
	}, nil)

	m.log.Debug("starting handshake", "interpreter", interpreter, "entryPoint", serverPath)
	cs, err := client.Connect(ctx, t, nil)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	m.mu.Lock()
	m.lastID++
	sess := &Session{
		ID:          m.lastID,
		Transport:   t,
		Client:      cs,
		Interpreter: interpreter,
		ConnectedAt: time.Now(),
	}
	m.mu.Unlock()

	id := sess.ID
	t.Subscribe(
		func(err error) { m.log.Warn("transport error", "sessionID", id, "error", err) },
		func() { m.handleClose(id) },
	)

	if d := m.cfg.GetStabilizeDelay(); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return sess, fmt.Errorf("%w: %w", ErrHandshakeFailed, ctx.Err())
		}
	}
	return sess, nil
}

// handleClose drops the cached session if it is still the one that closed.
func (m *Manager) handleClose(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != id {
		m.log.Debug("ignoring close of stale session", "sessionID", id)
		return
	}
	m.current = nil
	m.log.Info("session closed", "sessionID", id)
}

// Release closes the cached session and returns the manager to Idle. Close
// failures are logged and returned, but the manager is Idle either way.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	sess := m.current
	m.current = nil
	m.connecting = false
	m.generation++
	m.mu.Unlock()

	// Later callers must start a fresh connect, not join a discarded one.
	m.group.Forget(connectKey)

	if sess == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- sess.Client.Close() }()

	select {
	case err := <-done:
		if err != nil {
			m.log.Warn("error closing client", "sessionID", sess.ID, "error", err)
			return fmt.Errorf("error closing client: %w", err)
		}
		m.log.Info("session released", "sessionID", sess.ID)
		return nil
	case <-ctx.Done():
		m.log.Warn("gave up waiting for client to close", "sessionID", sess.ID)
		return ctx.Err()
	}
}

// closeSession closes a session that was never cached.
func (m *Manager) closeSession(sess *Session) {
	if err := sess.Client.Close(); err != nil {
		m.log.Debug("error closing discarded session", "sessionID", sess.ID, "error", err)
	}
}
