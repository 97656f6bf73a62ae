// Package transport runs the context server as a child process and carries
// protocol messages over its stdio. It wraps a go-sdk transport so the
// session manager can observe faults and termination of the channel.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	osexec "os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nwant/thinking-partner-focus/logger"
)

// ErrTransportFault marks errors raised by the channel after it was
// established.
var ErrTransportFault = errors.New("transport fault")

// ProductionEnv is appended to the child environment.
const ProductionEnv = "NODE_ENV=production"

const defaultStderrLimit = 8 * 1024

// Transport implements mcp.Transport and reports channel events to
// subscribers. It is good for a single Connect.
type Transport struct {
	inner  mcp.Transport
	cmd    *osexec.Cmd
	stderr *tailBuffer
	log    *slog.Logger

	mu        sync.Mutex
	connected bool
	conn      mcp.Connection
	closed    bool
	err       error
	onError   []func(error)
	onClose   []func()
	done      chan struct{}
}

// Option configures a Transport built by New.
type Option func(*config)

type config struct {
	terminate   time.Duration
	env         []string
	stderrLimit int
}

// WithTerminateDuration sets how long Close waits for the child to exit
// after stdin is closed before signalling it.
func WithTerminateDuration(d time.Duration) Option {
	return func(c *config) { c.terminate = d }
}

// WithEnv appends extra KEY=VALUE pairs to the child environment.
func WithEnv(kv ...string) Option {
	return func(c *config) { c.env = append(c.env, kv...) }
}

// WithStderrLimit bounds how many trailing bytes of child stderr are kept.
func WithStderrLimit(n int) Option {
	return func(c *config) { c.stderrLimit = n }
}

// New builds a transport that spawns `interpreter entryPoint` with the
// caller's environment plus NODE_ENV=production. The process starts on
// Connect.
func New(interpreter, entryPoint string, opts ...Option) *Transport {
	cfg := config{stderrLimit: defaultStderrLimit}
	for _, opt := range opts {
		opt(&cfg)
	}

	cmd := osexec.Command(interpreter, entryPoint)
	cmd.Env = append(os.Environ(), ProductionEnv)
	cmd.Env = append(cmd.Env, cfg.env...)

	t := newTransport(&mcp.CommandTransport{Command: cmd, TerminateDuration: cfg.terminate})
	t.cmd = cmd
	t.stderr = newTailBuffer(cfg.stderrLimit)
	cmd.Stderr = t.stderr
	t.log = t.log.With("interpreter", interpreter, "entryPoint", entryPoint)
	return t
}

// NewWithInner wraps an arbitrary go-sdk transport, such as an IOTransport
// over pipes.
func NewWithInner(inner mcp.Transport) *Transport {
	return newTransport(inner)
}

func newTransport(inner mcp.Transport) *Transport {
	return &Transport{
		inner:  inner,
		stderr: newTailBuffer(0),
		log:    logger.WithComponent("transport"),
		done:   make(chan struct{}),
	}
}

// Command returns the child command, or nil for wrapped transports.
func (t *Transport) Command() *osexec.Cmd {
	return t.cmd
}

// Connect starts the channel and returns a connection whose faults and
// termination are reported to subscribers.
func (t *Transport) Connect(ctx context.Context) (mcp.Connection, error) {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport already connected")
	}
	t.connected = true
	t.mu.Unlock()

	conn, err := t.inner.Connect(ctx)
	if err != nil {
		t.markClosed(err)
		return nil, fmt.Errorf("failed to start server process: %w", err)
	}
	if t.cmd != nil && t.cmd.Process != nil {
		t.log.Info("server process started", "pid", t.cmd.Process.Pid)
	}
	observed := &observedConn{Connection: conn, t: t}
	t.mu.Lock()
	t.conn = observed
	t.mu.Unlock()
	return observed, nil
}

// Close tears down the channel if it was connected. Normally the client
// session closes it; this is for connects that failed midway.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.markClosed(nil)
		return nil
	}
	return conn.Close()
}

// Subscribe registers observers for this transport. Either may be nil. If
// the transport has already closed, onClose runs immediately.
func (t *Transport) Subscribe(onError func(error), onClose func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if onClose != nil {
			onClose()
		}
		return
	}
	if onError != nil {
		t.onError = append(t.onError, onError)
	}
	if onClose != nil {
		t.onClose = append(t.onClose, onClose)
	}
	t.mu.Unlock()
}

// Done is closed once the channel has terminated.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns the fault that terminated the channel, or nil for a clean
// close.
func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Stderr returns the retained tail of the child's stderr.
func (t *Transport) Stderr() string {
	return t.stderr.String()
}

func (t *Transport) reportError(err error) {
	err = fmt.Errorf("%w: %w", ErrTransportFault, err)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if t.err == nil {
		t.err = err
	}
	observers := append([]func(error){}, t.onError...)
	t.mu.Unlock()

	t.log.Warn("transport error", "error", err, "stderr", t.stderr.String())
	for _, fn := range observers {
		fn(err)
	}
}

func (t *Transport) markClosed(cause error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.err == nil && cause != nil && !isCleanClose(cause) {
		t.err = fmt.Errorf("%w: %w", ErrTransportFault, cause)
	}
	observers := t.onClose
	t.onError, t.onClose = nil, nil
	close(t.done)
	t.mu.Unlock()

	t.log.Info("transport closed")
	for _, fn := range observers {
		fn()
	}
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, mcp.ErrConnectionClosed) ||
		errors.Is(err, context.Canceled)
}

// observedConn forwards to the inner connection and reports failures.
type observedConn struct {
	mcp.Connection
	t *Transport
}

func (c *observedConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.Connection.Read(ctx)
	if err != nil {
		if isCleanClose(err) {
			c.t.markClosed(err)
		} else {
			c.t.reportError(err)
		}
	}
	return msg, err
}

func (c *observedConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	err := c.Connection.Write(ctx, msg)
	if err != nil && !isCleanClose(err) {
		c.t.reportError(err)
	}
	return err
}

func (c *observedConn) Close() error {
	err := c.Connection.Close()
	c.t.markClosed(nil)
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit <= 0 {
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

var _ mcp.Transport = (*Transport)(nil)
