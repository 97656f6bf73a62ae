package mcp

import (
	"errors"
	"io"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nwant/thinking-partner-focus/contextstore"
)

// errKilled is what the client sees when Kill drops the channel.
var errKilled = errors.New("server killed")

// Pipe runs a Server in-process over a pair of io.Pipes. Transport is the
// client end and can be handed to a go-sdk client exactly like a
// CommandTransport.
type Pipe struct {
	Transport *sdkmcp.IOTransport

	serverIn  *io.PipeReader
	serverOut *io.PipeWriter
	done      chan error
}

// NewPipe starts a server backed by store. The server stops when the client
// closes its end or Kill is called.
func NewPipe(store *contextstore.Store, opts ...ServerOption) *Pipe {
	clientToServerR, clientToServerW := io.Pipe()
	serverToClientR, serverToClientW := io.Pipe()

	p := &Pipe{
		Transport: &sdkmcp.IOTransport{Reader: serverToClientR, Writer: clientToServerW},
		serverIn:  clientToServerR,
		serverOut: serverToClientW,
		done:      make(chan error, 1),
	}

	srv := NewServer(clientToServerR, serverToClientW, store, opts...)
	go func() {
		err := srv.Run()
		serverToClientW.Close()
		clientToServerR.Close()
		p.done <- err
	}()
	return p
}

// Kill drops the channel as if the server process had exited.
func (p *Pipe) Kill() {
	p.serverOut.CloseWithError(io.EOF)
	p.serverIn.CloseWithError(errKilled)
}

// Done receives the server's exit error once Run returns.
func (p *Pipe) Done() <-chan error {
	return p.done
}
