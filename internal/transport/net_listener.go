package transport

import (
	"context"
	"net"
	"os"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// netListener wraps a net.Listener for TCP and Unix domain sockets, both of
// which use the same LF-delimited framing as stdio (spec §4.1) and the same
// session-per-connection lifecycle (spec §4.2.5). Accept blocks on the
// underlying listener; cancelling ctx while Accept is in flight unblocks it
// by closing the listener from a side goroutine, since net.Listener.Accept
// itself takes no context.
type netListener struct {
	ln      net.Listener
	network string
}

// NewTCPListener listens for TCP connections at addr (e.g. "127.0.0.1:0").
func NewTCPListener(addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln, network: "tcp"}, nil
}

// NewUnixListener listens on a Unix domain socket at path. Any pre-existing
// socket file at path is removed first — a stale socket from a prior,
// uncleanly terminated run must not block a fresh bind.
func NewUnixListener(path string) (Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &netListener{ln: ln, network: "unix"}, nil
}

func (l *netListener) Accept(ctx context.Context) (Transport, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-done:
		}
	}()

	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	meta := map[string]string{
		"transport":   l.network,
		"remote_addr": conn.RemoteAddr().String(),
	}
	maxFrame := jsonrpc.DefaultMaxFrameSizeNetwork
	if l.network == "unix" {
		maxFrame = jsonrpc.DefaultMaxFrameSize
	}
	return newLineTransport(conn, maxFrame, meta), nil
}

func (l *netListener) Close() error { return l.ln.Close() }
