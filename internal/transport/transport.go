// Package transport exposes the five wire protocols the core supports —
// stdio, HTTP+SSE (Streamable HTTP), WebSocket, TCP, and Unix domain
// socket — behind one capability set (spec §4.2).
package transport

import (
	"context"
	"errors"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// ErrClosed is returned by Send/Recv once Close has been called.
var ErrClosed = errors.New("transport: closed")

// Transport is the contract every wire protocol satisfies once a channel
// is established: enqueue outbound envelopes, and yield a lazy, finite,
// non-restartable sequence of inbound ones (spec §4.2 "Contract").
type Transport interface {
	// Send enqueues one envelope for delivery; it may apply backpressure
	// but must not itself invoke application handler code.
	Send(ctx context.Context, msg jsonrpc.Message) error

	// Recv blocks for the next inbound envelope. It returns io.EOF when
	// the peer has cleanly ended the stream, or another error on a
	// transport failure. Not safe to call concurrently with itself (the
	// runtime's single reader task owns this).
	Recv(ctx context.Context) (jsonrpc.Message, error)

	// Close tears down the channel; subsequent Send/Recv return ErrClosed.
	Close() error

	// Metadata reports transport-identifying key/value pairs for logs and
	// metrics (remote address, session id, and similar).
	Metadata() map[string]string
}

// Listener accepts new connections, each yielding its own Transport — the
// session-per-connection model of spec §3 Lifecycle for every transport
// except stdio (one session for process life).
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Close() error
}
