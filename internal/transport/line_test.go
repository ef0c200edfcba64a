package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// newLinePipe wraps both ends of a net.Pipe in lineTransports, letting
// tests drive both ends of a "stdio-shaped" channel.
func newLinePipe(t *testing.T) (a, b Transport) {
	t.Helper()
	c1, c2 := net.Pipe()
	a = newLineTransport(c1, jsonrpc.DefaultMaxFrameSize, nil)
	b = newLineTransport(c2, jsonrpc.DefaultMaxFrameSize, nil)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestLineTransportRoundTrip(t *testing.T) {
	a, b := newLinePipe(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := jsonrpc.NewRequest(jsonrpc.NewNumberID(1), "ping", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if err := a.Send(ctx, req); err != nil {
		t.Fatalf("send: %v", err)
	}

	got, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	gotReq, ok := got.(*jsonrpc.Request)
	if !ok || gotReq.Method != "ping" {
		t.Fatalf("expected ping request, got %#v", got)
	}
}

func TestLineTransportRecvReturnsEOFOnPeerClose(t *testing.T) {
	a, b := newLinePipe(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a.Close()

	_, err := b.Recv(ctx)
	if err != io.EOF {
		t.Fatalf("expected io.EOF after peer close, got %v", err)
	}
}

func TestLineTransportSendAfterCloseFails(t *testing.T) {
	a, _ := newLinePipe(t)
	a.Close()

	req, _ := jsonrpc.NewRequest(jsonrpc.NewNumberID(1), "ping", nil)
	if err := a.Send(context.Background(), req); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
