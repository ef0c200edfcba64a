package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// lineTransport frames envelopes with a trailing LF over any
// io.ReadWriteCloser (spec §4.1) — stdio, TCP, and Unix domain sockets all
// share this shape; only the underlying stream and its metadata differ.
//
// A background goroutine owns the read side (mirroring the teacher's
// copyMessages loop in proxy_service.go) and feeds decoded envelopes into a
// buffered channel; Recv only ever receives from that channel, so a slow
// consumer cannot stall the decoder mid-frame.
type lineTransport struct {
	rwc      io.ReadWriteCloser
	maxFrame int
	meta     map[string]string

	writeMu sync.Mutex

	msgCh  chan jsonrpc.Message
	errCh  chan error
	closed chan struct{}
	once   sync.Once
}

func newLineTransport(rwc io.ReadWriteCloser, maxFrame int, meta map[string]string) *lineTransport {
	t := &lineTransport{
		rwc:      rwc,
		maxFrame: maxFrame,
		meta:     meta,
		msgCh:    make(chan jsonrpc.Message, 64),
		errCh:    make(chan error, 1),
		closed:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *lineTransport) readLoop() {
	dec := &jsonrpc.LineDecoder{MaxSize: t.maxFrame}
	reader := bufio.NewReaderSize(t.rwc, 64*1024)
	buf := make([]byte, 64*1024)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			msgs, feedErr, fatal := dec.Feed(buf[:n])
			for _, m := range msgs {
				select {
				case t.msgCh <- m:
				case <-t.closed:
					return
				}
			}
			if fatal {
				t.errCh <- feedErr
				close(t.msgCh)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				t.errCh <- err
			}
			close(t.msgCh)
			return
		}
	}
}

func (t *lineTransport) Send(ctx context.Context, msg jsonrpc.Message) error {
	raw, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}
	_, err = t.rwc.Write(raw)
	return err
}

func (t *lineTransport) Recv(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case m, ok := <-t.msgCh:
		if !ok {
			select {
			case err := <-t.errCh:
				return nil, err
			default:
				return nil, io.EOF
			}
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, ErrClosed
	}
}

func (t *lineTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.rwc.Close()
	})
	return err
}

func (t *lineTransport) Metadata() map[string]string { return t.meta }
