package transport

import (
	"io"
	"os"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// stdioRWC adapts the process's stdin/stdout pair to io.ReadWriteCloser.
// Closing it closes neither stream — both belong to the process and are
// left for the OS to reclaim on exit, matching the teacher's stdio
// adapter (internal/adapter/inbound/stdio/transport.go), which never closes
// either stream itself.
type stdioRWC struct {
	in  io.Reader
	out io.Writer
}

func (s stdioRWC) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s stdioRWC) Write(p []byte) (int, error) { return s.out.Write(p) }
func (s stdioRWC) Close() error                { return nil }

// NewStdio wraps os.Stdin/os.Stdout as the single process-lifetime
// Transport (spec §4.2.1 — one session for process life, no Listener).
func NewStdio() Transport {
	return newLineTransport(stdioRWC{in: os.Stdin, out: os.Stdout}, jsonrpc.DefaultMaxFrameSize, map[string]string{
		"transport": "stdio",
	})
}
