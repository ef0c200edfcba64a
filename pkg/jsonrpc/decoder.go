package jsonrpc

import (
	"bytes"
)

// DefaultMaxFrameSize is used by stdio and Unix transports (spec §6).
const DefaultMaxFrameSize = 1 << 20 // 1 MiB

// DefaultMaxFrameSizeNetwork is used by HTTP, SSE, WebSocket, and TCP
// transports (spec §6).
const DefaultMaxFrameSizeNetwork = 16 << 20 // 16 MiB

// LineDecoder is the stateful buffered decoder for LF-delimited framing
// (stdio, TCP, Unix — spec §4.1). It accepts arbitrary byte slices via Feed
// and yields zero or more decoded Messages per call. It never blocks and
// never allocates per byte: bytes accumulate in an internal buffer until a
// frame boundary (LF) is found.
//
// Once a frame exceeds MaxSize or contains an embedded carriage return, the
// decoder latches into a permanent error state (ErrOversizeFrame is not
// always fatal at the session level per spec §4.1, but the same byte stream
// cannot be resynchronized after a boundary is lost, so this decoder does
// not attempt to). A frame that is not a valid envelope is not fatal: it is
// reported as a parse-failure message and decoding continues.
type LineDecoder struct {
	// MaxSize bounds a single frame's length in bytes, delimiter excluded.
	// Zero selects DefaultMaxFrameSize.
	MaxSize int

	buf   []byte
	err   error
	fatal bool
}

// Feed appends data to the internal buffer and returns every complete
// envelope it now contains. A non-nil error with fatal == true means the
// decoder cannot make further progress (an embedded carriage return inside
// a frame, or a frame longer than MaxSize); the caller
// should treat this as the transport losing frame synchronization.
func (d *LineDecoder) Feed(data []byte) (messages []Message, err error, fatal bool) {
	if d.fatal {
		return nil, d.err, true
	}
	max := d.MaxSize
	if max == 0 {
		max = DefaultMaxFrameSize
	}

	d.buf = append(d.buf, data...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx == -1 {
			if len(d.buf) > max {
				d.err = ErrOversizeFrame
				d.fatal = true
				return messages, d.err, true
			}
			return messages, nil, false
		}

		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		// Accept a trailing CR (CRLF), but reject any other embedded CR —
		// that indicates a literal carriage return inside the serialized
		// envelope, forbidden by spec §4.1.
		line = bytes.TrimSuffix(line, []byte("\r"))
		if bytes.IndexByte(line, '\r') != -1 {
			d.err = NewError(CodeParseError, "embedded carriage return in frame")
			d.fatal = true
			return messages, d.err, true
		}

		if len(line) > max {
			d.err = ErrOversizeFrame
			d.fatal = true
			return messages, d.err, true
		}

		if len(bytes.TrimSpace(line)) == 0 {
			continue // blank keep-alive lines are tolerated, not an envelope
		}

		msg, decErr := Decode(line)
		if decErr != nil {
			// A structural parse error is recoverable at the session level
			// (spec §4.1): report it as a message-shaped error the caller
			// can turn into a Response with a null id, and keep decoding.
			messages = append(messages, &parseFailure{err: decErr})
			continue
		}
		messages = append(messages, msg)
	}
}

// parseFailure carries a Decode error through the same channel as successful
// messages so callers can emit a ParseError Response without losing stream
// position. It is never produced by Decode itself, only by LineDecoder,
// SSEDecoder and NewParseFailure.
type parseFailure struct{ err error }

func (*parseFailure) isMessage() {}

// NewParseFailure wraps a Decode error as a Message so a transport that
// decodes whole frames itself (WebSocket, HTTP) rather than feeding a
// streaming decoder can still report a malformed frame the same way
// LineDecoder and SSEDecoder do.
func NewParseFailure(err error) Message {
	return &parseFailure{err: err}
}

// AsParseFailure reports whether msg represents a decode failure recovered
// by a streaming decoder, returning the underlying error.
func AsParseFailure(msg Message) (error, bool) {
	pf, ok := msg.(*parseFailure)
	if !ok {
		return nil, false
	}
	return pf.err, true
}

// SSEDecoder parses Server-Sent Events framing (spec §4.1, §6): "data:"
// lines carry one envelope, a blank line terminates the event, and an
// "id:" line carries an event id, which this decoder ignores. The HTTP
// transport writes no "id:" lines on its SSE stream and does not handle
// Last-Event-ID, so there is no event-id resumption.
type SSEDecoder struct {
	MaxSize int

	buf     []byte
	dataBuf bytes.Buffer
	sawData bool
}

// Feed behaves like LineDecoder.Feed but parses the SSE event-stream format
// instead of bare LF-delimited JSON.
func (d *SSEDecoder) Feed(data []byte) (messages []Message, err error) {
	max := d.MaxSize
	if max == 0 {
		max = DefaultMaxFrameSizeNetwork
	}
	d.buf = append(d.buf, data...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx == -1 {
			if len(d.buf) > max {
				return messages, ErrOversizeFrame
			}
			return messages, nil
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		line = bytes.TrimSuffix(line, []byte("\r"))

		if len(line) == 0 {
			if d.sawData {
				raw := append([]byte(nil), d.dataBuf.Bytes()...)
				d.dataBuf.Reset()
				d.sawData = false
				msg, decErr := Decode(raw)
				if decErr != nil {
					messages = append(messages, &parseFailure{err: decErr})
					continue
				}
				messages = append(messages, msg)
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("data:")):
			payload := bytes.TrimPrefix(line, []byte("data:"))
			payload = bytes.TrimPrefix(payload, []byte(" "))
			if d.dataBuf.Len() > 0 {
				d.dataBuf.WriteByte('\n')
			}
			d.dataBuf.Write(payload)
			d.sawData = true
			if d.dataBuf.Len() > max {
				return messages, ErrOversizeFrame
			}
		case bytes.HasPrefix(line, []byte("id:")), bytes.HasPrefix(line, []byte("event:")), bytes.HasPrefix(line, []byte(":")):
			// ignored: event id / event type / comment lines
		default:
			// unrecognized field, ignore per SSE spec
		}
	}
}
