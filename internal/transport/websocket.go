package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
	wsWriteBuffer  = 64
)

// wsListener upgrades an incoming HTTP server into a WebSocket Listener:
// each accepted connection is handed off through a channel fed by the
// upgrade handler, mirroring handleWebSocket's register hand-off.
type wsListener struct {
	srv      *http.Server
	connCh   chan *websocket.Conn
	errCh    chan error
	closed   chan struct{}
	once     sync.Once
	addr     string
	upgrader websocket.Upgrader
}

// Addr reports the bound "host:port" once NewWebSocketListener has
// returned, useful when addr was passed as "host:0" to let the OS pick a
// port.
func (l *wsListener) Addr() string { return l.addr }

// NewWebSocketListener starts an HTTP server at addr whose single route
// upgrades every request to a WebSocket connection (spec §4.2.4).
// allowedOrigins is the Origin allow-list required by spec §6's
// DNS-rebinding protection; it may only be empty when addr is loopback.
func NewWebSocketListener(addr, path string, allowedOrigins []string) (Listener, error) {
	if err := requireOriginPolicy(addr, allowedOrigins); err != nil {
		return nil, err
	}
	l := &wsListener{
		connCh: make(chan *websocket.Conn),
		errCh:  make(chan error, 1),
		closed: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := l.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case l.connCh <- conn:
		case <-l.closed:
			conn.Close()
		}
	})
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l.addr = ln.Addr().String()
	l.srv = &http.Server{Handler: mux}
	go func() {
		if err := l.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			l.errCh <- err
		}
	}()
	return l, nil
}

func (l *wsListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case conn := <-l.connCh:
		meta := map[string]string{"transport": "websocket", "remote_addr": conn.RemoteAddr().String()}
		return newWSTransport(conn, meta), nil
	case err := <-l.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *wsListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

// wsTransport adapts one *websocket.Conn into a Transport. The read and
// write sides run as independent pumps (readPump/writePump, grounded on the
// unraid agent's WSClient), with a ticker-driven ping keeping the
// connection alive between application messages.
type wsTransport struct {
	conn *websocket.Conn
	meta map[string]string

	msgCh  chan jsonrpc.Message
	errCh  chan error
	sendCh chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWSTransport(conn *websocket.Conn, meta map[string]string) *wsTransport {
	t := &wsTransport{
		conn:   conn,
		meta:   meta,
		msgCh:  make(chan jsonrpc.Message, 64),
		errCh:  make(chan error, 1),
		sendCh: make(chan []byte, wsWriteBuffer),
		closed: make(chan struct{}),
	}
	go t.readPump()
	go t.writePump()
	return t
}

func (t *wsTransport) readPump() {
	defer close(t.msgCh)
	t.conn.SetReadLimit(jsonrpc.DefaultMaxFrameSizeNetwork)
	t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				if !isCleanWSClose(err) {
					t.errCh <- err
				} else {
					t.errCh <- io.EOF
				}
			}
			return
		}
		msg, decErr := jsonrpc.Decode(raw)
		if decErr != nil {
			msg = jsonrpc.NewParseFailure(decErr)
		}
		select {
		case t.msgCh <- msg:
		case <-t.closed:
			return
		}
	}
}

func (t *wsTransport) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-t.sendCh:
			if !ok {
				t.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := t.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.closed:
			return
		}
	}
}

func isCleanWSClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

func (t *wsTransport) Send(ctx context.Context, msg jsonrpc.Message) error {
	raw, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	select {
	case t.sendCh <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return ErrClosed
	}
}

func (t *wsTransport) Recv(ctx context.Context) (jsonrpc.Message, error) {
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

func (t *wsTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) Metadata() map[string]string { return t.meta }
