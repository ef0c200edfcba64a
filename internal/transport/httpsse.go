package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// MCPSessionIDHeader and MCPProtocolVersionHeader are the Streamable HTTP
// session-correlation headers (spec §4.2.3), grounded on the teacher's HTTP
// adapter (internal/adapter/inbound/http/handler.go).
const (
	MCPSessionIDHeader       = "Mcp-Session-Id"
	MCPProtocolVersionHeader = "MCP-Protocol-Version"
)

// httpListener runs one HTTP server whose POST/GET/DELETE/OPTIONS routing
// implements Streamable HTTP (spec §4.1, §4.2.3). Every session not yet
// seen is created on its first POST (which must carry no session id, or an
// unrecognized one) and handed to Accept as a new Transport.
type httpListener struct {
	srv            *http.Server
	accept         chan *httpSessionTransport
	addr           string
	allowedOrigins []string

	mu       sync.Mutex
	sessions map[string]*httpSessionTransport

	closed chan struct{}
	once   sync.Once
}

// NewHTTPListener starts the Streamable HTTP endpoint at addr/path.
// allowedOrigins is the Origin allow-list required by spec §6's
// DNS-rebinding protection; it may only be empty when addr is loopback.
func NewHTTPListener(addr, path string, allowedOrigins []string) (Listener, error) {
	if err := requireOriginPolicy(addr, allowedOrigins); err != nil {
		return nil, err
	}
	l := &httpListener{
		accept:         make(chan *httpSessionTransport),
		sessions:       make(map[string]*httpSessionTransport),
		closed:         make(chan struct{}),
		allowedOrigins: allowedOrigins,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.route)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	l.addr = ln.Addr().String()
	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(ln)
	return l, nil
}

// Addr reports the bound "host:port" once NewHTTPListener has returned,
// useful when addr was passed as "host:0" to let the OS pick a port.
func (l *httpListener) Addr() string { return l.addr }

func (l *httpListener) route(w http.ResponseWriter, r *http.Request) {
	if !originAllowed(r.Header.Get("Origin"), l.allowedOrigins) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodPost:
		l.handlePost(w, r)
	case http.MethodGet:
		l.handleGet(w, r)
	case http.MethodDelete:
		l.handleDelete(w, r)
	case http.MethodOptions:
		l.handleOptions(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleOptions answers a CORS preflight. The Origin is reflected back
// rather than wildcarded: route already validated it against the allow-list
// (spec §6), and echoing "*" would defeat the point of allow-listing.
func (l *httpListener) handleOptions(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+MCPSessionIDHeader+", "+MCPProtocolVersionHeader)
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// handlePost accepts one JSON-RPC envelope (or batch) per request. A
// request-shaped envelope blocks for its matching response and returns it
// synchronously with 200; a notification-only body returns 202 Accepted
// immediately (spec §4.1 "notification-vs-request" distinction).
func (l *httpListener) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(jsonrpc.DefaultMaxFrameSizeNetwork)))
	if err != nil {
		writeJSONRPCError(w, jsonrpc.NullID, jsonrpc.CodeParseError, "failed to read body")
		return
	}
	msg, decErr := jsonrpc.Decode(body)
	if decErr != nil {
		writeJSONRPCError(w, jsonrpc.NullID, jsonrpc.CodeParseError, decErr.Error())
		return
	}

	sessionID := r.Header.Get(MCPSessionIDHeader)
	sess, isNew := l.sessionFor(sessionID)
	if isNew {
		select {
		case l.accept <- sess:
		case <-r.Context().Done():
			return
		case <-l.closed:
			http.Error(w, "listener closed", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set(MCPProtocolVersionHeader, jsonrpcProtocolVersion)
	w.Header().Set(MCPSessionIDHeader, sess.id)

	ids := requestIDsIn(msg)
	if len(ids) == 0 {
		// Notification(s) only: feed them and return immediately.
		sess.deliverInbound(msg)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	waiters := sess.registerWaiters(ids)
	sess.deliverInbound(msg)

	resp, err := sess.awaitReplies(r.Context(), waiters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func (l *httpListener) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(MCPSessionIDHeader)
	l.mu.Lock()
	sess, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCPProtocolVersionHeader, jsonrpcProtocolVersion)
	w.Header().Set(MCPSessionIDHeader, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sess.subscribeSSE()
	defer sess.unsubscribeSSE(ch)

	for {
		select {
		case raw, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", raw)
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-l.closed:
			return
		}
	}
}

func (l *httpListener) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(MCPSessionIDHeader)
	l.mu.Lock()
	sess, ok := l.sessions[sessionID]
	if ok {
		delete(l.sessions, sessionID)
	}
	l.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sess.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (l *httpListener) sessionFor(id string) (*httpSessionTransport, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id != "" {
		if sess, ok := l.sessions[id]; ok {
			return sess, false
		}
	}
	sess := newHTTPSessionTransport(uuid.NewString())
	l.sessions[sess.id] = sess
	return sess, true
}

func (l *httpListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case sess := <-l.accept:
		return sess, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *httpListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}

func writeJSONRPCError(w http.ResponseWriter, id jsonrpc.ID, code int64, message string) {
	resp := jsonrpc.NewErrorResponse(id, jsonrpc.NewError(code, message))
	raw, _ := jsonrpc.Encode(resp)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	w.Write(raw)
}

const jsonrpcProtocolVersion = "2025-06-18"

// requestIDsIn reports the ids of every Request found in msg (a single
// message or a Batch), used to decide whether a POST body needs a
// synchronous reply.
func requestIDsIn(msg jsonrpc.Message) []jsonrpc.ID {
	switch m := msg.(type) {
	case *jsonrpc.Request:
		return []jsonrpc.ID{m.ID}
	case jsonrpc.Batch:
		var ids []jsonrpc.ID
		for _, item := range m {
			if req, ok := item.(*jsonrpc.Request); ok {
				ids = append(ids, req.ID)
			}
		}
		return ids
	default:
		return nil
	}
}

// httpSessionTransport is the Transport for one Mcp-Session-Id. Inbound
// envelopes delivered by POST are queued on inbox for the runtime's reader
// loop; outbound messages either complete a POST that is synchronously
// waiting for that exact response id, or are broadcast to every open SSE
// subscriber when no POST is waiting (server-initiated requests and
// notifications, and responses whose POST has stopped waiting).
type httpSessionTransport struct {
	id    string
	inbox chan jsonrpc.Message

	mu      sync.Mutex
	waiters map[string]chan jsonrpc.Message
	sseSubs map[chan []byte]struct{}

	closed chan struct{}
	once   sync.Once
}

func newHTTPSessionTransport(id string) *httpSessionTransport {
	return &httpSessionTransport{
		id:      id,
		inbox:   make(chan jsonrpc.Message, 64),
		waiters: make(map[string]chan jsonrpc.Message),
		sseSubs: make(map[chan []byte]struct{}),
		closed:  make(chan struct{}),
	}
}

func (s *httpSessionTransport) deliverInbound(msg jsonrpc.Message) {
	select {
	case s.inbox <- msg:
	case <-s.closed:
	}
}

func (s *httpSessionTransport) registerWaiters(ids []jsonrpc.ID) map[string]chan jsonrpc.Message {
	out := make(map[string]chan jsonrpc.Message, len(ids))
	s.mu.Lock()
	for _, id := range ids {
		ch := make(chan jsonrpc.Message, 1)
		s.waiters[idKey(id)] = ch
		out[idKey(id)] = ch
	}
	s.mu.Unlock()
	return out
}

// awaitReplies blocks until every registered waiter has a response (or ctx
// ends), then assembles the matching wire bytes: one envelope if only one
// id was requested, a batch array otherwise (spec §4.3.5).
func (s *httpSessionTransport) awaitReplies(ctx context.Context, waiters map[string]chan jsonrpc.Message) ([]byte, error) {
	results := make([]jsonrpc.Message, 0, len(waiters))
	for key, ch := range waiters {
		select {
		case msg := <-ch:
			results = append(results, msg)
		case <-ctx.Done():
			s.mu.Lock()
			delete(s.waiters, key)
			s.mu.Unlock()
			return nil, ctx.Err()
		case <-s.closed:
			return nil, ErrClosed
		}
	}
	if len(results) == 1 {
		return jsonrpc.Encode(results[0])
	}
	return jsonrpc.Encode(jsonrpc.Batch(results))
}

func (s *httpSessionTransport) subscribeSSE() chan []byte {
	ch := make(chan []byte, 16)
	s.mu.Lock()
	s.sseSubs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *httpSessionTransport) unsubscribeSSE(ch chan []byte) {
	s.mu.Lock()
	delete(s.sseSubs, ch)
	s.mu.Unlock()
}

func (s *httpSessionTransport) Send(ctx context.Context, msg jsonrpc.Message) error {
	if resp, ok := msg.(*jsonrpc.Response); ok {
		key := idKey(resp.ID)
		s.mu.Lock()
		waiter, found := s.waiters[key]
		if found {
			delete(s.waiters, key)
		}
		s.mu.Unlock()
		if found {
			select {
			case waiter <- resp:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	raw, err := jsonrpc.Encode(msg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.sseSubs {
		select {
		case ch <- raw:
		default: // slow subscriber: drop rather than block the session
		}
	}
	return nil
}

func (s *httpSessionTransport) Recv(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *httpSessionTransport) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		for ch := range s.sseSubs {
			close(ch)
		}
		s.mu.Unlock()
	})
	return nil
}

func (s *httpSessionTransport) Metadata() map[string]string {
	return map[string]string{"transport": "http+sse", "session_id": s.id}
}

func idKey(id jsonrpc.ID) string {
	raw, err := json.Marshal(id)
	if err != nil {
		return ""
	}
	return string(raw)
}
