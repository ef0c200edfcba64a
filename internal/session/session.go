package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/turbomcp/turbomcp/internal/ctxkey"
	"github.com/turbomcp/turbomcp/internal/telemetry"
	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// DefaultProtocolVersion is the version the router reports in every
// initialize response. The version the client requests is not compared
// against it, and a different requested version does not end the session.
const DefaultProtocolVersion = "2025-06-18"

// DefaultRequestTimeout bounds an outbound request (spec §5).
const DefaultRequestTimeout = 60 * time.Second

// DefaultDrainTimeout bounds how long Draining waits for in-flight handlers
// before aborting (spec §4.3.1, §4.5).
const DefaultDrainTimeout = 5 * time.Second

// Sender is the narrow interface a Session needs from its transport: enqueue
// one outbound envelope. Implementations (the runtime's writer task) are
// expected to serialize writes and apply backpressure themselves so that
// Send returning does not itself imply the bytes reached the wire — only
// that they are queued for the single writer (spec §4.2, §5).
type Sender interface {
	Send(ctx context.Context, msg jsonrpc.Message) error
}

// Dispatcher is implemented by the router: it owns the registry and knows
// how to answer a Request or react to a Notification. Dispatch must never
// block on further I/O the session can't account for, and must always
// return a Response (a panic inside Dispatch is recovered by the session and
// answered with InternalError — spec §4.4.5, §7).
type Dispatcher interface {
	Dispatch(ctx context.Context, peer *Session, req *jsonrpc.Request) *jsonrpc.Response
	HandleNotification(ctx context.Context, peer *Session, note *jsonrpc.Notification)
}

// Config configures a Session's bounds and identity.
type Config struct {
	Role                  Role
	ProtocolVersion       string
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	DrainTimeout          time.Duration
	Logger                *slog.Logger

	// Metrics, when set, records parse failures and outbound timeout/
	// cancellation outcomes against the transport label below.
	Metrics   *telemetry.Metrics
	Transport string
}

func (c Config) withDefaults() Config {
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = DefaultProtocolVersion
	}
	if c.MaxConcurrentRequests <= 0 {
		c.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session is the bidirectional JSON-RPC peer of spec §4.3: it issues,
// correlates, cancels, and serves requests in both directions on top of a
// Sender. One Session exists per live connection (spec §3 Lifecycle); it
// exclusively owns its pendingOut and activeIn tables.
type Session struct {
	id         string
	cfg        Config
	sender     Sender
	dispatcher Dispatcher
	logger     *slog.Logger

	mu    sync.RWMutex
	state State

	nextID     atomic.Int64
	pendingOut *pendingTable
	activeIn   *activeTable
	permit     *permit

	negotiated atomic.Value // stores map[string]any, the negotiated capabilities

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a Session in the Uninitialized state.
func New(cfg Config, sender Sender, dispatcher Dispatcher) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		sender:     sender,
		dispatcher: dispatcher,
		logger:     cfg.Logger,
		state:      StateUninitialized,
		pendingOut: newPendingTable(),
		activeIn:   newActiveTable(),
		permit:     newPermit(cfg.MaxConcurrentRequests),
		closed:     make(chan struct{}),
	}
}

// ID returns the session's unique identifier, used to correlate log lines
// and the request-scoped logger injected into ctx during dispatch.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Role reports whether this session defaults outbound requests to the
// server→client or client→server direction.
func (s *Session) Role() Role { return s.cfg.Role }

// SetNegotiatedCapabilities stores the capability set computed by the
// router during initialize: the client's declared capabilities under
// "client" and the server's derived ones under "server" (spec §4.4.3).
func (s *Session) SetNegotiatedCapabilities(caps map[string]any) {
	s.negotiated.Store(caps)
}

// NegotiatedCapabilities returns the capability set computed at initialize,
// or nil before it has been set.
func (s *Session) NegotiatedCapabilities() map[string]any {
	v, _ := s.negotiated.Load().(map[string]any)
	return v
}

// InFlightHandlers reports the count of inbound requests currently being
// handled, for metrics and testable property #9.
func (s *Session) InFlightHandlers() int { return s.activeIn.len() }

// PendingOutbound reports the count of outbound requests awaiting a
// response, for metrics.
func (s *Session) PendingOutbound() int { return s.pendingOut.len() }

// ---------------------------------------------------------------------------
// Inbound: driven by the runtime's reader task. HandleInbound MUST NOT block
// on handler completion (spec §4.3.3, §5, testable property #5) — it always
// either handles the envelope synchronously in O(1) (state rejection,
// response correlation) or hands work off to a new goroutine and returns.
// ---------------------------------------------------------------------------

// HandleInbound processes one decoded envelope received from the peer.
func (s *Session) HandleInbound(ctx context.Context, msg jsonrpc.Message) {
	if decErr, ok := jsonrpc.AsParseFailure(msg); ok {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TransportErrors.WithLabelValues(s.cfg.Transport, "parse").Inc()
		}
		s.sendResponse(ctx, jsonrpc.NewErrorResponse(jsonrpc.NullID, jsonrpc.NewError(jsonrpc.CodeParseError, decErr.Error())))
		return
	}
	switch m := msg.(type) {
	case *jsonrpc.Request:
		s.handleInboundRequest(ctx, m)
	case *jsonrpc.Notification:
		s.handleInboundNotification(ctx, m)
	case *jsonrpc.Response:
		s.handleInboundResponse(m)
	case jsonrpc.Batch:
		go s.handleInboundBatch(ctx, m)
	}
}

func (s *Session) handleInboundRequest(ctx context.Context, req *jsonrpc.Request) {
	state := s.State()
	if state == StateClosed || state == StateDraining {
		s.sendResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "session is shutting down")))
		return
	}
	if req.Method == "initialize" && state == StateUninitialized {
		s.setState(StateInitializing)
		state = StateInitializing
	}
	if !methodAllowed(state, req.Method) {
		s.sendResponse(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeNotInitialized, "server not yet initialized")))
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	s.activeIn.insert(req.ID, s.guardedCancel(req.Method, cancel))

	go func() {
		resp := s.dispatchOne(handlerCtx, req)
		s.activeIn.complete(req.ID)
		s.sendResponse(ctx, resp)
	}()
}

// guardedCancel makes the initialize request's cancel a no-op: spec §4.3.1
// — "The initialize request is never cancellable".
func (s *Session) guardedCancel(method string, cancel context.CancelFunc) context.CancelFunc {
	if method == "initialize" {
		return func() {}
	}
	return cancel
}

// dispatchOne acquires the concurrency permit, calls the dispatcher, and
// recovers a handler panic into InternalError (spec §4.4.5, §7). The router
// does not recover panics itself, so this is the only recovery point.
func (s *Session) dispatchOne(ctx context.Context, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	release, err := s.permit.acquire(ctx)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "cancelled before a handler slot became available"))
	}
	defer release()

	ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, s.requestLogger(req))

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered", "method", req.Method, "panic", r)
			resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "internal error"))
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RequestsTotal.WithLabelValues(req.Method, requestStatus(resp)).Inc()
			s.cfg.Metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
		}
	}()

	resp = s.dispatcher.Dispatch(ctx, s, req)
	if resp == nil {
		resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "handler returned no response"))
	}
	// Enforce testable property #1 regardless of what the dispatcher set.
	resp.ID = req.ID
	return resp
}

// requestStatus reports "ok" or "error" for the RequestsTotal label,
// matching the teacher's convention of a coarse status label rather than
// one label value per JSON-RPC error code.
func requestStatus(resp *jsonrpc.Response) string {
	if resp != nil && resp.IsError() {
		return "error"
	}
	return "ok"
}

// requestLogger builds the per-request enriched logger stashed under
// ctxkey.LoggerKey{} before a handler runs, so a dispatcher several calls
// deep can log with session id, request id, and method attached without
// threading them through every function signature.
func (s *Session) requestLogger(req *jsonrpc.Request) *slog.Logger {
	return s.logger.With("session_id", s.id, "request_id", req.ID.String(), "method", req.Method)
}

func (s *Session) sendResponse(ctx context.Context, resp *jsonrpc.Response) {
	if err := s.sender.Send(ctx, resp); err != nil {
		s.logger.Debug("failed to send response", "error", err)
	}
}

func (s *Session) handleInboundNotification(ctx context.Context, note *jsonrpc.Notification) {
	switch note.Method {
	case "notifications/initialized":
		if s.State() == StateInitializing {
			s.setState(StateActive)
		}
	case "notifications/cancelled":
		var params struct {
			RequestID json.RawMessage `json:"requestId"`
		}
		if err := json.Unmarshal(note.Params, &params); err != nil {
			return
		}
		id, ok := decodeCancelTargetID(params.RequestID)
		if ok {
			s.activeIn.cancelByID(id)
		}
	default:
		go s.dispatcher.HandleNotification(ctx, s, note)
	}
}

func decodeCancelTargetID(raw json.RawMessage) (jsonrpc.ID, bool) {
	var id jsonrpc.ID
	if err := json.Unmarshal(raw, &id); err != nil {
		return jsonrpc.ID{}, false
	}
	return id, true
}

func (s *Session) handleInboundResponse(resp *jsonrpc.Response) {
	slot, ok := s.pendingOut.take(resp.ID)
	if !ok {
		s.logger.Debug("response for unknown or already-resolved request id", "id", resp.ID.String())
		return
	}
	slot.resolve(outcome{resp: resp})
}

func (s *Session) handleInboundBatch(ctx context.Context, batch jsonrpc.Batch) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []*jsonrpc.Response

	for _, item := range batch {
		switch m := item.(type) {
		case *jsonrpc.Request:
			wg.Add(1)
			go func(req *jsonrpc.Request) {
				defer wg.Done()
				handlerCtx, cancel := context.WithCancel(ctx)
				s.activeIn.insert(req.ID, s.guardedCancel(req.Method, cancel))
				resp := s.dispatchOne(handlerCtx, req)
				s.activeIn.complete(req.ID)
				mu.Lock()
				results = append(results, resp)
				mu.Unlock()
			}(m)
		case *jsonrpc.Notification:
			s.handleInboundNotification(ctx, m)
		case *jsonrpc.Response:
			s.handleInboundResponse(m)
		}
	}
	wg.Wait()

	if len(results) == 0 {
		return // all-notification batch: spec §4.3.5, no response element
	}
	out := make(jsonrpc.Batch, len(results))
	for i, r := range results {
		out[i] = r
	}
	if err := s.sender.Send(ctx, out); err != nil {
		s.logger.Debug("failed to send batch response", "error", err)
	}
}

// ---------------------------------------------------------------------------
// Outbound: correlation (spec §4.3.2).
// ---------------------------------------------------------------------------

// allocateID returns a fresh, monotonically increasing outbound RequestId
// (spec §3 — "monotonically increasing within a session").
func (s *Session) allocateID() jsonrpc.ID {
	return jsonrpc.NewNumberID(s.nextID.Add(1))
}

// Request issues a server-initiated (or client-initiated, by role) request
// to the peer and blocks until a Response arrives, the context is done, or
// the configured timeout elapses. On timeout, a notifications/cancelled is
// emitted and the returned error is ErrTimeout; on context cancellation a
// notifications/cancelled is emitted and the error is ErrCancelled — spec
// §5 "Timeouts", §8 property #2.
func (s *Session) Request(ctx context.Context, method string, params any) (*jsonrpc.Response, error) {
	return s.ForwardWithID(ctx, s.allocateID(), method, params)
}

// ForwardWithID issues a request using an explicit, caller-supplied id
// instead of allocating a fresh one. This is the mechanism spec §4.3.2
// requires for the correlation bug fix: a handler forwarding a request that
// originated elsewhere MUST use the id the remote peer will actually see,
// never a locally generated one.
func (s *Session) ForwardWithID(ctx context.Context, id jsonrpc.ID, method string, params any) (*jsonrpc.Response, error) {
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	slot := s.pendingOut.insert(id)
	if err := s.sender.Send(ctx, req); err != nil {
		s.pendingOut.remove(id)
		return nil, err
	}

	timeout := s.cfg.RequestTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-slot.ch:
		if o.err != nil {
			return nil, o.err
		}
		return o.resp, nil
	case <-ctx.Done():
		s.pendingOut.remove(id)
		s.emitCancelled(id)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TransportErrors.WithLabelValues(s.cfg.Transport, "cancelled").Inc()
		}
		return nil, ErrCancelled
	case <-timer.C:
		s.pendingOut.remove(id)
		s.emitCancelled(id)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.TransportErrors.WithLabelValues(s.cfg.Transport, "timeout").Inc()
		}
		return nil, ErrTimeout
	case <-s.closed:
		// drain() already resolved every slot with ErrCancelled before
		// closing s.closed, so slot.ch is guaranteed to be readable too —
		// but select both to avoid a race on which fires first.
		select {
		case o := <-slot.ch:
			if o.err != nil {
				return nil, o.err
			}
			return o.resp, nil
		default:
			return nil, ErrCancelled
		}
	}
}

func (s *Session) emitCancelled(id jsonrpc.ID) {
	note, err := jsonrpc.NewNotification("notifications/cancelled", map[string]any{"requestId": rawID(id)})
	if err != nil {
		return
	}
	_ = s.sender.Send(context.Background(), note)
}

// rawID renders an ID back into a plain Go value suitable for re-marshaling
// inside params (json.RawMessage round trips cleanly through ID's own
// MarshalJSON, so reusing it here keeps string/int ids faithful).
func rawID(id jsonrpc.ID) json.RawMessage {
	raw, _ := json.Marshal(id)
	return raw
}

// Notify sends a one-way notification to the peer.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	note, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, note)
}

// ---------------------------------------------------------------------------
// Lifecycle.
// ---------------------------------------------------------------------------

// Activate is a no-op placeholder for symmetry with Close; the runtime in
// internal/server does not call it, and it does not change State (state
// only advances on the wire handshake, spec §4.3.1).
func (s *Session) Activate() {}

// Close transitions the session through Draining to Closed: all
// pendingOut slots resolve with Cancelled, in-flight handlers are signaled
// to cancel and given up to DrainTimeout to finish, any still running are
// left to abort on their own cancelled context (spec §3 Lifecycle, §4.5).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(StateDraining)
		s.pendingOut.drain(outcome{err: ErrCancelled})
		close(s.closed)

		inflights := s.activeIn.cancelAll()
		deadline := time.NewTimer(s.cfg.DrainTimeout)
		defer deadline.Stop()
		for _, f := range inflights {
			select {
			case <-f.done:
			case <-deadline.C:
				s.logger.Warn("drain timeout exceeded, abandoning remaining handlers", "remaining", s.activeIn.len())
				s.setState(StateClosed)
				return
			}
		}
		s.setState(StateClosed)
	})
}
