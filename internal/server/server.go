// Package server drives the session lifecycle against a transport: one
// session for the stdio process, or one session per accepted connection
// for every other transport (spec §4.5), with a bounded shutdown sequence
// grounded on the teacher's proxy_service.go goroutine/wg/errCh topology.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/turbomcp/turbomcp/internal/router"
	"github.com/turbomcp/turbomcp/internal/session"
	"github.com/turbomcp/turbomcp/internal/telemetry"
	"github.com/turbomcp/turbomcp/internal/transport"
	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// Config carries the session defaults every served connection is built
// with, plus the observability hooks (both optional).
type Config struct {
	Role                  session.Role
	ProtocolVersion       string
	MaxConcurrentRequests int
	RequestTimeout        time.Duration
	DrainTimeout          time.Duration
	Logger                *slog.Logger
	Metrics               *telemetry.Metrics
	Instrumentation       *telemetry.Instrumentation
}

func (c Config) sessionConfig(transport string) session.Config {
	return session.Config{
		Role:                  c.Role,
		ProtocolVersion:       c.ProtocolVersion,
		MaxConcurrentRequests: c.MaxConcurrentRequests,
		RequestTimeout:        c.RequestTimeout,
		DrainTimeout:          c.DrainTimeout,
		Logger:                c.Logger,
		Metrics:               c.Metrics,
		Transport:             transport,
	}
}

// Server drives a Router over any number of transports. One Server may run
// several transports concurrently (e.g. stdio plus an HTTP listener), each
// via its own call to Serve/ServeStdio from the embedding application.
type Server struct {
	cfg    Config
	router *router.Router
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[*session.Session]transport.Transport
	wg       sync.WaitGroup
}

// New returns a Server that dispatches every session's requests to rt.
func New(cfg Config, rt *router.Router) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		router:   rt,
		logger:   cfg.Logger,
		sessions: make(map[*session.Session]transport.Transport),
	}
}

// ServeStdio runs the single process-lifetime stdio session (spec §4.2.1).
// It blocks until ctx is cancelled or the stream ends.
func (s *Server) ServeStdio(ctx context.Context) error {
	t := transport.NewStdio()
	defer t.Close()
	return s.serveOne(ctx, t, "stdio")
}

// Serve accepts connections from ln, running one session per connection
// (spec §4.2.5) until ctx is cancelled or ln is closed. It blocks until
// every in-flight session has finished shutting down.
func (s *Server) Serve(ctx context.Context, ln transport.Listener, label string) error {
	defer ln.Close()

	for {
		t, err := ln.Accept(ctx)
		if err != nil {
			if !isExpectedEnd(err) && ctx.Err() == nil {
				s.logger.Warn("accept failed", "transport", label, "error", err)
			}
			break
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer t.Close()
			if err := s.serveOne(ctx, t, label); err != nil && !isExpectedEnd(err) {
				s.logger.Debug("session ended with error", "transport", label, "error", err)
			}
		}()
	}

	s.wg.Wait()
	return nil
}

func isExpectedEnd(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed)
}

// serveOne runs the read loop for one Transport: decode, hand to the
// session, repeat until Recv ends the stream. Outbound delivery happens
// inline inside the session (via the Sender it was built with) — there is
// no separate writer goroutine, since nothing in this core ever needs to
// buffer outbound faster than Send can apply backpressure.
func (s *Server) serveOne(ctx context.Context, t transport.Transport, label string) error {
	sess := session.New(s.cfg.sessionConfig(label), &transportSender{t: t}, s.router)

	s.trackSession(sess, t)
	defer s.untrackSession(sess)
	defer sess.Close()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveSessions.Inc()
		defer s.cfg.Metrics.ActiveSessions.Dec()
	}

	for {
		msg, err := t.Recv(ctx)
		if err != nil {
			return err
		}

		if s.cfg.Instrumentation != nil {
			_, span := s.cfg.Instrumentation.Tracer.Start(ctx, "turbomcp/session/inbound")
			sess.HandleInbound(ctx, msg)
			span.End()
		} else {
			sess.HandleInbound(ctx, msg)
		}

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.ConcurrencyInUse.WithLabelValues(label).Set(float64(sess.InFlightHandlers()))
			s.cfg.Metrics.OutboundPending.WithLabelValues(label).Set(float64(sess.PendingOutbound()))
		}
	}
}

func (s *Server) trackSession(sess *session.Session, t transport.Transport) {
	s.mu.Lock()
	s.sessions[sess] = t
	s.mu.Unlock()
}

func (s *Server) untrackSession(sess *session.Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Shutdown closes every tracked session in parallel, bounding the whole
// operation to timeout (spec §4.5's "stop accept -> drain -> abort"
// sequence — accept is stopped by the caller cancelling ctx/closing the
// Listener before calling Shutdown; this stage is the drain).
func (s *Server) Shutdown(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	tracked := make(map[*session.Session]transport.Transport, len(s.sessions))
	for sess, t := range s.sessions {
		tracked[sess] = t
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for sess, t := range tracked {
		wg.Add(1)
		go func(sess *session.Session, t transport.Transport) {
			defer wg.Done()
			// Closing the transport unblocks the connection's Recv loop;
			// closing the session drains its pending outbound requests and
			// cancels in-flight handlers within DrainTimeout.
			t.Close()
			sess.Close()
		}(sess, t)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errShutdownTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errShutdownTimeout = errors.New("server: shutdown drain timed out")

// transportSender adapts a transport.Transport to session.Sender.
type transportSender struct {
	t transport.Transport
}

func (a *transportSender) Send(ctx context.Context, msg jsonrpc.Message) error {
	return a.t.Send(ctx, msg)
}

var _ session.Sender = (*transportSender)(nil)
