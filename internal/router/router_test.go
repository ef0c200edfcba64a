package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/turbomcp/turbomcp/internal/session"
	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

type noopSender struct{}

func (noopSender) Send(context.Context, jsonrpc.Message) error { return nil }

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, *session.Session, *jsonrpc.Request) *jsonrpc.Response {
	return nil
}
func (noopDispatcher) HandleNotification(context.Context, *session.Session, *jsonrpc.Notification) {
}

func newTestPeer() *session.Session {
	return session.New(session.Config{Role: session.RoleServer}, noopSender{}, noopDispatcher{})
}

func mustRequest(t *testing.T, id jsonrpc.ID, method string, params any) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return req
}

// S6: resource lookup by exact URI succeeds; lookup by a bare name that
// was never registered as a URI fails with ResourceNotFound.
func TestResourceReadByExactURI(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterResource(Resource{
		URI:  "stdio://help",
		Name: "help",
		Handler: func(rc RequestContext, uri string, vars map[string]string) (any, *jsonrpc.Error) {
			return map[string]any{"uri": uri, "text": "help text"}, nil
		},
	})
	rt := New(reg.Build(), ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	peer := newTestPeer()
	peer.SetNegotiatedCapabilities(nil)

	req := mustRequest(t, jsonrpc.NewNumberID(1), "resources/read", map[string]any{"uri": "stdio://help"})
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	req2 := mustRequest(t, jsonrpc.NewNumberID(2), "resources/read", map[string]any{"uri": "help"})
	resp2 := rt.Dispatch(context.Background(), peer, req2)
	if resp2.Error == nil || resp2.Error.Code != jsonrpc.CodeResourceNotFound {
		t.Fatalf("expected ResourceNotFound for lookup by bare name, got %v", resp2.Error)
	}
}

func TestResourceReadByTemplateMatch(t *testing.T) {
	reg := NewRegistry()
	var gotVars map[string]string
	if err := reg.RegisterResourceTemplate(ResourceTemplate{
		URITemplate: "stdio://files/{path}",
		Name:        "files",
		Handler: func(rc RequestContext, uri string, vars map[string]string) (any, *jsonrpc.Error) {
			gotVars = vars
			return map[string]any{"uri": uri}, nil
		},
	}); err != nil {
		t.Fatalf("registering template: %v", err)
	}
	rt := New(reg.Build(), ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	peer := newTestPeer()

	req := mustRequest(t, jsonrpc.NewNumberID(1), "resources/read", map[string]any{"uri": "stdio://files/readme.md"})
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	if gotVars["path"] != "readme.md" {
		t.Errorf("expected extracted path=readme.md, got %q", gotVars["path"])
	}
}

// Unknown methods return MethodNotFound, never collapsed to InternalError
// (spec §4.4.5).
func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	rt := New(NewRegistry().Build(), ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	peer := newTestPeer()

	req := mustRequest(t, jsonrpc.NewNumberID(1), "nonexistent/thing", nil)
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Fatalf("expected MethodNotFound, got %v", resp.Error)
	}
}

// A tool handler's own error code is preserved verbatim, not collapsed.
func TestToolHandlerErrorCodePreserved(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTool(Tool{
		Name: "reject-me",
		Handler: func(rc RequestContext, args json.RawMessage) (any, *jsonrpc.Error) {
			return nil, jsonrpc.NewError(jsonrpc.CodeUnauthorized, "nope")
		},
	})
	rt := New(reg.Build(), ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	peer := newTestPeer()

	req := mustRequest(t, jsonrpc.NewNumberID(1), "tools/call", map[string]any{"name": "reject-me", "arguments": map[string]any{}})
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeUnauthorized {
		t.Fatalf("expected the handler's own CodeUnauthorized preserved, got %v", resp.Error)
	}
}

// Missing a required input property is rejected before the handler runs.
func TestToolCallRejectsMissingRequiredProperty(t *testing.T) {
	called := false
	reg := NewRegistry()
	reg.RegisterTool(Tool{
		Name:        "needs-arg",
		InputSchema: json.RawMessage(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`),
		Handler: func(rc RequestContext, args json.RawMessage) (any, *jsonrpc.Error) {
			called = true
			return map[string]any{}, nil
		},
	})
	rt := New(reg.Build(), ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	peer := newTestPeer()

	req := mustRequest(t, jsonrpc.NewNumberID(1), "tools/call", map[string]any{"name": "needs-arg", "arguments": map[string]any{}})
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeInvalidParams {
		t.Fatalf("expected InvalidParams, got %v", resp.Error)
	}
	if called {
		t.Error("handler must not run when required input is missing")
	}
}

// Initialize computes capabilities from what's actually registered and
// stores the negotiated set on the session.
func TestInitializeDerivesCapabilitiesAndStoresNegotiation(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterTool(Tool{Name: "echo", Handler: func(rc RequestContext, args json.RawMessage) (any, *jsonrpc.Error) {
		return nil, nil
	}})
	rt := New(reg.Build(), ServerInfo{Name: "turbomcp", Version: "1.0.0"}, nil)
	peer := newTestPeer()

	req := mustRequest(t, jsonrpc.NewNumberID(1), "initialize", map[string]any{
		"protocolVersion": session.DefaultProtocolVersion,
		"capabilities":    map[string]any{"sampling": map[string]any{}},
	})
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	var out struct {
		Capabilities map[string]any `json:"capabilities"`
	}
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if _, ok := out.Capabilities["tools"]; !ok {
		t.Error("expected tools capability to be derived from the registered tool")
	}

	neg := peer.NegotiatedCapabilities()
	server, _ := neg["server"].(map[string]any)
	if _, ok := server["tools"]; !ok {
		t.Error("expected negotiated capabilities to retain the server's derived set")
	}
	client, _ := neg["client"].(map[string]any)
	if _, ok := client["sampling"]; !ok {
		t.Error("expected negotiated capabilities to retain the client's declared set")
	}
}

func TestPingAlwaysAvailable(t *testing.T) {
	rt := New(NewRegistry().Build(), ServerInfo{Name: "test", Version: "0.0.0"}, nil)
	peer := newTestPeer()
	req := mustRequest(t, jsonrpc.NewNumberID(1), "ping", nil)
	resp := rt.Dispatch(context.Background(), peer, req)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
}
