package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/turbomcp/turbomcp/internal/ctxkey"
	"github.com/turbomcp/turbomcp/internal/session"
	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// ServerInfo identifies this server in the initialize response.
type ServerInfo struct {
	Name    string
	Version string
}

// Router implements session.Dispatcher: it owns the registry (built once,
// shared read-only across every session of a server) and answers
// initialize directly (spec §4.4).
type Router struct {
	registry *Registry
	info     ServerInfo
	logger   *slog.Logger
}

// New returns a Router over a built Registry.
func New(registry *Registry, info ServerInfo, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: registry, info: info, logger: logger}
}

var _ session.Dispatcher = (*Router)(nil)

// Dispatch answers one inbound Request by method table (spec §4.4.1).
func (rt *Router) Dispatch(ctx context.Context, peer *session.Session, req *jsonrpc.Request) *jsonrpc.Response {
	rc := RequestContext{Peer: peer, ID: req.ID, Ctx: ctx}

	switch req.Method {
	case "initialize":
		return rt.handleInitialize(rc, req)
	case "ping":
		return result(req.ID, map[string]any{})
	case "logging/setLevel":
		return rt.handleSetLevel(rc, req)
	case "tools/list":
		return rt.handleToolsList(rc, req)
	case "tools/call":
		return rt.handleToolsCall(rc, req)
	case "resources/list":
		return rt.handleResourcesList(rc, req)
	case "resources/templates/list":
		return rt.handleResourceTemplatesList(rc, req)
	case "resources/read":
		return rt.handleResourcesRead(rc, req)
	case "resources/subscribe", "resources/unsubscribe":
		return rt.handleResourceSubscription(rc, req)
	case "prompts/list":
		return rt.handlePromptsList(rc, req)
	case "prompts/get":
		return rt.handlePromptsGet(rc, req)
	case "completion/complete":
		return rt.handleCompletion(rc, req)
	default:
		rt.loggerFrom(ctx).Warn("method not found", "method", req.Method)
		return errorResult(req.ID, jsonrpc.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// loggerFrom returns the request-scoped logger the session stashed under
// ctxkey.LoggerKey{} before calling Dispatch (session id, request id,
// method already attached), falling back to the router's own logger for
// calls made outside that path, such as HandleNotification.
func (rt *Router) loggerFrom(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxkey.LoggerKey{}).(*slog.Logger); ok {
		return l
	}
	return rt.logger
}

// HandleNotification handles any inbound notification that the session
// layer doesn't already own (notifications/initialized and
// notifications/cancelled never reach here — spec §4.4.1's last row,
// "session-level"). Anything else is logged and dropped: this server has
// no registered behavior for client-originated progress/roots-changed
// notifications beyond observing them.
func (rt *Router) HandleNotification(ctx context.Context, _ *session.Session, note *jsonrpc.Notification) {
	rt.loggerFrom(ctx).Debug("unhandled notification", "method", note.Method)
}

func result(id jsonrpc.ID, v any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResult(id, v)
	if err != nil {
		return errorResult(id, jsonrpc.CodeInternalError, "failed to encode result")
	}
	return resp
}

func errorResult(id jsonrpc.ID, code int64, message string) *jsonrpc.Response {
	return jsonrpc.NewErrorResponse(id, jsonrpc.NewError(code, message))
}

// ---------------------------------------------------------------------------
// initialize / logging/setLevel
// ---------------------------------------------------------------------------

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
}

func (rt *Router) handleInitialize(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResult(req.ID, jsonrpc.CodeInvalidParams, "invalid initialize params")
		}
	}

	serverCaps := rt.registry.capabilities()
	negotiated := negotiatedCapabilities(params.Capabilities, serverCaps)
	rc.Peer.SetNegotiatedCapabilities(negotiated)

	return result(req.ID, map[string]any{
		"protocolVersion": session.DefaultProtocolVersion,
		"capabilities":    serverCaps,
		"serverInfo": map[string]any{
			"name":    rt.info.Name,
			"version": rt.info.Version,
		},
	})
}

func (rt *Router) handleSetLevel(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		Level string `json:"level"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResult(req.ID, jsonrpc.CodeInvalidParams, "invalid logging/setLevel params")
		}
	}

	rt.registry.mu.RLock()
	handler := rt.registry.logLevel
	rt.registry.mu.RUnlock()

	if handler != nil {
		if rpcErr := handler(rc, params.Level); rpcErr != nil {
			return jsonrpc.NewErrorResponse(req.ID, rpcErr)
		}
	}
	return result(req.ID, map[string]any{})
}

// ---------------------------------------------------------------------------
// tools
// ---------------------------------------------------------------------------

func (rt *Router) handleToolsList(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	tools := rt.registry.allTools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		entry := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if len(t.InputSchema) > 0 {
			entry["inputSchema"] = json.RawMessage(t.InputSchema)
		}
		out = append(out, entry)
	}
	return result(req.ID, map[string]any{"tools": out})
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (rt *Router) handleToolsCall(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, jsonrpc.CodeInvalidParams, "invalid tools/call params")
	}

	rt.registry.mu.RLock()
	tool, ok := rt.registry.tools[params.Name]
	rt.registry.mu.RUnlock()
	if !ok {
		return errorResult(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	if err := validateToolInput(tool.InputSchema, params.Arguments); err != nil {
		return errorResult(req.ID, jsonrpc.CodeInvalidParams, err.Error())
	}

	out, rpcErr := tool.Handler(rc, params.Arguments)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return result(req.ID, out)
}

// ---------------------------------------------------------------------------
// resources
// ---------------------------------------------------------------------------

func (rt *Router) handleResourcesList(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	resources := rt.registry.allResources()
	out := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		out = append(out, map[string]any{
			"uri":         r.URI,
			"name":        r.Name,
			"description": r.Description,
			"mimeType":    r.MimeType,
		})
	}
	return result(req.ID, map[string]any{"resources": out})
}

func (rt *Router) handleResourceTemplatesList(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	templates := rt.registry.allTemplates()
	out := make([]map[string]any, 0, len(templates))
	for _, t := range templates {
		out = append(out, map[string]any{
			"uriTemplate": t.URITemplate,
			"name":        t.Name,
			"description": t.Description,
			"mimeType":    t.MimeType,
		})
	}
	return result(req.ID, map[string]any{"resourceTemplates": out})
}

func (rt *Router) handleResourcesRead(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, jsonrpc.CodeInvalidParams, "invalid resources/read params")
	}

	handler, vars, found := rt.registry.lookupResource(params.URI)
	if !found {
		return errorResult(req.ID, jsonrpc.CodeResourceNotFound, fmt.Sprintf("resource not found: %s", params.URI))
	}

	out, rpcErr := handler(rc, params.URI, vars)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return result(req.ID, out)
}

// handleResourceSubscription acknowledges resources/subscribe and
// resources/unsubscribe for any URI that resolves in the registry.
// Push notifications on change are not implemented: no component of this
// server observes external resource mutation, so there is nothing to
// notify about yet (an Open Question left for the embedding application).
func (rt *Router) handleResourceSubscription(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, jsonrpc.CodeInvalidParams, "invalid params")
	}
	if _, _, found := rt.registry.lookupResource(params.URI); !found {
		return errorResult(req.ID, jsonrpc.CodeResourceNotFound, fmt.Sprintf("resource not found: %s", params.URI))
	}
	return result(req.ID, map[string]any{})
}

// ---------------------------------------------------------------------------
// prompts
// ---------------------------------------------------------------------------

func (rt *Router) handlePromptsList(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	prompts := rt.registry.allPrompts()
	out := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		args := make([]map[string]any, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, map[string]any{
				"name":        a.Name,
				"description": a.Description,
				"required":    a.Required,
			})
		}
		out = append(out, map[string]any{
			"name":        p.Name,
			"description": p.Description,
			"arguments":   args,
		})
	}
	return result(req.ID, map[string]any{"prompts": out})
}

func (rt *Router) handlePromptsGet(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResult(req.ID, jsonrpc.CodeInvalidParams, "invalid prompts/get params")
	}

	rt.registry.mu.RLock()
	prompt, ok := rt.registry.prompts[params.Name]
	rt.registry.mu.RUnlock()
	if !ok {
		return errorResult(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("unknown prompt: %s", params.Name))
	}

	out, rpcErr := prompt.Handler(rc, params.Arguments)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return result(req.ID, out)
}

// ---------------------------------------------------------------------------
// completion
// ---------------------------------------------------------------------------

func (rt *Router) handleCompletion(rc RequestContext, req *jsonrpc.Request) *jsonrpc.Response {
	rt.registry.mu.RLock()
	handler := rt.registry.completion
	rt.registry.mu.RUnlock()
	if handler == nil {
		return errorResult(req.ID, jsonrpc.CodeMethodNotFound, "no completion handler registered")
	}
	out, rpcErr := handler(rc, req.Params)
	if rpcErr != nil {
		return jsonrpc.NewErrorResponse(req.ID, rpcErr)
	}
	return result(req.ID, out)
}
