// Package router owns the immutable handler registry and dispatches
// inbound requests by method name, computing the negotiated capability set
// at initialize (spec §4.4).
package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/turbomcp/turbomcp/internal/session"
	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// RequestContext carries per-call metadata a handler may need: the peer
// session (to issue further server-initiated requests, e.g. a tool handler
// that itself asks the client to sample), and the raw inbound RequestId for
// handlers that must echo it back explicitly (spec §4.4.4).
type RequestContext struct {
	Peer  *session.Session
	ID    jsonrpc.ID
	Ctx   context.Context
}

// ToolHandler answers a tools/call for one registered tool. Returning a
// non-nil *jsonrpc.Error surfaces that exact code to the caller — the
// router never collapses it to InternalError (spec §4.4.5).
type ToolHandler func(rc RequestContext, args json.RawMessage) (result any, rpcErr *jsonrpc.Error)

// ResourceHandler answers a resources/read for one registered URI or
// template. uri is the exact URI requested; vars holds the values
// extracted from a template match (empty for an exact-URI registration).
type ResourceHandler func(rc RequestContext, uri string, vars map[string]string) (result any, rpcErr *jsonrpc.Error)

// PromptHandler answers a prompts/get for one registered prompt.
type PromptHandler func(rc RequestContext, args map[string]any) (result any, rpcErr *jsonrpc.Error)

// CompletionHandler answers a completion/complete request.
type CompletionHandler func(rc RequestContext, params json.RawMessage) (result any, rpcErr *jsonrpc.Error)

// Tool is a registered tool: its frozen metadata plus handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// Resource is a registered exact-URI resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler
}

// ResourceTemplate is a registered URI-template resource (RFC 6570 subset).
type ResourceTemplate struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler

	matcher *templateMatcher
}

// Prompt is a registered prompt.
type Prompt struct {
	Name        string
	Description string
	Arguments   []PromptArgument
	Handler     PromptHandler
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string
	Description string
	Required    bool
}

// Registry is the immutable-after-build handler table of spec §3. Build()
// freezes it; Register* calls after Build panic, matching the teacher's
// build-then-serve discipline for its config/registry types.
type Registry struct {
	mu sync.RWMutex

	tools      map[string]*Tool
	resources  map[string]*Resource
	templates  []*ResourceTemplate
	prompts    map[string]*Prompt
	completion CompletionHandler
	logLevel   func(rc RequestContext, level string) *jsonrpc.Error

	built bool
}

// NewRegistry returns an empty, mutable Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]*Tool),
		resources: make(map[string]*Resource),
		prompts:   make(map[string]*Prompt),
	}
}

func (r *Registry) assertMutable() {
	if r.built {
		panic("router: registry is built and immutable")
	}
}

// RegisterTool adds a tool, keyed by name (spec §3).
func (r *Registry) RegisterTool(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMutable()
	r.tools[t.Name] = &t
}

// RegisterResource adds an exact-URI resource, keyed by its URI string —
// never by Name (spec §4.4.2's regression-prone invariant).
func (r *Registry) RegisterResource(res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMutable()
	r.resources[res.URI] = &res
}

// RegisterResourceTemplate adds a URI-template resource.
func (r *Registry) RegisterResourceTemplate(tmpl ResourceTemplate) error {
	m, err := newTemplateMatcher(tmpl.URITemplate)
	if err != nil {
		return err
	}
	tmpl.matcher = m
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMutable()
	t := tmpl
	r.templates = append(r.templates, &t)
	return nil
}

// RegisterPrompt adds a prompt, keyed by name.
func (r *Registry) RegisterPrompt(p Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMutable()
	r.prompts[p.Name] = &p
}

// SetCompletionHandler installs the single completion/complete handler.
func (r *Registry) SetCompletionHandler(h CompletionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMutable()
	r.completion = h
}

// SetLogLevelHandler installs a handler for logging/setLevel; if never set,
// the built-in default accepts any level and is a no-op.
func (r *Registry) SetLogLevelHandler(h func(rc RequestContext, level string) *jsonrpc.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assertMutable()
	r.logLevel = h
}

// Build freezes the registry against further registration.
func (r *Registry) Build() *Registry {
	r.mu.Lock()
	r.built = true
	r.mu.Unlock()
	return r
}

// lookupResource implements spec §4.4.2: exact match first, then the first
// matching template, in registration order.
func (r *Registry) lookupResource(uri string) (handler ResourceHandler, vars map[string]string, found bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.resources[uri]; ok {
		return res.Handler, nil, true
	}
	for _, t := range r.templates {
		if vars, ok := t.matcher.match(uri); ok {
			return t.Handler, vars, true
		}
	}
	return nil, nil, false
}

func (r *Registry) allTools() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

func (r *Registry) allResources() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	return out
}

func (r *Registry) allTemplates() []*ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ResourceTemplate, len(r.templates))
	copy(out, r.templates)
	return out
}

func (r *Registry) allPrompts() []*Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	return out
}
