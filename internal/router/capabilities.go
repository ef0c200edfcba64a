package router

// capabilities derives the ServerCapabilities object from what is actually
// registered (spec §4.4.3): each non-empty registry slot toggles its
// capability flag. Sub-capabilities are fixed rather than declared by
// handlers: listChanged is always false, resources.subscribe always true,
// and logging is always present.
func (r *Registry) capabilities() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := map[string]any{
		"logging": map[string]any{},
	}
	if len(r.tools) > 0 {
		caps["tools"] = map[string]any{"listChanged": false}
	}
	if len(r.resources) > 0 || len(r.templates) > 0 {
		caps["resources"] = map[string]any{"subscribe": true, "listChanged": false}
	}
	if len(r.prompts) > 0 {
		caps["prompts"] = map[string]any{"listChanged": false}
	}
	if r.completion != nil {
		caps["completions"] = map[string]any{}
	}
	return caps
}

// negotiatedCapabilities combines what the client declared in its
// InitializeRequest with what this server derived from its registry. Both
// halves are kept (namespaced) rather than reduced to a literal
// set-intersection: server-offered capabilities (tools, resources,
// prompts) and client-offered capabilities (roots, sampling, elicitation)
// are largely disjoint, so intersecting by key would erase the server's
// own capabilities whenever the client didn't happen to declare the same
// key. A handler that needs to know "can I ask this client to sample"
// checks negotiated["client"]["sampling"]; a client-side caller checking
// what the server can do looks at negotiated["server"].
func negotiatedCapabilities(clientCaps map[string]any, serverCaps map[string]any) map[string]any {
	if clientCaps == nil {
		clientCaps = map[string]any{}
	}
	return map[string]any{
		"client": clientCaps,
		"server": serverCaps,
	}
}
