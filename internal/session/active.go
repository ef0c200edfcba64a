package session

import (
	"context"
	"sync"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// inflight tracks one inbound Request currently being handled: a cancel
// function the session can call on notifications/cancelled, and a done
// channel so cancellation after completion is a harmless no-op.
type inflight struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// activeTable is the active_in set of spec §3: inbound RequestIds currently
// being handled, removed on completion or on a matching
// notifications/cancelled.
type activeTable struct {
	mu    sync.Mutex
	tasks map[string]*inflight
}

func newActiveTable() *activeTable {
	return &activeTable{tasks: make(map[string]*inflight)}
}

func (t *activeTable) insert(id jsonrpc.ID, cancel context.CancelFunc) *inflight {
	f := &inflight{cancel: cancel, done: make(chan struct{})}
	t.mu.Lock()
	t.tasks[id.String()] = f
	t.mu.Unlock()
	return f
}

func (t *activeTable) complete(id jsonrpc.ID) {
	t.mu.Lock()
	f, ok := t.tasks[id.String()]
	delete(t.tasks, id.String())
	t.mu.Unlock()
	if ok {
		close(f.done)
	}
}

// cancelByID implements notifications/cancelled: find the inflight task for
// id and invoke its cancel function. The initialize request is exempt
// because its entry is inserted with a no-op cancel (see
// Session.guardedCancel), not because callers filter it out (spec §4.3.1).
func (t *activeTable) cancelByID(id jsonrpc.ID) {
	t.mu.Lock()
	f, ok := t.tasks[id.String()]
	t.mu.Unlock()
	if ok {
		f.cancel()
	}
}

// cancelAll cancels every in-flight handler, used during shutdown (spec §4.5).
func (t *activeTable) cancelAll() []*inflight {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*inflight, 0, len(t.tasks))
	for _, f := range t.tasks {
		f.cancel()
		out = append(out, f)
	}
	return out
}

func (t *activeTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}
