package session

import (
	"sync"

	"github.com/turbomcp/turbomcp/pkg/jsonrpc"
)

// outcome is what an awaiter of an outbound request eventually observes:
// either the peer's Response, or Cancelled/Timeout (spec §4.3.2, §8
// property #2). Exactly one of resp/err is set.
type outcome struct {
	resp *jsonrpc.Response
	err  error
}

// slot is a one-shot completion object parked on an outbound RequestId,
// the "pending slot" of the glossary. Grounded on the pend map[uint64]*pending
// channel-of-one pattern in other_examples' jsonrpc2 connection, generalized
// to jsonrpc.ID keys and an explicit cancel path.
type slot struct {
	ch chan outcome
}

func newSlot() *slot { return &slot{ch: make(chan outcome, 1)} }

func (s *slot) resolve(o outcome) {
	select {
	case s.ch <- o:
	default:
		// already resolved (race between timeout and a late response); the
		// first write wins and this one is dropped, matching "exactly one"
		// in testable property #2.
	}
}

// pendingTable owns the map from outbound RequestId to its slot. A session
// exclusively owns its own table (spec §3 Ownership); it is never shared.
type pendingTable struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[string]*slot)}
}

func (t *pendingTable) insert(id jsonrpc.ID) *slot {
	s := newSlot()
	t.mu.Lock()
	t.slots[id.String()] = s
	t.mu.Unlock()
	return s
}

func (t *pendingTable) take(id jsonrpc.ID) (*slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id.String()]
	if ok {
		delete(t.slots, id.String())
	}
	return s, ok
}

func (t *pendingTable) remove(id jsonrpc.ID) {
	t.mu.Lock()
	delete(t.slots, id.String())
	t.mu.Unlock()
}

// drain resolves every still-pending slot with the given outcome and empties
// the table. Used on session close (spec §3 Lifecycle, §4.3.1 Draining).
func (t *pendingTable) drain(o outcome) {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[string]*slot)
	t.mu.Unlock()
	for _, s := range slots {
		s.resolve(o)
	}
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
