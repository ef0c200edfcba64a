package session

import (
	"context"
	"sync"
)

// DefaultMaxConcurrentRequests is the default bound on simultaneously
// running inbound handler tasks per session (spec §4.3.6).
const DefaultMaxConcurrentRequests = 100

// permit is a counting semaphore bounding in-flight inbound handler tasks.
// Its shape — a context-aware Acquire that can be released exactly once —
// is grounded on the teacher's ratelimit.RateLimiter.Allow(ctx, ...) contract,
// narrowed here to plain admission control (no rate algorithm; rate limiting
// itself is out of this spec's scope per spec.md §1). Release is idempotent
// and safe to call from a defer even on panic, matching spec §5's RAII
// permit-release contract.
type permit struct {
	tokens chan struct{}
}

func newPermit(max int) *permit {
	if max <= 0 {
		max = DefaultMaxConcurrentRequests
	}
	return &permit{tokens: make(chan struct{}, max)}
}

// acquire blocks until a slot is free or ctx is done.
func (p *permit) acquire(ctx context.Context) (release func(), err error) {
	select {
	case p.tokens <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() { <-p.tokens })
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inUse reports the current number of held permits, for metrics (testable
// property #9).
func (p *permit) inUse() int { return len(p.tokens) }

// capacity reports the configured maximum.
func (p *permit) capacity() int { return cap(p.tokens) }
