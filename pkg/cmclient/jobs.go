package cmclient

import "sync"

// ResponseFunc is the continuation stored against a job id: it is invoked
// with the decoded header, body, and an optional reply continuation when a
// response with a matching target job arrives (spec.md §4.5, §4.3).
type ResponseFunc func(h Header, body []byte, reply ReplyFunc)

// ReplyFunc sends a response back to whoever originated the correlated
// request (spec.md §4.5 step 6).
type ReplyFunc func(h Header, body []byte, cb ResponseFunc) error

// jobRegistry maps outbound job ids to their pending response continuation
// (spec.md §4.3). The counter restarts at 0 on every connect, so source job
// ids allocated within a connection are strictly increasing starting at 1.
type jobRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]ResponseFunc
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{pending: make(map[uint64]ResponseFunc)}
}

// alloc pre-increments the counter and stores cb under the new id, iff cb is
// non-nil. When cb is nil, it still consumes an id without registering
// anything to look up; sendLow never calls it that way, and sends
// fire-and-forget requests with NoJob as the source job instead.
func (r *jobRegistry) alloc(cb ResponseFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	if cb != nil {
		r.pending[id] = cb
	}
	return id
}

// take atomically removes and returns the continuation registered for id,
// if any (spec.md §4.3).
func (r *jobRegistry) take(id uint64) (ResponseFunc, bool) {
	if id == NoJob {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	return cb, ok
}

// clear drops all pending callbacks without invoking them (spec.md §4.3,
// §7 — disconnect does not notify pending jobs).
func (r *jobRegistry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[uint64]ResponseFunc)
}

// reset restarts the counter and drops all pending callbacks; called at the
// start of every connect attempt (spec.md §4.3, §4.4).
func (r *jobRegistry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID = 0
	r.pending = make(map[uint64]ResponseFunc)
}
