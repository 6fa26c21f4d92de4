package services

import "sync"

// State is the cached copy of one server resource together with its
// request status.
type State[T any] struct {
	Data    T
	Loading bool
	Error   string
}

type observers[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (o *observers[T]) add(fn func(T)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.fns[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

func (o *observers[T]) notify(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.fns))
	for _, fn := range o.fns {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func (o *observers[T]) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fns = nil
}

// resource is the load/mutate bookkeeping shared by the synchronizers.
//
// Each load takes a sequence number; only the completion of the latest
// issued load is applied. Loading stays true while the latest load or any
// mutation is in flight.
type resource[T any] struct {
	mu        sync.Mutex
	state     State[T]
	clone     func(T) T
	seq       uint64
	loading   bool
	mutations int
	closed    bool
	obs       observers[State[T]]
}

func (r *resource[T]) snapshotLocked() State[T] {
	s := r.state
	if r.clone != nil {
		s.Data = r.clone(s.Data)
	}
	return s
}

func (r *resource[T]) Snapshot() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Subscribe registers fn for every state change. The returned func detaches it.
// The CLI does not subscribe to invoice state; it reads Snapshot after each
// command. Only the tests observe Loading transitions this way.
func (r *resource[T]) Subscribe(fn func(State[T])) (cancel func()) {
	return r.obs.add(fn)
}

// Close detaches all observers; completions arriving later are dropped.
func (r *resource[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.obs.clear()
}

// mutate applies fn under the lock and notifies observers. It reports false
// when the resource is closed.
func (r *resource[T]) mutate(fn func(s *State[T])) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	fn(&r.state)
	r.state.Loading = r.loading || r.mutations > 0
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.obs.notify(snap)
	return true
}

func (r *resource[T]) beginLoad() uint64 {
	seq, _ := r.beginLoadIf(nil)
	return seq
}

// beginLoadIf starts a load only when cond, checked under the lock, holds.
// A nil cond always holds.
func (r *resource[T]) beginLoadIf(cond func() bool) (seq uint64, ok bool) {
	r.mutate(func(s *State[T]) {
		if cond != nil && !cond() {
			return
		}
		r.seq++
		seq = r.seq
		r.loading = true
		s.Error = ""
		ok = true
	})
	return seq, ok
}

// finishLoad applies fn if seq is still the latest load. It reports whether
// the result was applied.
func (r *resource[T]) finishLoad(seq uint64, fn func(s *State[T])) bool {
	applied := false
	r.mutate(func(s *State[T]) {
		if seq != r.seq {
			return
		}
		r.loading = false
		fn(s)
		applied = true
	})
	return applied
}

func (r *resource[T]) beginMutation() {
	r.mutate(func(*State[T]) { r.mutations++ })
}

func (r *resource[T]) endMutation(errMsg string) {
	r.mutate(func(s *State[T]) {
		r.mutations--
		if errMsg != "" {
			s.Error = errMsg
		}
	})
}

func (r *resource[T]) setError(msg string) {
	r.mutate(func(s *State[T]) { s.Error = msg })
}
