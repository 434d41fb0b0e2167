package typedb

import (
	"fmt"
	"sync"
)

// CorruptionListener is notified when a description file backing the
// state could not be read. It returns false once its target is gone, after
// which it is dropped from the registry.
type CorruptionListener func() bool

type listenerRegistry struct {
	mu    sync.Mutex
	next  uint64
	slots map[uint64]CorruptionListener
}

// ListenForCorruption registers fn and returns a function that removes it.
func (s *State) ListenForCorruption(fn CorruptionListener) (cancel func()) {
	r := &s.listeners
	r.mu.Lock()
	if r.slots == nil {
		r.slots = make(map[uint64]CorruptionListener)
	}
	r.next++
	id := r.next
	r.slots[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.slots, id)
		r.mu.Unlock()
	}
}

// Listeners is the number of registered corruption listeners.
func (s *State) Listeners() int {
	s.listeners.mu.Lock()
	defer s.listeners.mu.Unlock()
	return len(s.listeners.slots)
}

// OnDatabaseCorrupt notifies every live listener. Listeners reporting that
// their target is gone are removed; a panicking listener is logged and
// treated as gone.
func (s *State) OnDatabaseCorrupt() {
	r := &s.listeners
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.slots))
	fns := make([]CorruptionListener, 0, len(r.slots))
	for id, fn := range r.slots {
		ids = append(ids, id)
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	s.log.Warn("database.corrupt", "listeners", len(fns))
	var dead []uint64
	for i, fn := range fns {
		if !s.notify(fn) {
			dead = append(dead, ids[i])
		}
	}
	if len(dead) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range dead {
		delete(r.slots, id)
	}
	r.mu.Unlock()
}

func (s *State) notify(fn CorruptionListener) (alive bool) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("database.corrupt_listener", "panic", fmt.Sprint(p))
			alive = false
		}
	}()
	return fn()
}
