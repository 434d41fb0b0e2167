package typedb

import (
	"sync"
	"time"

	"github.com/hashicorp/go-set/v3"

	"github.com/jward/typedb/internal/record"
)

// slowWait is the lock wait above which BeginLoad logs.
const slowWait = 100 * time.Millisecond

// loadCoordinator serializes load batches. The load lock is a one-slot
// channel so acquisition can be bounded by a timeout.
type loadCoordinator struct {
	sem chan struct{}

	mu      sync.Mutex
	loading *set.Set[*Module]
}

func (l *loadCoordinator) init() {
	l.sem = make(chan struct{}, 1)
	l.loading = set.New[*Module](4)
}

// acquire takes the load lock. A negative timeout waits forever; zero tries
// once.
func (l *loadCoordinator) acquire(timeout time.Duration) bool {
	if timeout < 0 {
		l.sem <- struct{}{}
		return true
	}
	select {
	case l.sem <- struct{}{}:
		return true
	default:
		if timeout == 0 {
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case l.sem <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (l *loadCoordinator) release() {
	<-l.sem
}

// NewModule creates an empty module to be filled by a load batch.
func (s *State) NewModule(name string, builtin bool) *Module {
	return newModule(name, builtin)
}

// BeginLoad starts a load batch for modules. It waits up to timeout for the
// batch in progress, if any, to finish and returns false if it did not.
// While the batch runs, its modules are visible to reference resolution but
// not to GetModule. Every module passed here must be finished with EndLoad.
// With no modules the batch is empty and ends immediately.
func (s *State) BeginLoad(timeout time.Duration, modules ...*Module) bool {
	start := time.Now()
	if !s.loader.acquire(timeout) {
		s.log.Warn("load.timeout", "timeout", timeout, "modules", len(modules))
		return false
	}
	if waited := time.Since(start); waited > slowWait {
		s.log.Info("load.wait", "waited", waited, "modules", len(modules))
	}
	if len(modules) == 0 {
		defer s.loader.release()
		s.runFixups()
		return true
	}

	s.loader.mu.Lock()
	for _, m := range modules {
		s.loader.loading.Insert(m)
	}
	s.loader.mu.Unlock()

	s.modMu.Lock()
	for _, m := range modules {
		s.staged[m.name] = m
	}
	s.modMu.Unlock()
	return true
}

// EndLoad marks m as read. When it was the last module of the batch, the
// batch is published, module references waiting for its modules are
// resolved, pending fixups are replayed and the load lock is released.
func (s *State) EndLoad(m *Module) {
	s.loader.mu.Lock()
	if !s.loader.loading.Remove(m) {
		s.loader.mu.Unlock()
		s.log.Warn("load.end_unknown", "module", m.name)
		return
	}
	empty := s.loader.loading.Empty()
	s.loader.mu.Unlock()
	if !empty {
		return
	}

	defer s.loader.release()
	s.modMu.Lock()
	published := make([]*Module, 0, len(s.staged))
	for name, staged := range s.staged {
		s.publishLocked(staged)
		published = append(published, staged)
		delete(s.staged, name)
	}
	s.modMu.Unlock()
	for _, m := range published {
		s.runModuleFixups(m)
	}
	s.runFixups()
}

// Loading reports how many modules of the current batch are still being
// read.
func (s *State) Loading() int {
	s.loader.mu.Lock()
	defer s.loader.mu.Unlock()
	return s.loader.loading.Size()
}

// Quiesce runs an empty batch: it takes the load lock, replays pending
// fixups and releases the lock. References still unresolved move one
// escalation level closer to object.
func (s *State) Quiesce(timeout time.Duration) bool {
	return s.BeginLoad(timeout)
}

// Drain is Quiesce without escalation: pending fixups are replayed and
// those that still cannot resolve wait at their current level. Readers
// that only need the graph as resolved so far use it so they do not push
// forward references towards object.
func (s *State) Drain(timeout time.Duration) bool {
	if !s.loader.acquire(timeout) {
		s.log.Warn("drain.timeout", "timeout", timeout)
		return false
	}
	defer s.loader.release()
	s.holdLevels.Store(true)
	defer s.holdLevels.Store(false)
	s.runFixups()
	return true
}

// ModuleDesc is a decoded module description ready to be loaded.
type ModuleDesc struct {
	Name    string
	Builtin bool
	Desc    record.Map
}

// Load reads descs as one batch and returns the built modules in the same
// order. It returns false without reading anything when the load lock could
// not be taken within timeout.
func (s *State) Load(timeout time.Duration, descs ...ModuleDesc) ([]*Module, bool) {
	mods := make([]*Module, len(descs))
	for i, d := range descs {
		mods[i] = newModule(d.Name, d.Builtin)
	}
	if !s.BeginLoad(timeout, mods...) {
		return nil, false
	}
	for i, d := range descs {
		s.loadOne(mods[i], d.Desc)
	}
	return mods, true
}

func (s *State) loadOne(m *Module, desc record.Map) {
	defer s.EndLoad(m)
	s.populateModule(m, desc)
	s.log.Debug("load.module", "module", m.name, "members", m.Len())
}
