package typedb

import (
	"strings"
	"sync"
)

type fixupKind int

const (
	// fixupModule retries a type reference whose module was missing.
	fixupModule fixupKind = iota
	// fixupMember retries a type reference whose module was found but
	// whose member was not.
	fixupMember
	// fixupMemberRef retries a dotted function reference.
	fixupMemberRef
	// fixupAlternatives bounds a wait on a multiple member that has no
	// type alternative yet and is not closed.
	fixupAlternatives
)

func (k fixupKind) String() string {
	switch k {
	case fixupModule:
		return "module"
	case fixupMember:
		return "member"
	case fixupMemberRef:
		return "funcref"
	case fixupAlternatives:
		return "multiple"
	}
	return "unknown"
}

// fixup is a pending resolution. It carries only what the retry needs;
// replay dispatches on kind.
type fixup struct {
	kind  fixupKind
	level int

	ref       typeRef
	container *Module
	name      string
	assign    func(*Type)

	path       []string
	depth      int
	memberName string
	assignRef  func(string, Member)

	multiple *MultipleMembers
}

func (f *fixup) target() string {
	switch f.kind {
	case fixupMember:
		return f.container.name + "." + f.name
	case fixupMemberRef:
		return strings.Join(f.path, ".")
	case fixupAlternatives:
		return f.multiple.name
	}
	return f.ref.String()
}

func (s *State) deferFixup(f *fixup) {
	s.log.Debug("fixup.deferred", "kind", f.kind.String(), "target", f.target(), "level", f.level)
	s.fixMu.Lock()
	s.fixups = append(s.fixups, f)
	s.fixMu.Unlock()
}

// PendingFixups is the number of fixups waiting for the next drain.
func (s *State) PendingFixups() int {
	s.fixMu.Lock()
	defer s.fixMu.Unlock()
	return len(s.fixups)
}

// runFixups replays every pending fixup in deferral order. Fixups deferred
// during the replay wait for the next drain. The object-type list is drained
// afterwards because object may only have become available now.
func (s *State) runFixups() {
	s.fixMu.Lock()
	pending := s.fixups
	s.fixups = nil
	s.fixMu.Unlock()

	if len(pending) > 0 {
		s.log.Debug("fixup.drain", "count", len(pending))
	}
	for _, f := range pending {
		s.replay(f)
	}
	s.runObjectFixups()
}

func (s *State) replay(f *fixup) {
	switch f.kind {
	case fixupModule:
		s.resolveTuple(f.ref, f.assign, f.level)
	case fixupMember:
		s.assignFromModule(f.container, f.name, f.ref, f.assign, f.level)
	case fixupMemberRef:
		s.resolveMemberRef(f.path, f.memberName, f.assignRef, f.level, f.depth)
	case fixupAlternatives:
		if !f.multiple.settled() {
			s.retry(f)
		}
	}
}

// fallback gives up on a reference and resolves it to object.
func (s *State) fallback(f *fixup) {
	s.log.Warn("fixup.fallback", "kind", f.kind.String(), "target", f.target(), "level", f.level)
	if f.kind == fixupMemberRef {
		assign, name := f.assignRef, f.memberName
		s.addObjectFixup(func(t *Type) { assign(name, t) })
		return
	}
	s.addObjectFixup(f.assign)
}

// addObjectFixup calls assign with object now if it is known, otherwise once
// it becomes known.
func (s *State) addObjectFixup(assign func(*Type)) {
	if obj := s.ObjectType(); obj != nil {
		assign(obj)
		return
	}
	s.objMu.Lock()
	// object may have appeared while we waited; runObjectFixups stores it
	// before taking objMu.
	if obj := s.objectType.Load(); obj != nil {
		s.objMu.Unlock()
		assign(obj)
		return
	}
	s.objFixups = append(s.objFixups, assign)
	s.objMu.Unlock()
}

func (s *State) runObjectFixups() {
	obj := s.ObjectType()
	if obj == nil {
		return
	}
	s.objMu.Lock()
	pending := s.objFixups
	s.objFixups = nil
	s.objMu.Unlock()
	for _, assign := range pending {
		assign(obj)
	}
}

func (s *State) addModuleFixup(name string, assign func(Member)) {
	s.modFixMu.Lock()
	s.moduleFixups[name] = append(s.moduleFixups[name], assign)
	s.modFixMu.Unlock()
}

// runModuleFixups resolves module references waiting for m.
func (s *State) runModuleFixups(m *Module) {
	s.modFixMu.Lock()
	pending := s.moduleFixups[m.name]
	delete(s.moduleFixups, m.name)
	s.modFixMu.Unlock()
	for _, assign := range pending {
		assign(m)
	}
}

// onceType guards a type continuation so retries and multiple alternatives
// can call it freely but it takes effect exactly once.
func onceType(assign func(*Type)) func(*Type) {
	var once sync.Once
	return func(t *Type) {
		once.Do(func() { assign(t) })
	}
}

func onceMember(assign func(string, Member)) func(string, Member) {
	var once sync.Once
	return func(name string, m Member) {
		once.Do(func() { assign(name, m) })
	}
}
