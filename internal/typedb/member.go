// Package typedb materializes module description records into an in-memory
// graph of modules, types, functions, properties and constants.
//
// References between entities may point at modules or members that have not
// been read yet. Those are parked as fixups and replayed once every module in
// the current load batch has been read, so a finished batch never exposes a
// half-built graph. An unresolvable reference degrades to the builtin object
// type rather than failing.
package typedb

import (
	"sync"
)

// Kind discriminates Member variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindModule
	KindType
	KindFunction
	KindMethod
	KindProperty
	KindConstant
	KindMultiple
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindType:
		return "type"
	case KindFunction:
		return "function"
	case KindMethod:
		return "method"
	case KindProperty:
		return "property"
	case KindConstant:
		return "data"
	case KindMultiple:
		return "multiple"
	}
	return "unknown"
}

// Member is anything that can be stored under a name in a Container.
type Member interface {
	Kind() Kind
}

// Container is a Member that holds named members: modules and types.
type Container interface {
	Member
	Name() string
	GetMember(name string) Member
	MemberNames() []string
}

// Location is a declaration position in the described source file.
type Location struct {
	Line   int
	Column int
}

// Locatable is implemented by members that may carry a source location.
type Locatable interface {
	Location() (Location, bool)
}

// Documented is implemented by members that carry a docstring.
type Documented interface {
	Doc() string
}

// memberTable is a name-to-member map that remembers insertion order.
// Readers may query it while a load batch is still filling it.
type memberTable struct {
	mu      sync.RWMutex
	members map[string]Member
	order   []string
}

func (t *memberTable) get(name string) Member {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.members[name]
}

func (t *memberTable) set(name string, m Member) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.members == nil {
		t.members = make(map[string]Member)
	}
	if _, ok := t.members[name]; !ok {
		t.order = append(t.order, name)
	}
	t.members[name] = m
}

func (t *memberTable) names(skip func(string, Member) bool) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.order))
	for _, name := range t.order {
		if skip != nil && skip(name, t.members[name]) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func (t *memberTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members)
}

// typeSlots is an ordered list of lazily resolved types. Each slot is
// written at most once.
type typeSlots struct {
	mu    sync.RWMutex
	slots []*Type
}

func newTypeSlots(n int) *typeSlots {
	return &typeSlots{slots: make([]*Type, n)}
}

func (s *typeSlots) fill(i int, t *Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.slots) && s.slots[i] == nil {
		s.slots[i] = t
	}
}

// add appends t. Used for open-ended lists such as return types, where a
// reference with several alternatives contributes one entry per alternative.
func (s *typeSlots) add(t *Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, t)
}

// resolved returns the filled slots in order.
func (s *typeSlots) resolved() []*Type {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Type, 0, len(s.slots))
	for _, t := range s.slots {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
