package typedb

import (
	"sync"

	"github.com/jward/typedb/internal/record"
)

// MultipleMembers is a name with several alternative definitions, such as
// platform or version specific variants of one function. Each alternative
// resolves on its own; once all have, the object is closed and Members
// returns the final list.
type MultipleMembers struct {
	name      string
	declaring Container

	mu         sync.Mutex
	slots      []Member
	done       []bool
	unresolved int
	closed     bool
	members    []Member
	waiters    []func(*Type)
}

func newMultipleMembers(name string, declaring Container, n int) *MultipleMembers {
	return &MultipleMembers{
		name:       name,
		declaring:  declaring,
		slots:      make([]Member, n),
		done:       make([]bool, n),
		unresolved: n,
		closed:     n == 0,
	}
}

func (mm *MultipleMembers) Kind() Kind           { return KindMultiple }
func (mm *MultipleMembers) Name() string         { return mm.name }
func (mm *MultipleMembers) Declaring() Container { return mm.declaring }

// IsClosed reports whether every alternative has resolved.
func (mm *MultipleMembers) IsClosed() bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.closed
}

// Members returns the resolved alternatives. Alternatives that resolved
// back to mm itself are never included.
func (mm *MultipleMembers) Members() []Member {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.closed {
		return append([]Member(nil), mm.members...)
	}
	return mm.liveLocked()
}

func (mm *MultipleMembers) liveLocked() []Member {
	out := make([]Member, 0, len(mm.slots))
	for _, m := range mm.slots {
		if m != nil && m != Member(mm) {
			out = append(out, m)
		}
	}
	return out
}

// populate reads each alternative record into its slot. Records that are
// rejected (malformed, or excluded by version) count as resolved with
// nothing.
func (mm *MultipleMembers) populate(s *State, records []any) {
	for i, raw := range records {
		rec, ok := record.AsMap(raw)
		if !ok {
			mm.resolve(s, i, nil)
			continue
		}
		slot := i
		accepted := s.readMember(mm.name, rec, func(_ string, m Member) {
			mm.resolve(s, slot, m)
		}, mm.declaring, &altSlot{mm: mm, i: slot})
		if !accepted {
			mm.resolve(s, i, nil)
		}
	}
}

// resolve fills slot i. Later writes to the same slot are ignored.
func (mm *MultipleMembers) resolve(s *State, i int, m Member) {
	mm.mu.Lock()
	if i >= len(mm.slots) || mm.done[i] {
		mm.mu.Unlock()
		return
	}
	mm.done[i] = true
	mm.slots[i] = m
	mm.unresolved--
	if mm.unresolved == 0 {
		mm.members = mm.liveLocked()
		mm.closed = true
	}

	var fire []func(*Type)
	t, isType := m.(*Type)
	if isType || mm.closed {
		fire = mm.waiters
		mm.waiters = nil
	}
	closed := mm.closed
	mm.mu.Unlock()

	if len(fire) == 0 {
		return
	}
	if isType {
		for _, w := range fire {
			w(t)
		}
		return
	}
	if closed {
		for _, w := range fire {
			mm.deliver(s, w)
		}
	}
}

// deliver hands the closed object's types to assign, or object when none of
// the alternatives is a type.
func (mm *MultipleMembers) deliver(s *State, assign func(*Type)) {
	types := typesOf(mm.Members())
	if len(types) == 0 {
		s.addObjectFixup(assign)
		return
	}
	for _, t := range types {
		assign(t)
	}
}

// settled reports whether waiters have been or are being released: the
// object is closed or one of its alternatives is a type.
func (mm *MultipleMembers) settled() bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.closed || len(typesOf(mm.liveLocked())) > 0
}

// AssignTypes passes each alternative that is a type to assign. Before the
// object is closed it looks at the slots resolved so far; if none of them is
// a type yet, assign waits for the next type alternative or for closing. A
// wait that outlasts the fixup limit resolves to object, as does a closed
// object without type alternatives.
func (mm *MultipleMembers) AssignTypes(s *State, assign func(*Type)) {
	mm.mu.Lock()
	var list []Member
	if mm.closed {
		list = append(list, mm.members...)
	} else {
		list = mm.liveLocked()
	}
	types := typesOf(list)
	if len(types) == 0 && !mm.closed {
		assign = onceType(assign)
		mm.waiters = append(mm.waiters, assign)
		mm.mu.Unlock()
		s.deferFixup(&fixup{kind: fixupAlternatives, multiple: mm, assign: assign})
		return
	}
	mm.mu.Unlock()

	if len(types) == 0 {
		s.addObjectFixup(assign)
		return
	}
	for _, t := range types {
		assign(t)
	}
}

func typesOf(ms []Member) []*Type {
	var out []*Type
	for _, m := range ms {
		if t, ok := m.(*Type); ok {
			out = append(out, t)
		}
	}
	return out
}
