package typedb

import (
	"strings"

	"github.com/jward/typedb/internal/record"
)

// LookupType resolves a type reference and passes the result to assign,
// either before returning or from a later fixup drain. It never blocks.
//
// ref is a single [module, name, index?] tuple or a list of tuples. A tuple
// calls assign exactly once; a list calls it once per tuple. References that
// cannot be resolved after the configured number of retries resolve to
// object. Malformed references are ignored.
func (s *State) LookupType(ref any, assign func(*Type)) {
	s.lookupType(ref, nil, assign)
}

func (s *State) lookupType(ref any, from *altSlot, assign func(*Type)) {
	if isRefList(ref) {
		l, _ := record.AsList(ref)
		for _, each := range l {
			s.lookupType(each, from, assign)
		}
		return
	}
	r, ok := parseTypeRef(ref)
	if !ok {
		s.log.Debug("typeref.malformed", "ref", describeRef(ref))
		return
	}
	r.from = from
	s.resolveTuple(r, onceType(assign), 0)
}

func (s *State) resolveTuple(r typeRef, assign func(*Type), level int) {
	if !r.hasName {
		s.addObjectFixup(assign)
		return
	}
	if !r.hasModule {
		b := s.builtinModule(true)
		if b == nil {
			s.addObjectFixup(assign)
			return
		}
		s.assignFromModule(b, r.name, r, assign, level)
		return
	}

	mod, name := s.moduleOrClass(r.module, r.name)
	if mod == nil {
		s.retry(&fixup{kind: fixupModule, level: level, ref: r, assign: assign})
		return
	}
	s.assignFromModule(mod, name, r, assign, level)
}

// retry re-defers f one level up, or falls back to object once the
// escalation ceiling is reached.
func (s *State) retry(f *fixup) {
	if s.holdLevels.Load() {
		s.deferFixup(f)
		return
	}
	if f.level >= s.fixupLimit {
		s.fallback(f)
		return
	}
	next := *f
	next.level++
	s.deferFixup(&next)
}

// moduleOrClass finds the module declaring a type. Some scraped libraries
// record a class path as the module ("pkg.mod.Outer"); when that module is
// missing, the parent module is used and the last segment becomes a prefix
// of the type name.
func (s *State) moduleOrClass(modName, typeName string) (*Module, string) {
	if m := s.findModule(modName); m != nil {
		return m, typeName
	}
	dot := strings.LastIndexByte(modName, '.')
	if dot > 0 && dot < len(modName)-1 {
		if m := s.findModule(modName[:dot]); m != nil {
			return m, modName[dot+1:] + "." + typeName
		}
	}
	return nil, ""
}

func (s *State) assignFromModule(mod *Module, name string, r typeRef, assign func(*Type), level int) {
	switch m := lookupPath(mod, name).(type) {
	case nil:
		s.retry(&fixup{kind: fixupMember, level: level, ref: r, container: mod, name: name, assign: assign})
	case *Type:
		assign(s.parametrize(m, r.index))
	case *MultipleMembers:
		if r.from != nil && r.from.mm == m {
			// An alternative naming its own member resolves as itself
			// and is dropped when the member closes.
			s.log.Debug("typeref.self", "ref", r.String())
			m.resolve(s, r.from.i, m)
			return
		}
		m.AssignTypes(s, assign)
	default:
		s.log.Warn("typeref.not_a_type", "ref", r.String(), "kind", m.Kind().String())
		s.addObjectFixup(assign)
	}
}

// lookupPath walks a possibly dotted name from mod. The first segment may
// name a hidden builtin type.
func lookupPath(mod *Module, dotted string) Member {
	parts := strings.Split(dotted, ".")
	cur := mod.GetAnyMember(parts[0])
	for _, p := range parts[1:] {
		c, ok := cur.(Container)
		if !ok {
			return nil
		}
		cur = c.GetMember(p)
	}
	return cur
}

// parametrize wraps t as a sequence type when index references are given.
func (s *State) parametrize(t *Type, index []any) *Type {
	if len(index) == 0 {
		return t
	}
	seq := &Type{
		name:      t.name,
		doc:       t.doc,
		id:        t.id,
		declaring: t.declaring,
		module:    t.module,
		builtin:   t.builtin,
		base:      t,
		index:     newTypeSlots(len(index)),
	}
	for i, ref := range index {
		s.LookupType(ref, func(it *Type) { seq.index.fill(i, it) })
	}
	return seq
}

// resolveMemberRef walks a dotted function reference such as
// "os.path.join" and assigns the target under memberName. depth records how
// far along the path the previous attempt got; a retry is allowed while
// the walk makes progress or the escalation ceiling has not been reached.
func (s *State) resolveMemberRef(path []string, memberName string, assign func(string, Member), level, depth int) {
	again := func(reached int) {
		f := &fixup{kind: fixupMemberRef, level: level, path: path, depth: reached, memberName: memberName, assignRef: assign}
		if reached > depth && level < s.fixupLimit+len(path) && !s.holdLevels.Load() {
			f.level++
			s.deferFixup(f)
			return
		}
		s.retry(f)
	}

	mod := s.findModule(path[0])
	if mod == nil {
		again(0)
		return
	}
	if len(path) == 1 {
		assign(memberName, mod)
		return
	}

	var cur Member = mod
	for i := 1; i < len(path)-1; i++ {
		switch c := cur.(type) {
		case *Module:
			if sub := s.findModule(c.name + "." + path[i]); sub != nil {
				cur = sub
			} else {
				cur = c.GetMember(path[i])
			}
		case Container:
			cur = c.GetMember(path[i])
		default:
			cur = nil
		}
		if cur == nil {
			again(i)
			return
		}
	}

	last := len(path) - 1
	c, ok := cur.(Container)
	if !ok {
		s.log.Warn("funcref.not_a_container", "path", strings.Join(path, "."), "kind", cur.Kind().String())
		s.addObjectFixup(func(t *Type) { assign(memberName, t) })
		return
	}
	if m := c.GetMember(path[last]); m != nil {
		assign(memberName, m)
		return
	}
	again(last)
}
