package typedb

import (
	"sort"
	"strings"

	"github.com/jward/typedb/internal/record"
)

// ReadMember builds the member described by rec and passes it to assign
// under name. Members may be assigned before ReadMember returns or later
// from a fixup. It reports whether the record was accepted; malformed
// records, unknown kinds and members excluded by their version tag are
// skipped and never assigned.
func (s *State) ReadMember(name string, rec record.Map, assign func(string, Member), container Container) bool {
	return s.readMember(name, rec, assign, container, nil)
}

// readMember is ReadMember for a record that may be an alternative of a
// multiple member; from is that alternative's slot.
func (s *State) readMember(name string, rec record.Map, assign func(string, Member), container Container, from *altSlot) bool {
	kind := record.String(rec, "kind")
	value, hasValue := rec["value"]
	if kind == "" || !hasValue {
		s.log.Debug("member.malformed", "name", name, "reason", "missing kind or value")
		return false
	}
	if !s.gate.Applies(rec["version"]) {
		return false
	}

	switch kind {
	case "function", "method", "property", "type", "multiple", "funcref", "data":
		vm, ok := record.AsMap(value)
		if !ok {
			return s.malformed(name, kind, "value is not a mapping")
		}
		return s.readMapMember(name, kind, rec, vm, assign, container)

	case "typeref":
		if _, ok := record.AsList(value); !ok {
			return s.malformed(name, kind, "value is not a list")
		}
		s.lookupType(value, from, func(t *Type) { assign(name, t) })
		return true

	case "moduleref":
		l, ok := record.AsList(value)
		if !ok || len(l) == 0 {
			return s.malformed(name, kind, "value is not a non-empty list")
		}
		modName, _ := record.AsString(l[0])
		if modName == "" {
			return s.malformed(name, kind, "module name missing")
		}
		if m := s.findModule(modName); m != nil {
			assign(name, m)
			return true
		}
		s.addModuleFixup(modName, func(m Member) { assign(name, m) })
		return true
	}

	s.log.Debug("member.unknown_kind", "name", name, "kind", kind)
	return false
}

func (s *State) malformed(name, kind, reason string) bool {
	s.log.Debug("member.malformed", "name", name, "kind", kind, "reason", reason)
	return false
}

func (s *State) readMapMember(name, kind string, rec, vm record.Map, assign func(string, Member), container Container) bool {
	switch kind {
	case "function":
		assign(name, s.newFunction(name, rec, vm, container, false))
	case "method":
		assign(name, &MethodDescriptor{fn: s.newFunction(name, rec, vm, container, true)})
	case "property":
		assign(name, s.newProperty(rec, vm, container))
	case "type":
		t := s.newTypeShell(name, rec, vm, container)
		assign(name, t)
		s.populateType(t, vm)
	case "multiple":
		records, ok := record.List(vm, "members")
		if !ok {
			return s.malformed(name, kind, "members is not a list")
		}
		mm := newMultipleMembers(name, container, len(records))
		assign(name, mm)
		mm.populate(s, records)
	case "funcref":
		fn := record.String(vm, "func_name")
		if fn == "" {
			return s.malformed(name, kind, "func_name missing")
		}
		s.resolveMemberRef(strings.Split(fn, "."), name, onceMember(assign), 0, -1)
	case "data":
		typeInfo, ok := vm["type"]
		if !ok {
			return s.malformed(name, kind, "type missing")
		}
		s.LookupType(typeInfo, func(t *Type) {
			if t.IsSequence() {
				assign(name, t)
				return
			}
			assign(name, s.Constant(t))
		})
	}
	return true
}

func (s *State) newFunction(name string, rec, vm record.Map, container Container, method bool) *Function {
	f := &Function{
		name:        name,
		doc:         record.String(vm, "doc"),
		declaring:   container,
		builtin:     record.Bool(vm, "builtin"),
		static:      record.Bool(vm, "static"),
		classMethod: record.Bool(vm, "classmethod"),
		method:      method,
	}
	f.loc.Line, f.loc.Column, f.hasLoc = record.Location(rec)
	if f.static {
		// static methods have no receiver to clip
		f.method = false
	}

	overloads, _ := record.List(vm, "overloads")
	for _, raw := range overloads {
		om, ok := record.AsMap(raw)
		if !ok {
			continue
		}
		f.overloads = append(f.overloads, s.newOverload(om, f.doc, f.method))
	}
	return f
}

func (s *State) newOverload(om record.Map, fnDoc string, method bool) *Overload {
	o := &Overload{
		Doc:       record.String(om, "doc"),
		ReturnDoc: record.String(om, "ret_doc"),
		returns:   &typeSlots{},
	}
	if o.Doc == "" {
		o.Doc = fnDoc
	}

	args, _ := record.List(om, "args")
	if method && len(args) > 0 {
		args = args[1:]
	}
	for _, raw := range args {
		am, ok := record.AsMap(raw)
		if !ok {
			continue
		}
		p := &Parameter{
			Name:         record.String(am, "name"),
			Doc:          record.String(am, "doc"),
			DefaultValue: record.String(am, "default_value"),
			Format:       parseParameterFormat(record.String(am, "arg_format")),
			types:        &typeSlots{},
		}
		if ref, ok := am["type"]; ok && ref != nil {
			s.LookupType(ref, p.types.add)
		}
		o.Parameters = append(o.Parameters, p)
	}

	if ref, ok := om["ret_type"]; ok && ref != nil {
		s.LookupType(ref, o.returns.add)
	}
	return o
}

func (s *State) newProperty(rec, vm record.Map, container Container) *Property {
	p := &Property{
		doc:       record.String(vm, "doc"),
		declaring: container,
		types:     &typeSlots{},
	}
	p.loc.Line, p.loc.Column, p.hasLoc = record.Location(rec)
	if ref, ok := vm["type"]; ok && ref != nil {
		s.LookupType(ref, p.types.add)
	}
	return p
}

// newTypeShell creates the Type without reading its members so it can be
// assigned into its container first.
func (s *State) newTypeShell(name string, rec, vm record.Map, container Container) *Type {
	t := &Type{
		name:      name,
		doc:       record.String(vm, "doc"),
		declaring: container,
		builtin:   record.Bool(vm, "builtin"),
		hidden:    record.Bool(vm, "is_hidden"),
	}
	t.loc.Line, t.loc.Column, t.hasLoc = record.Location(rec)
	switch c := container.(type) {
	case *Module:
		t.module = c.name
		if c.builtin {
			t.id = builtinTypeIDFor(name, s.py3())
			t.builtin = true
		}
	case *Type:
		t.module = c.module
	}
	return t
}

func (s *State) populateType(t *Type, vm record.Map) {
	bases, _ := record.List(vm, "bases")
	t.bases = newTypeSlots(len(bases))
	for i, ref := range bases {
		s.LookupType(ref, func(b *Type) { t.bases.fill(i, b) })
	}

	mro, _ := record.List(vm, "mro")
	t.mro = newTypeSlots(len(mro))
	for i, ref := range mro {
		s.LookupType(ref, func(m *Type) { t.mro.fill(i, m) })
	}

	if members, ok := record.Nested(vm, "members"); ok {
		s.readMembers(members, t)
	}
}

// readMembers reads every record of a members mapping into c, in name
// order so repeated loads build identical tables.
func (s *State) readMembers(members record.Map, c interface {
	Container
	assign(string, Member)
}) {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rec, ok := record.AsMap(members[name])
		if !ok {
			s.log.Debug("member.malformed", "name", name, "reason", "record is not a mapping")
			continue
		}
		s.ReadMember(name, rec, c.assign, c)
	}
}

// populateModule reads a module description into m.
func (s *State) populateModule(m *Module, desc record.Map) {
	m.doc = record.String(desc, "doc")
	if members, ok := record.Nested(desc, "members"); ok {
		s.readMembers(members, m)
	}
}
