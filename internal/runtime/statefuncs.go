package runtime

import (
	"context"
	"strings"

	"github.com/risor-io/risor/object"

	core "github.com/jward/typedb/internal/typedb"
)

// Host functions over the live type database. Members are handed to
// scripts as plain maps so scripts never hold resolver internals.

func makeModuleNamesFn(s *core.State) *object.Builtin {
	return object.NewBuiltin("module_names", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("module_names", 0, len(args))
		}
		return stringList(s.ModuleNames())
	})
}

// get_module(name) → map or nil
func makeGetModuleFn(s *core.State) *object.Builtin {
	return object.NewBuiltin("get_module", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("get_module", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("get_module: %v", err)
		}
		m := s.GetModule(name)
		if m == nil {
			return object.Nil
		}
		return describeMember(m.Name(), m, 0)
	})
}

// get_member(module, path) → map or nil
//
// path is dotted; values are walked through their type, so
// get_member("app", "canvas.side") works when canvas is a constant.
func makeGetMemberFn(s *core.State) *object.Builtin {
	return object.NewBuiltin("get_member", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("get_member", 2, len(args))
		}
		module, err := toString(args[0])
		if err != nil {
			return object.Errorf("get_member: %v", err)
		}
		path, err := toString(args[1])
		if err != nil {
			return object.Errorf("get_member: %v", err)
		}
		mod := s.GetModule(module)
		if mod == nil {
			return object.Nil
		}
		name, m := walkPath(mod, path)
		if m == nil {
			return object.Nil
		}
		return describeMember(name, m, 0)
	})
}

// lookup_type(module, name) → map or nil
//
// An empty module names the builtin module. Members that are not types
// resolve to object, as type references do during loading.
func makeLookupTypeFn(s *core.State) *object.Builtin {
	return object.NewBuiltin("lookup_type", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("lookup_type", 2, len(args))
		}
		module, err := toString(args[0])
		if err != nil {
			return object.Errorf("lookup_type: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("lookup_type: %v", err)
		}

		// Only resolve what already exists so a script never queues a
		// fixup that outlives it.
		if !typeExists(s, module, name) {
			return object.Nil
		}
		var found *core.Type
		s.LookupType(core.TypeRef(module, name), func(t *core.Type) { found = t })
		if found == nil {
			return object.Nil
		}
		return describeMember(found.Name(), found, 0)
	})
}

// builtin_type_name(id) → string
//
// id is a builtin type id name such as "Unicode" or "Long"; the result is
// the name the target dialect's builtin module uses for it.
func makeBuiltinTypeNameFn(s *core.State) *object.Builtin {
	return object.NewBuiltin("builtin_type_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("builtin_type_name", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("builtin_type_name: %v", err)
		}
		id, ok := core.ParseBuiltinTypeID(name)
		if !ok {
			return object.Errorf("builtin_type_name: unknown builtin type %q", name)
		}
		return object.NewString(s.BuiltinTypeName(id))
	})
}

func typeExists(s *core.State, module, name string) bool {
	var c core.Container
	if module == "" {
		if b := s.BuiltinModule(); b != nil {
			c = b
		}
	} else if m := s.GetModule(module); m != nil {
		c = m
	} else if i := strings.IndexByte(module, '.'); i > 0 {
		// class path: "pkg.Outer" names a type inside module pkg
		if m := s.GetModule(module[:i]); m != nil {
			_, member := walkPath(m, module[i+1:])
			if t, ok := member.(*core.Type); ok {
				c = t
			}
		}
	}
	if c == nil {
		return false
	}
	if b, ok := c.(*core.Module); ok && b.IsBuiltin() {
		return b.GetAnyMember(name) != nil
	}
	return c.GetMember(name) != nil
}

// walkPath resolves a dotted path from a module, returning the last
// segment's name and member.
func walkPath(mod *core.Module, path string) (string, core.Member) {
	if path == "" {
		return mod.Name(), mod
	}
	var cur core.Member = mod
	var name string
	for _, seg := range strings.Split(path, ".") {
		c := containerOf(cur)
		if c == nil {
			return "", nil
		}
		cur = c.GetMember(seg)
		if cur == nil {
			return "", nil
		}
		name = seg
	}
	return name, cur
}

func containerOf(m core.Member) core.Container {
	switch v := m.(type) {
	case *core.Module:
		return v
	case *core.Type:
		return v
	case *core.Constant:
		if t := v.Type(); t != nil {
			return t
		}
	case *core.Property:
		if t := v.Type(); t != nil {
			return t
		}
	case *core.MultipleMembers:
		for _, alt := range v.Members() {
			if c := containerOf(alt); c != nil {
				return c
			}
		}
	}
	return nil
}

// maxDescribeDepth bounds nesting of multiple-member alternatives.
const maxDescribeDepth = 4

// describeMember converts m, bound as name, to a Risor map.
func describeMember(name string, m core.Member, depth int) object.Object {
	out := map[string]object.Object{
		"name": object.NewString(name),
		"kind": object.NewString(m.Kind().String()),
	}
	switch v := m.(type) {
	case *core.Module:
		out["doc"] = object.NewString(v.Doc())
		out["builtin"] = object.NewBool(v.IsBuiltin())
		out["members"] = stringList(v.MemberNames())
	case *core.Type:
		out["doc"] = object.NewString(v.Doc())
		out["qualified_name"] = object.NewString(typeName(v))
		out["module"] = object.NewString(v.DeclaringModule())
		out["builtin"] = object.NewBool(v.IsBuiltin())
		out["type_id"] = object.NewString(v.TypeID().String())
		out["bases"] = typeList(v.Bases())
		out["members"] = stringList(v.AllMemberNames())
	case *core.Function:
		out["doc"] = object.NewString(v.Doc())
		out["overloads"] = overloadList(v)
	case *core.MethodDescriptor:
		out["doc"] = object.NewString(v.Doc())
		out["static"] = object.NewBool(v.Function().IsStatic())
		out["overloads"] = overloadList(v.Function())
	case *core.Property:
		out["doc"] = object.NewString(v.Doc())
		out["types"] = typeList(v.Types())
	case *core.Constant:
		out["type"] = object.NewString(typeName(v.Type()))
	case *core.MultipleMembers:
		out["closed"] = object.NewBool(v.IsClosed())
		alts := []object.Object{}
		if depth < maxDescribeDepth {
			for _, alt := range v.Members() {
				alts = append(alts, describeMember(name, alt, depth+1))
			}
		}
		out["members"] = object.NewList(alts)
	}
	return object.NewMap(out)
}

func overloadList(fn *core.Function) object.Object {
	items := make([]object.Object, 0, len(fn.Overloads()))
	for _, o := range fn.Overloads() {
		params := make([]object.Object, 0, len(o.Parameters))
		for _, p := range o.Parameters {
			params = append(params, object.NewMap(map[string]object.Object{
				"name":    object.NewString(p.Name),
				"format":  object.NewString(p.Format.String()),
				"default": object.NewString(p.DefaultValue),
				"types":   typeList(p.Types()),
			}))
		}
		items = append(items, object.NewMap(map[string]object.Object{
			"doc":     object.NewString(o.Doc),
			"params":  object.NewList(params),
			"returns": typeList(o.ReturnTypes()),
		}))
	}
	return object.NewList(items)
}

func typeName(t *core.Type) string {
	if t == nil {
		return ""
	}
	if !t.IsSequence() {
		return t.QualifiedName()
	}
	idx := make([]string, 0, len(t.IndexTypes()))
	for _, i := range t.IndexTypes() {
		idx = append(idx, typeName(i))
	}
	return t.SequenceBase().QualifiedName() + "[" + strings.Join(idx, ", ") + "]"
}

func typeList(types []*core.Type) object.Object {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = typeName(t)
	}
	return stringList(names)
}

func stringList(items []string) object.Object {
	out := make([]object.Object, len(items))
	for i, s := range items {
		out[i] = object.NewString(s)
	}
	return object.NewList(out)
}
