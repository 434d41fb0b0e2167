package typedb

import (
	"strings"

	core "github.com/jward/typedb/internal/typedb"
	"github.com/jward/typedb/internal/store"
)

// exporter walks one module's member graph into a DataStore. Members are
// written where they are declared; a name bound to a member declared
// elsewhere becomes an alias row pointing at the qualified target.
type exporter struct {
	ds       store.DataStore
	moduleID int64
	module   *core.Module
}

func newExporter(ds store.DataStore, moduleID int64, m *core.Module) *exporter {
	return &exporter{ds: ds, moduleID: moduleID, module: m}
}

func (x *exporter) writeModule() error {
	for _, name := range x.module.MemberNames() {
		if err := x.writeMember(name, x.module.GetMember(name), x.module, nil); err != nil {
			return err
		}
	}
	return nil
}

// writeMember writes m, bound as name inside owner, under parent.
func (x *exporter) writeMember(name string, m core.Member, owner core.Container, parent *int64) error {
	row := &store.Member{ModuleID: x.moduleID, ParentMemberID: parent, Name: name}

	switch v := m.(type) {
	case nil:
		return nil
	case *core.Module:
		row.Kind = store.KindModule
		row.Target = v.Name()
		row.Doc = v.Doc()
		return x.insert(row)
	case *core.Type:
		if v.IsSequence() {
			row.Kind = store.KindConstant
			row.TypeName = TypeName(v)
			return x.insert(row)
		}
		if v.Declaring() != owner || v.Name() != name {
			return x.alias(row, TypeName(v))
		}
		return x.writeType(row, v)
	case *core.Function:
		if v.Declaring() != owner || v.Name() != name {
			return x.alias(row, qualify(v.Declaring(), v.Name()))
		}
		row.Kind = store.KindFunction
		return x.writeFunction(row, v)
	case *core.MethodDescriptor:
		fn := v.Function()
		if fn.Declaring() != owner || fn.Name() != name {
			return x.alias(row, qualify(fn.Declaring(), fn.Name()))
		}
		row.Kind = store.KindMethod
		return x.writeFunction(row, fn)
	case *core.Property:
		row.Kind = store.KindProperty
		row.Doc = v.Doc()
		if t := v.Type(); t != nil {
			row.TypeName = TypeName(t)
		}
		setLocation(row, v)
		row.SignatureHash = store.ComputeSignatureHash(name, row.Kind, row.TypeName, nil, nil)
		return x.insert(row)
	case *core.Constant:
		row.Kind = store.KindConstant
		row.TypeName = TypeName(v.Type())
		row.SignatureHash = store.ComputeSignatureHash(name, row.Kind, row.TypeName, nil, nil)
		return x.insert(row)
	case *core.MultipleMembers:
		if v.Declaring() != owner || v.Name() != name {
			return x.alias(row, qualify(v.Declaring(), v.Name()))
		}
		row.Kind = store.KindMultiple
		if err := x.insert(row); err != nil {
			return err
		}
		for _, alt := range v.Members() {
			if err := x.writeMember(name, alt, owner, &row.ID); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func (x *exporter) insert(row *store.Member) error {
	_, err := x.ds.InsertMember(row)
	return err
}

func (x *exporter) alias(row *store.Member, target string) error {
	row.Kind = store.KindAlias
	row.Target = target
	return x.insert(row)
}

func (x *exporter) writeType(row *store.Member, t *core.Type) error {
	row.Kind = store.KindType
	row.Doc = t.Doc()
	row.IsBuiltin = t.IsBuiltin()
	row.IsHidden = t.IsHidden()
	if id := t.TypeID(); id != core.IDUnknown {
		row.BuiltinTypeID = id.String()
	}
	setLocation(row, t)

	bases := t.Bases()
	names := make([]string, len(bases))
	for i, b := range bases {
		names[i] = TypeName(b)
	}
	row.SignatureHash = store.ComputeSignatureHash(row.Name, row.Kind, strings.Join(names, ","), nil, nil)
	if err := x.insert(row); err != nil {
		return err
	}

	for i, name := range names {
		if _, err := x.ds.InsertTypeBase(&store.TypeBase{MemberID: row.ID, Ordinal: i, Kind: store.BaseDeclared, Name: name}); err != nil {
			return err
		}
	}
	for i, m := range t.Mro() {
		if _, err := x.ds.InsertTypeBase(&store.TypeBase{MemberID: row.ID, Ordinal: i, Kind: store.BaseMro, Name: TypeName(m)}); err != nil {
			return err
		}
	}

	for _, name := range t.MemberNames() {
		if err := x.writeMember(name, t.OwnMember(name), t, &row.ID); err != nil {
			return err
		}
	}
	return nil
}

func (x *exporter) writeFunction(row *store.Member, fn *core.Function) error {
	row.Doc = fn.Doc()
	row.IsBuiltin = fn.IsBuiltin()
	setLocation(row, fn)

	overloads := make([]*store.Overload, len(fn.Overloads()))
	params := make(map[int][]*store.Parameter, len(overloads))
	for i, o := range fn.Overloads() {
		overloads[i] = &store.Overload{Ordinal: i, Doc: o.Doc, ReturnDoc: o.ReturnDoc, ReturnTypes: typeNames(o.ReturnTypes())}
		for j, p := range o.Parameters {
			params[i] = append(params[i], &store.Parameter{
				Ordinal:      j,
				Name:         p.Name,
				Format:       p.Format.String(),
				DefaultValue: p.DefaultValue,
				Doc:          p.Doc,
				Types:        typeNames(p.Types()),
			})
		}
	}
	row.SignatureHash = store.ComputeSignatureHash(row.Name, row.Kind, "", overloads, params)
	if err := x.insert(row); err != nil {
		return err
	}

	for i, o := range overloads {
		o.MemberID = row.ID
		if _, err := x.ds.InsertOverload(o); err != nil {
			return err
		}
		for _, p := range params[i] {
			p.OverloadID = o.ID
			if _, err := x.ds.InsertParameter(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func setLocation(row *store.Member, l core.Locatable) {
	if loc, ok := l.Location(); ok {
		row.Line, row.Col = loc.Line, loc.Column
	}
}

// TypeName renders t for display and storage: the qualified name, with
// index types in brackets for a parametrized sequence.
func TypeName(t *Type) string {
	if t == nil {
		return ""
	}
	if !t.IsSequence() {
		return t.QualifiedName()
	}
	return t.SequenceBase().QualifiedName() + "[" + strings.Join(typeNames(t.IndexTypes()), ", ") + "]"
}

func typeNames(types []*Type) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = TypeName(t)
	}
	return out
}

// qualify joins a member name onto its declaring container's name.
func qualify(c core.Container, name string) string {
	switch v := c.(type) {
	case *core.Type:
		return v.QualifiedName() + "." + name
	case *core.Module:
		return v.Name() + "." + name
	}
	return name
}
