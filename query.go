package typedb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrMemberNotFound is returned when a dotted path names a missing member.
var ErrMemberNotFound = errors.New("typedb: member not found")

// QueryBuilder answers completion-time questions against a loaded
// Database. Paths are dotted member paths relative to a module, such as
// "Widget.resize"; an empty path names the module itself.
type QueryBuilder struct {
	db *Database
}

// Completion is one name offered after a dotted expression.
type Completion struct {
	Name string
	Kind Kind
	Doc  string
}

// Signature is one call form of a function, method or constructor.
type Signature struct {
	Name       string
	Doc        string
	Parameters []SignatureParam
	Returns    []string
	ReturnDoc  string
}

// SignatureParam is one parameter of a Signature.
type SignatureParam struct {
	Name    string
	Format  string // "", "*" or "**"
	Default string
	Types   []string
	Doc     string
}

// String renders the signature as name(params) -> returns.
func (s Signature) String() string {
	parts := make([]string, len(s.Parameters))
	for i, p := range s.Parameters {
		var b strings.Builder
		b.WriteString(p.Format)
		b.WriteString(p.Name)
		if len(p.Types) > 0 {
			b.WriteString(": " + strings.Join(p.Types, " | "))
		}
		if p.Default != "" {
			b.WriteString(" = " + p.Default)
		}
		parts[i] = b.String()
	}
	out := s.Name + "(" + strings.Join(parts, ", ") + ")"
	if len(s.Returns) > 0 {
		out += " -> " + strings.Join(s.Returns, " | ")
	}
	return out
}

// Member resolves a dotted path inside module. Intermediate segments that
// name values (constants, properties) are walked through their type.
func (q *QueryBuilder) Member(module, dotted string) (Member, error) {
	mod := q.db.GetModule(module)
	if mod == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, module)
	}
	if dotted == "" {
		return mod, nil
	}
	var cur Member = mod
	for _, seg := range strings.Split(dotted, ".") {
		c := containerOf(cur)
		if c == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrMemberNotFound, module, dotted)
		}
		next := c.GetMember(seg)
		if next == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrMemberNotFound, module, dotted)
		}
		cur = next
	}
	return cur, nil
}

// containerOf returns what completion looks inside for m: modules and
// types themselves, or the type of a constant, property or the first type
// alternative of a multiple member.
func containerOf(m Member) Container {
	switch v := m.(type) {
	case *Module:
		return v
	case *Type:
		return v
	case *Constant:
		if t := v.Type(); t != nil {
			return t
		}
	case *Property:
		if t := v.Type(); t != nil {
			return t
		}
	case *MultipleMembers:
		for _, alt := range v.Members() {
			if c := containerOf(alt); c != nil {
				return c
			}
		}
	}
	return nil
}

// Completions lists the names available after "module.dotted.", sorted by
// name. Types include inherited members. A path that names a function or
// anything else without members yields no completions.
func (q *QueryBuilder) Completions(module, dotted string) ([]Completion, error) {
	m, err := q.Member(module, dotted)
	if err != nil {
		return nil, fmt.Errorf("completions: %w", err)
	}
	c := containerOf(m)
	if c == nil {
		return []Completion{}, nil
	}
	names := c.MemberNames()
	if t, ok := c.(*Type); ok {
		names = t.AllMemberNames()
	}
	out := make([]Completion, 0, len(names))
	for _, name := range names {
		member := c.GetMember(name)
		if member == nil {
			continue
		}
		out = append(out, Completion{Name: name, Kind: member.Kind(), Doc: docOf(member)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Signatures returns the call forms of the member at dotted. Calling a type
// uses its __init__ overloads under the type's name.
func (q *QueryBuilder) Signatures(module, dotted string) ([]Signature, error) {
	m, err := q.Member(module, dotted)
	if err != nil {
		return nil, fmt.Errorf("signatures: %w", err)
	}
	return signaturesOf(m), nil
}

func signaturesOf(m Member) []Signature {
	switch v := m.(type) {
	case *Function:
		return functionSignatures(v.Name(), v)
	case *MethodDescriptor:
		return functionSignatures(v.Name(), v.Function())
	case *Type:
		var fn *Function
		switch init := v.GetMember("__init__").(type) {
		case *MethodDescriptor:
			fn = init.Function()
		case *Function:
			fn = init
		}
		if fn == nil {
			return []Signature{{Name: v.Name(), Doc: v.Doc(), Returns: []string{TypeName(v)}}}
		}
		sigs := functionSignatures(v.Name(), fn)
		for i := range sigs {
			sigs[i].Returns = []string{TypeName(v)}
		}
		return sigs
	case *MultipleMembers:
		var out []Signature
		for _, alt := range v.Members() {
			out = append(out, signaturesOf(alt)...)
		}
		return out
	}
	return nil
}

func functionSignatures(name string, fn *Function) []Signature {
	out := make([]Signature, 0, len(fn.Overloads()))
	for _, o := range fn.Overloads() {
		sig := Signature{Name: name, Doc: o.Doc, ReturnDoc: o.ReturnDoc, Returns: typeNames(o.ReturnTypes())}
		for _, p := range o.Parameters {
			sig.Parameters = append(sig.Parameters, SignatureParam{
				Name:    p.Name,
				Format:  p.Format.String(),
				Default: p.DefaultValue,
				Types:   typeNames(p.Types()),
				Doc:     p.Doc,
			})
		}
		out = append(out, sig)
	}
	return out
}

// TypeOf returns the types the member at dotted evaluates to: a
// constant's or property's type, a function's return types, or a type
// itself. Duplicates are removed, first occurrence wins.
func (q *QueryBuilder) TypeOf(module, dotted string) ([]*Type, error) {
	m, err := q.Member(module, dotted)
	if err != nil {
		return nil, fmt.Errorf("type of: %w", err)
	}
	var out []*Type
	seen := map[*Type]bool{}
	add := func(ts ...*Type) {
		for _, t := range ts {
			if t != nil && !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	var collect func(Member)
	collect = func(m Member) {
		switch v := m.(type) {
		case *Type:
			add(v)
		case *Constant:
			add(v.Type())
		case *Property:
			add(v.Types()...)
		case *Function:
			for _, o := range v.Overloads() {
				add(o.ReturnTypes()...)
			}
		case *MethodDescriptor:
			collect(v.Function())
		case *MultipleMembers:
			for _, alt := range v.Members() {
				collect(alt)
			}
		}
	}
	collect(m)
	return out, nil
}

func docOf(m Member) string {
	if d, ok := m.(interface{ Doc() string }); ok {
		return d.Doc()
	}
	return ""
}
