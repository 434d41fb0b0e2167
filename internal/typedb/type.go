package typedb

// Type is a class, either declared by a description file or one of the
// canonical builtin types. A Type is assigned into its container before its
// own members, bases and mro are read, so references back to the type under
// construction resolve to the same pointer.
//
// A parametrized sequence type (list[int], tuple[str, int]) is a distinct
// Type whose Base is the unparametrized type and whose IndexTypes hold the
// element types.
type Type struct {
	name      string
	doc       string
	id        BuiltinTypeID
	declaring Container
	module    string
	builtin   bool
	hidden    bool
	loc       Location
	hasLoc    bool

	members memberTable
	bases   *typeSlots
	mro     *typeSlots

	base  *Type
	index *typeSlots
}

func (t *Type) Kind() Kind                   { return KindType }
func (t *Type) Name() string                 { return t.name }
func (t *Type) Doc() string                  { return t.doc }
func (t *Type) TypeID() BuiltinTypeID        { return t.id }
func (t *Type) DeclaringModule() string      { return t.module }
func (t *Type) Declaring() Container         { return t.declaring }
func (t *Type) IsBuiltin() bool              { return t.builtin }
func (t *Type) IsHidden() bool               { return t.hidden }
func (t *Type) Location() (Location, bool)   { return t.loc, t.hasLoc }
func (t *Type) IsSequence() bool             { return t.base != nil }
func (t *Type) SequenceBase() *Type          { return t.base }
func (t *Type) Bases() []*Type               { return t.bases.resolved() }
func (t *Type) Mro() []*Type                 { return t.mro.resolved() }
func (t *Type) IndexTypes() []*Type          { return t.index.resolved() }
func (t *Type) assign(name string, m Member) { t.members.set(name, m) }

// QualifiedName is module.name, or just name for builtins.
func (t *Type) QualifiedName() string {
	if t.module == "" || t.builtin {
		return t.name
	}
	return t.module + "." + t.name
}

// OwnMember returns a member declared directly on t.
func (t *Type) OwnMember(name string) Member {
	if t.base != nil {
		return t.base.OwnMember(name)
	}
	return t.members.get(name)
}

// GetMember returns a member declared on t or inherited through its mro,
// falling back to the declared bases when no mro was recorded.
func (t *Type) GetMember(name string) Member {
	if t.base != nil {
		return t.base.GetMember(name)
	}
	return t.lookup(name, map[*Type]bool{})
}

func (t *Type) lookup(name string, seen map[*Type]bool) Member {
	if seen[t] {
		return nil
	}
	seen[t] = true
	if m := t.members.get(name); m != nil {
		return m
	}
	for _, c := range t.Mro() {
		if c == t || seen[c] {
			continue
		}
		seen[c] = true
		if m := c.members.get(name); m != nil {
			return m
		}
	}
	for _, b := range t.Bases() {
		if m := b.lookup(name, seen); m != nil {
			return m
		}
	}
	return nil
}

// MemberNames lists the members declared directly on t in declaration
// order.
func (t *Type) MemberNames() []string {
	if t.base != nil {
		return t.base.MemberNames()
	}
	return t.members.names(nil)
}

// AllMemberNames lists declared and inherited member names, nearest first,
// without duplicates.
func (t *Type) AllMemberNames() []string {
	if t.base != nil {
		return t.base.AllMemberNames()
	}
	var out []string
	seen := map[string]bool{}
	visited := map[*Type]bool{}
	var walk func(*Type)
	walk = func(c *Type) {
		if visited[c] {
			return
		}
		visited[c] = true
		for _, n := range c.members.names(nil) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
		for _, m := range c.Mro() {
			walk(m)
		}
		for _, b := range c.Bases() {
			walk(b)
		}
	}
	walk(t)
	return out
}
