package typedb

// Module is a named container of members. One Module is built per
// description file; a reload builds a new Module and replaces the old one.
type Module struct {
	name    string
	doc     string
	builtin bool
	members memberTable
}

func newModule(name string, builtin bool) *Module {
	return &Module{name: name, builtin: builtin}
}

func (m *Module) Kind() Kind      { return KindModule }
func (m *Module) Name() string    { return m.name }
func (m *Module) Doc() string     { return m.doc }
func (m *Module) IsBuiltin() bool { return m.builtin }

// GetMember returns the named member. Hidden builtin types are not visible
// here; use GetAnyMember.
func (m *Module) GetMember(name string) Member {
	mem := m.members.get(name)
	if isHidden(mem) {
		return nil
	}
	return mem
}

// GetAnyMember returns the named member including hidden ones.
func (m *Module) GetAnyMember(name string) Member {
	return m.members.get(name)
}

// MemberNames lists visible members in declaration order.
func (m *Module) MemberNames() []string {
	return m.members.names(func(_ string, mem Member) bool { return isHidden(mem) })
}

// Len is the number of members including hidden ones.
func (m *Module) Len() int {
	return m.members.len()
}

func (m *Module) assign(name string, mem Member) {
	m.members.set(name, mem)
}

func isHidden(mem Member) bool {
	t, ok := mem.(*Type)
	return ok && t.hidden
}
