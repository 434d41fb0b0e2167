package typedb

// Constant is a data member: a value whose only known property is its type.
// Constants are shared per Type across a State and any states layered over
// it, so pointer equality means "same type".
type Constant struct {
	typ *Type
}

func (c *Constant) Kind() Kind  { return KindConstant }
func (c *Constant) Type() *Type { return c.typ }

// Constant returns the shared Constant for t, creating it on first use.
func (s *State) Constant(t *Type) *Constant {
	if c := s.findConstant(t); c != nil {
		return c
	}
	s.constMu.Lock()
	defer s.constMu.Unlock()
	if c, ok := s.constants[t]; ok {
		return c
	}
	c := &Constant{typ: t}
	s.constants[t] = c
	return c
}

func (s *State) findConstant(t *Type) *Constant {
	for st := s; st != nil; st = st.inner {
		st.constMu.Lock()
		c, ok := st.constants[t]
		st.constMu.Unlock()
		if ok {
			return c
		}
	}
	return nil
}
