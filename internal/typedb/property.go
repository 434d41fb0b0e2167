package typedb

// Property is a data descriptor declared on a type.
type Property struct {
	doc       string
	declaring Container
	loc       Location
	hasLoc    bool
	types     *typeSlots
}

func (p *Property) Kind() Kind                 { return KindProperty }
func (p *Property) Doc() string                { return p.doc }
func (p *Property) Declaring() Container       { return p.declaring }
func (p *Property) Location() (Location, bool) { return p.loc, p.hasLoc }
func (p *Property) Types() []*Type             { return p.types.resolved() }

// Type returns the first resolved type, or nil while it is still pending.
func (p *Property) Type() *Type {
	if ts := p.Types(); len(ts) > 0 {
		return ts[0]
	}
	return nil
}
