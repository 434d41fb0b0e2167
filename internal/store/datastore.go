package store

// DataStore is the interface for snapshot writes. Both Store (direct
// SQLite) and BatchedStore (in-memory buffering for parallel export)
// implement this interface.
type DataStore interface {
	// Snapshot inserts; each returns the assigned ID.
	InsertMember(m *Member) (int64, error)
	InsertOverload(o *Overload) (int64, error)
	InsertParameter(p *Parameter) (int64, error)
	InsertTypeBase(b *TypeBase) (int64, error)

	// Queries needed while a module is being written.
	ModuleByName(name string) (*Module, error)
	MembersByModule(moduleID int64) ([]*Member, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)
