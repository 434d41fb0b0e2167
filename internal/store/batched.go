package store

import "sync"

// BatchedStore buffers snapshot inserts in memory using fake (negative)
// IDs. It implements DataStore so the exporter can write to it without
// knowing whether it is hitting SQLite or an in-memory buffer.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// Read queries are passed through to the underlying Store, which is safe
// for concurrent reads.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Members    []Member
	Overloads  []Overload
	Parameters []Parameter
	TypeBases  []TypeBase

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

// buffer assigns the next fake ID through setID and appends v to dst.
func buffer[T any](b *BatchedStore, dst *[]T, v *T, setID func(*T, int64)) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextFakeID
	b.nextFakeID--
	setID(v, id)
	*dst = append(*dst, *v)
	return id
}

func (b *BatchedStore) InsertMember(m *Member) (int64, error) {
	return buffer(b, &b.Members, m, func(m *Member, id int64) { m.ID = id }), nil
}

func (b *BatchedStore) InsertOverload(o *Overload) (int64, error) {
	return buffer(b, &b.Overloads, o, func(o *Overload, id int64) { o.ID = id }), nil
}

func (b *BatchedStore) InsertParameter(p *Parameter) (int64, error) {
	return buffer(b, &b.Parameters, p, func(p *Parameter, id int64) { p.ID = id }), nil
}

func (b *BatchedStore) InsertTypeBase(tb *TypeBase) (int64, error) {
	return buffer(b, &b.TypeBases, tb, func(tb *TypeBase, id int64) { tb.ID = id }), nil
}

// ModuleByName passes through to the underlying Store.
func (b *BatchedStore) ModuleByName(name string) (*Module, error) {
	return b.store.ModuleByName(name)
}

// MembersByModule returns the module-level members of a module, merging
// any buffered (not yet committed) members with those already in the
// database.
func (b *BatchedStore) MembersByModule(moduleID int64) ([]*Member, error) {
	dbMembers, err := b.store.MembersByModule(moduleID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Members {
		if b.Members[i].ModuleID == moduleID && b.Members[i].ParentMemberID == nil {
			dbMembers = append(dbMembers, &b.Members[i])
		}
	}
	return dbMembers, nil
}
