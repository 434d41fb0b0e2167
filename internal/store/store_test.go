package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// insertTestModule inserts a module and returns it with ID set.
func insertTestModule(t *testing.T, s *Store, name string) *Module {
	t.Helper()
	m := &Module{Name: name, Doc: name + " docs", SourceHash: "abc123", ExportedAt: time.Now().UTC().Truncate(time.Second)}
	id, err := s.InsertModule(m)
	require.NoError(t, err)
	require.Positive(t, id)
	return m
}

// insertTestMember inserts a member with minimal required fields.
func insertTestMember(t *testing.T, s *Store, moduleID int64, parent *int64, name, kind string) *Member {
	t.Helper()
	m := &Member{ModuleID: moduleID, ParentMemberID: parent, Name: name, Kind: kind, Line: 3, Col: 4}
	id, err := s.InsertMember(m)
	require.NoError(t, err)
	require.Positive(t, id)
	return m
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"modules", "members", "overloads", "parameters", "type_bases", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestNewStore_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Modules
// =============================================================================

func TestModules_InsertAndLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	os := insertTestModule(t, s, "os")
	insertTestModule(t, s, "builtins")

	got, err := s.ModuleByName("os")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, os.ID, got.ID)
	assert.Equal(t, "os docs", got.Doc)
	assert.Equal(t, "abc123", got.SourceHash)
	assert.False(t, got.ExportedAt.IsZero())

	missing, err := s.ModuleByName("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	byID, err := s.ModuleByID(os.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "os", byID.Name)

	missing, err = s.ModuleByID(os.ID + 100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.Modules()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "builtins", all[0].Name)
	assert.Equal(t, "os", all[1].Name)
}

func TestModules_NameIsUnique(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestModule(t, s, "os")

	_, err := s.InsertModule(&Module{Name: "os"})
	assert.Error(t, err)
}

func TestSetMemberCount(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "os")

	require.NoError(t, s.SetMemberCount(m.ID, 7))
	got, err := s.ModuleByName("os")
	require.NoError(t, err)
	assert.Equal(t, 7, got.MemberCount)
}

// =============================================================================
// Members
// =============================================================================

func TestMembers_ByModuleAndParent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "shapes")

	shape := insertTestMember(t, s, m.ID, nil, "Shape", KindType)
	insertTestMember(t, s, m.ID, nil, "area", KindFunction)
	insertTestMember(t, s, m.ID, &shape.ID, "side", KindConstant)

	top, err := s.MembersByModule(m.ID)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Shape", top[0].Name)
	assert.Equal(t, "area", top[1].Name)
	assert.Nil(t, top[0].ParentMemberID)
	assert.Equal(t, 3, top[0].Line)
	assert.Equal(t, 4, top[0].Col)

	nested, err := s.MembersByParent(shape.ID)
	require.NoError(t, err)
	require.Len(t, nested, 1)
	assert.Equal(t, "side", nested[0].Name)
	require.NotNil(t, nested[0].ParentMemberID)
	assert.Equal(t, shape.ID, *nested[0].ParentMemberID)
}

func TestMembers_ByNameAndSearch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := insertTestModule(t, s, "a")
	b := insertTestModule(t, s, "b")
	insertTestMember(t, s, a.ID, nil, "join", KindFunction)
	insertTestMember(t, s, b.ID, nil, "join", KindFunction)
	insertTestMember(t, s, b.ID, nil, "joinall", KindFunction)
	insertTestMember(t, s, b.ID, nil, "split_all", KindFunction)
	insertTestMember(t, s, b.ID, nil, "splitXall", KindFunction)

	exact, err := s.MembersByName("join")
	require.NoError(t, err)
	assert.Len(t, exact, 2)

	found, total, err := s.SearchMembers("join*", 0, 0)
	require.NoError(t, err)
	assert.Len(t, found, 3)
	assert.Equal(t, 3, total)

	page, total, err := s.SearchMembers("join*", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, 3, total)
	assert.Equal(t, "join", page[0].Name)

	// "_" is literal, not a LIKE wildcard.
	underscore, _, err := s.SearchMembers("split_*", 0, 0)
	require.NoError(t, err)
	require.Len(t, underscore, 1)
	assert.Equal(t, "split_all", underscore[0].Name)
}

func TestMemberByID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "m")
	fn := insertTestMember(t, s, m.ID, nil, "f", KindFunction)

	got, err := s.MemberByID(fn.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f", got.Name)

	missing, err := s.MemberByID(fn.ID + 100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSubtypesOf(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "shapes")
	insertTestMember(t, s, m.ID, nil, "Shape", KindType)
	sq := insertTestMember(t, s, m.ID, nil, "Square", KindType)
	circ := insertTestMember(t, s, m.ID, nil, "Circle", KindType)
	for _, tb := range []*TypeBase{
		{MemberID: sq.ID, Kind: BaseDeclared, Name: "shapes.Shape"},
		{MemberID: circ.ID, Kind: BaseDeclared, Name: "shapes.Shape"},
		{MemberID: circ.ID, Kind: BaseMro, Name: "object"},
	} {
		_, err := s.InsertTypeBase(tb)
		require.NoError(t, err)
	}

	subs, err := s.SubtypesOf("shapes.Shape")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "Circle", subs[0].Name)
	assert.Equal(t, "Square", subs[1].Name)

	none, err := s.SubtypesOf("object")
	require.NoError(t, err)
	assert.Empty(t, none, "mro entries are not declared bases")
}

func TestMemberByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "pkg")
	outer := insertTestMember(t, s, m.ID, nil, "Outer", KindType)
	inner := insertTestMember(t, s, m.ID, &outer.ID, "Inner", KindType)
	insertTestMember(t, s, m.ID, &inner.ID, "method", KindMethod)

	got, err := s.MemberByPath(m.ID, []string{"Outer", "Inner", "method"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindMethod, got.Kind)

	missing, err := s.MemberByPath(m.ID, []string{"Outer", "Nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// Overloads, parameters, bases
// =============================================================================

func TestOverloadsAndParameters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "os.path")
	fn := insertTestMember(t, s, m.ID, nil, "join", KindFunction)

	o := &Overload{MemberID: fn.ID, Ordinal: 0, Doc: "Join.", ReturnTypes: []string{"builtins.str"}}
	_, err := s.InsertOverload(o)
	require.NoError(t, err)
	_, err = s.InsertOverload(&Overload{MemberID: fn.ID, Ordinal: 1})
	require.NoError(t, err)

	_, err = s.InsertParameter(&Parameter{OverloadID: o.ID, Ordinal: 1, Name: "p", Format: "*"})
	require.NoError(t, err)
	_, err = s.InsertParameter(&Parameter{OverloadID: o.ID, Ordinal: 0, Name: "a", Types: []string{"builtins.str", "builtins.bytes"}})
	require.NoError(t, err)

	overloads, err := s.OverloadsByMember(fn.ID)
	require.NoError(t, err)
	require.Len(t, overloads, 2)
	assert.Equal(t, "Join.", overloads[0].Doc)
	assert.Equal(t, []string{"builtins.str"}, overloads[0].ReturnTypes)
	assert.Empty(t, overloads[1].ReturnTypes)

	params, err := s.ParametersByOverload(o.ID)
	require.NoError(t, err)
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0].Name)
	assert.Equal(t, []string{"builtins.str", "builtins.bytes"}, params[0].Types)
	assert.Equal(t, "*", params[1].Format)
}

func TestBasesByType_BasesBeforeMro(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	m := insertTestModule(t, s, "m")
	typ := insertTestMember(t, s, m.ID, nil, "B", KindType)

	for _, tb := range []*TypeBase{
		{MemberID: typ.ID, Ordinal: 0, Kind: BaseMro, Name: "m.B"},
		{MemberID: typ.ID, Ordinal: 1, Kind: BaseMro, Name: "m.A"},
		{MemberID: typ.ID, Ordinal: 0, Kind: BaseDeclared, Name: "m.A"},
	} {
		_, err := s.InsertTypeBase(tb)
		require.NoError(t, err)
	}

	bases, err := s.BasesByType(typ.ID)
	require.NoError(t, err)
	require.Len(t, bases, 3)
	assert.Equal(t, BaseDeclared, bases[0].Kind)
	assert.Equal(t, "m.B", bases[1].Name)
	assert.Equal(t, "m.A", bases[2].Name)
}

// =============================================================================
// Metadata
// =============================================================================

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.GetMetadata("language_version")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetMetadata("language_version", "3.2"))
	require.NoError(t, s.SetMetadata("language_version", "2.7"))

	v, ok, err := s.GetMetadata("language_version")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2.7", v)
}

// =============================================================================
// Deletion and dependents
// =============================================================================

func TestDeleteModuleData(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	keep := insertTestModule(t, s, "keep")
	insertTestMember(t, s, keep.ID, nil, "k", KindFunction)

	gone := insertTestModule(t, s, "gone")
	typ := insertTestMember(t, s, gone.ID, nil, "T", KindType)
	nested := insertTestMember(t, s, gone.ID, &typ.ID, "Inner", KindType)
	insertTestMember(t, s, gone.ID, &nested.ID, "deep", KindMethod)
	o := &Overload{MemberID: typ.ID}
	_, err := s.InsertOverload(o)
	require.NoError(t, err)
	_, err = s.InsertParameter(&Parameter{OverloadID: o.ID, Name: "x"})
	require.NoError(t, err)
	_, err = s.InsertTypeBase(&TypeBase{MemberID: typ.ID, Kind: BaseDeclared, Name: "builtins.object"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteModuleData(gone.ID))

	m, err := s.ModuleByName("gone")
	require.NoError(t, err)
	assert.Nil(t, m)

	for _, table := range []string{"members", "overloads", "parameters", "type_bases"} {
		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
		want := 0
		if table == "members" {
			want = 1
		}
		assert.Equal(t, want, n, table)
	}
}

func TestModulesReferencing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	lib := insertTestModule(t, s, "lib")
	insertTestMember(t, s, lib.ID, nil, "Conn", KindType)

	viaConst := insertTestModule(t, s, "a")
	_, err := s.InsertMember(&Member{ModuleID: viaConst.ID, Name: "c", Kind: KindConstant, TypeName: "lib.Conn"})
	require.NoError(t, err)

	viaBase := insertTestModule(t, s, "b")
	typ := insertTestMember(t, s, viaBase.ID, nil, "Sub", KindType)
	_, err = s.InsertTypeBase(&TypeBase{MemberID: typ.ID, Kind: BaseDeclared, Name: "lib.Conn"})
	require.NoError(t, err)

	viaParam := insertTestModule(t, s, "c")
	fn := insertTestMember(t, s, viaParam.ID, nil, "open", KindFunction)
	o := &Overload{MemberID: fn.ID}
	_, err = s.InsertOverload(o)
	require.NoError(t, err)
	_, err = s.InsertParameter(&Parameter{OverloadID: o.ID, Name: "conn", Types: []string{"lib.Conn"}})
	require.NoError(t, err)

	viaModule := insertTestModule(t, s, "d")
	_, err = s.InsertMember(&Member{ModuleID: viaModule.ID, Name: "lib", Kind: KindModule, Target: "lib"})
	require.NoError(t, err)

	unrelated := insertTestModule(t, s, "libx")
	_, err = s.InsertMember(&Member{ModuleID: unrelated.ID, Name: "c", Kind: KindConstant, TypeName: "libx.Other"})
	require.NoError(t, err)

	got, err := s.ModulesReferencing("lib")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestModulesReferencing_SubmodulesAndSequences(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	osMod := insertTestModule(t, s, "os")
	insertTestMember(t, s, osMod.ID, nil, "Stat", KindType)
	osPath := insertTestModule(t, s, "os.path")
	insertTestMember(t, s, osPath.ID, nil, "Info", KindType)

	viaSubmodule := insertTestModule(t, s, "a")
	_, err := s.InsertMember(&Member{ModuleID: viaSubmodule.ID, Name: "i", Kind: KindConstant, TypeName: "os.path.Info"})
	require.NoError(t, err)

	viaSequence := insertTestModule(t, s, "b")
	_, err = s.InsertMember(&Member{ModuleID: viaSequence.ID, Name: "stats", Kind: KindConstant, TypeName: "list[os.Stat]"})
	require.NoError(t, err)

	viaReturn := insertTestModule(t, s, "c")
	fn := insertTestMember(t, s, viaReturn.ID, nil, "walk", KindFunction)
	_, err = s.InsertOverload(&Overload{MemberID: fn.ID, ReturnTypes: []string{"dict[str, os.Stat]"}})
	require.NoError(t, err)

	got, err := s.ModulesReferencing("os")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	got, err = s.ModulesReferencing("os.path")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

// =============================================================================
// Hashing
// =============================================================================

func TestComputeSignatureHash(t *testing.T) {
	t.Parallel()

	overloads := []*Overload{{Ordinal: 0, ReturnTypes: []string{"builtins.str"}}}
	params := map[int][]*Parameter{0: {{Ordinal: 0, Name: "a", Types: []string{"builtins.str"}}}}

	h1 := ComputeSignatureHash("join", KindFunction, "", overloads, params)
	h2 := ComputeSignatureHash("join", KindFunction, "", overloads, params)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)

	renamed := map[int][]*Parameter{0: {{Ordinal: 0, Name: "b", Types: []string{"builtins.str"}}}}
	assert.NotEqual(t, h1, ComputeSignatureHash("join", KindFunction, "", overloads, renamed))
	assert.NotEqual(t, h1, ComputeSignatureHash("join", KindMethod, "", overloads, params))

	// Docs do not participate.
	documented := []*Overload{{Ordinal: 0, Doc: "Join.", ReturnTypes: []string{"builtins.str"}}}
	assert.Equal(t, h1, ComputeSignatureHash("join", KindFunction, "", documented, params))
}

func TestHashSource(t *testing.T) {
	t.Parallel()
	assert.Equal(t, HashSource([]byte("x")), HashSource([]byte("x")))
	assert.NotEqual(t, HashSource([]byte("x")), HashSource([]byte("y")))
}
