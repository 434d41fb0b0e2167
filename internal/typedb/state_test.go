package typedb

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/typedb/internal/record"
	"github.com/jward/typedb/internal/version"
)

// =============================================================================
// Builtin module
// =============================================================================

func TestLoadBuiltins_TypeIDs(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t, WithLanguageVersion(py32))

	b := s.BuiltinModule()
	require.NotNil(t, b)
	assert.Equal(t, "builtins", b.Name())
	assert.True(t, b.IsBuiltin())

	list, ok := b.GetMember("list").(*Type)
	require.True(t, ok)
	assert.Equal(t, IDList, list.TypeID())

	str, ok := b.GetMember("str").(*Type)
	require.True(t, ok)
	assert.Equal(t, IDUnicode, str.TypeID())

	obj := s.ObjectType()
	require.NotNil(t, obj)
	assert.Equal(t, IDObject, obj.TypeID())
}

func TestLoadBuiltins_Python2Dialect(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t, WithLanguageVersion(version.Version{Major: 2, Minor: 7}))

	b := s.GetModule("__builtin__")
	require.NotNil(t, b)
	str, ok := b.GetMember("str").(*Type)
	require.True(t, ok)
	assert.Equal(t, IDBytes, str.TypeID())
	assert.Equal(t, "long", s.BuiltinTypeName(IDLong))
	assert.Equal(t, "unicode", s.BuiltinTypeName(IDUnicode))

	// Both dialect names reach the builtin module.
	assert.Same(t, b, s.GetModule("builtins"))
}

func TestBuiltinTypeName_Python3(t *testing.T) {
	t.Parallel()
	s := newTestState(t, WithLanguageVersion(py32))

	assert.Equal(t, "int", s.BuiltinTypeName(IDLong))
	assert.Equal(t, "str", s.BuiltinTypeName(IDUnicode))
	assert.Equal(t, "bytes", s.BuiltinTypeName(IDBytes))
	assert.Equal(t, "str_iterator", s.BuiltinTypeName(IDUnicodeIterator))
	assert.Equal(t, "object", s.BuiltinTypeName(IDObject))
	assert.Equal(t, "", s.BuiltinTypeName(IDUnknown))
}

func TestBuiltinTypeIDRoundTrip(t *testing.T) {
	t.Parallel()

	for _, py3 := range []bool{true, false} {
		for id := IDObject; id <= IDCallableIterator; id++ {
			if id == IDStr || id == IDStrIterator {
				continue
			}
			name := builtinTypeName(id, py3)
			require.NotEmpty(t, name, "id %s", id)
			got := builtinTypeIDFor(name, py3)
			if py3 && id == IDLong {
				assert.Equal(t, IDInt, got)
				continue
			}
			assert.Equal(t, id, got, "name %q py3=%v", name, py3)
		}
	}

	id, ok := ParseBuiltinTypeID("NoneType")
	require.True(t, ok)
	assert.Equal(t, IDNoneType, id)
	assert.Equal(t, "List", IDList.String())
}

func TestHiddenBuiltinMembers(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t)
	b := s.BuiltinModule()

	assert.Nil(t, b.GetMember("_hidden"))
	assert.NotNil(t, b.GetAnyMember("_hidden"))
	assert.NotContains(t, b.MemberNames(), "_hidden")

	var got *Type
	s.LookupType(TypeRef("", "_hidden"), func(tt *Type) { got = tt })
	require.NotNil(t, got)
	assert.True(t, got.IsHidden())
}

func TestDefaultDatabaseAliases(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t, WithLanguageVersion(py32), WithDefaultDatabase(true))
	mods := load(t, s, mod("_pickle", record.Map{}), mod("_thread", record.Map{}))

	assert.Same(t, mods[0], s.GetModule("cPickle"))
	assert.Same(t, mods[1], s.GetModule("thread"))

	plain := newLoadedState(t, WithLanguageVersion(py32))
	load(t, plain, mod("_pickle", record.Map{}))
	assert.Nil(t, plain.GetModule("cPickle"))
}

// =============================================================================
// Module table
// =============================================================================

func TestModulesPublishedAtEndOfBatch(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t)

	m := s.NewModule("late", false)
	require.True(t, s.BeginLoad(time.Second, m))
	assert.Nil(t, s.GetModule("late"), "staged modules are not published")
	assert.Same(t, m, s.findModule("late"), "staged modules are visible to the resolver")
	assert.Equal(t, 1, s.Loading())
	s.EndLoad(m)

	assert.Same(t, m, s.GetModule("late"))
	assert.Equal(t, 0, s.Loading())
}

func TestAddRemoveModule(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	m := s.NewModule("extra", false)
	s.AddModule(m)
	assert.Same(t, m, s.GetModule("extra"))
	assert.Contains(t, s.ModuleNames(), "extra")

	assert.True(t, s.RemoveModule("extra"))
	assert.False(t, s.RemoveModule("extra"))
	assert.Nil(t, s.GetModule("extra"))
}

func TestReloadReplacesModule(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t)

	first := load(t, s, mod("m", record.Map{"a": funcRec()}))[0]
	second := load(t, s, mod("m", record.Map{"b": funcRec()}))[0]

	got := s.GetModule("m")
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)
	assert.Nil(t, got.GetMember("a"))
	assert.NotNil(t, got.GetMember("b"))
}

// =============================================================================
// Load coordinator
// =============================================================================

func TestBeginLoad_Timeout(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	a := s.NewModule("a", false)
	require.True(t, s.BeginLoad(time.Second, a))

	b := s.NewModule("b", false)
	assert.False(t, s.BeginLoad(20*time.Millisecond, b))
	assert.False(t, s.BeginLoad(0, b))
	_, ok := s.Load(10*time.Millisecond, mod("c", record.Map{}))
	assert.False(t, ok)

	s.EndLoad(a)
	require.True(t, s.BeginLoad(0, b))
	s.EndLoad(b)
	assert.NotNil(t, s.GetModule("b"))
}

func TestBeginLoad_WaitsForBatch(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	a := s.NewModule("a", false)
	require.True(t, s.BeginLoad(time.Second, a))

	done := make(chan bool)
	go func() {
		b := s.NewModule("b", false)
		ok := s.BeginLoad(-1, b)
		if ok {
			s.EndLoad(b)
		}
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	s.EndLoad(a)
	assert.True(t, <-done)
	assert.NotNil(t, s.GetModule("b"))
}

func TestEndLoad_DrainsOnlyWhenBatchEmpty(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t)

	a := s.NewModule("a", false)
	b := s.NewModule("b", false)
	require.True(t, s.BeginLoad(time.Second, a, b))

	s.populateModule(a, record.Map{"members": record.Map{"X": typeref("b", "W")}})
	s.EndLoad(a)
	assert.Nil(t, a.GetMember("X"), "no drain while b is still loading")
	assert.Nil(t, s.GetModule("a"))

	s.populateModule(b, record.Map{"members": record.Map{"W": typeRec(nil)}})
	s.EndLoad(b)
	require.NotNil(t, a.GetMember("X"))
	assert.Same(t, b.GetMember("W"), a.GetMember("X"))
}

func TestEndLoad_UnknownModuleIgnored(t *testing.T) {
	t.Parallel()
	s := newTestState(t)
	s.EndLoad(s.NewModule("never-begun", false))
	assert.True(t, s.Quiesce(0), "lock must not have been released twice or taken")
}

// =============================================================================
// Overlay
// =============================================================================

func TestOverlay_FallsThroughToInner(t *testing.T) {
	t.Parallel()
	inner := newLoadedState(t, WithLanguageVersion(py32))
	shared := load(t, inner, mod("shared", record.Map{
		"Base": typeRec(nil, objRef()),
		"n":    dataRec(TypeRef("", "int")),
	}))[0]

	outer := NewOverlay(inner)
	assert.Same(t, inner, outer.Inner())
	v, ok := outer.LanguageVersion()
	require.True(t, ok)
	assert.Equal(t, py32, v)

	local := load(t, outer, mod("local", record.Map{
		"Derived": typeRec(nil, TypeRef("shared", "Base")),
		"m":       dataRec(TypeRef("", "int")),
	}))[0]

	assert.Same(t, shared, outer.GetModule("shared"))
	assert.Same(t, inner.BuiltinModule(), outer.BuiltinModule())
	assert.Nil(t, inner.GetModule("local"))

	derived := local.GetMember("Derived").(*Type)
	require.Len(t, derived.Bases(), 1)
	assert.Same(t, shared.GetMember("Base"), derived.Bases()[0])

	// Constants are shared with the inner state.
	assert.Same(t, shared.GetMember("n"), local.GetMember("m"))

	assert.Equal(t, []string{"builtins", "local", "shared"}, outer.ModuleNames())
}

// =============================================================================
// Corruption listeners
// =============================================================================

func TestCorruptionListeners(t *testing.T) {
	t.Parallel()
	s := newTestState(t)

	var live, gone, cancelled atomic.Int32
	s.ListenForCorruption(func() bool { live.Add(1); return true })
	s.ListenForCorruption(func() bool { gone.Add(1); return false })
	s.ListenForCorruption(func() bool { panic("listener failure") })
	cancel := s.ListenForCorruption(func() bool { cancelled.Add(1); return true })
	cancel()
	assert.Equal(t, 3, s.Listeners())

	assert.NotPanics(t, s.OnDatabaseCorrupt)
	assert.Equal(t, 1, s.Listeners(), "dead and panicking listeners are pruned")

	s.OnDatabaseCorrupt()
	assert.Equal(t, int32(2), live.Load())
	assert.Equal(t, int32(1), gone.Load())
	assert.Equal(t, int32(0), cancelled.Load())
}

func TestDrain_KeepsEscalationLevel(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t, WithFixupLimit(2))

	a := load(t, s, mod("a", record.Map{"X": typeref("later", "W")}))[0]
	require.Equal(t, 1, s.PendingFixups())

	for range 5 {
		require.True(t, s.Drain(time.Second))
	}
	assert.Nil(t, a.GetMember("X"))
	assert.Equal(t, 1, s.PendingFixups())

	later := load(t, s, mod("later", record.Map{"W": typeRec(nil)}))[0]
	assert.Same(t, later.GetMember("W"), a.GetMember("X"))
}

func TestQuiesce_Escalates(t *testing.T) {
	t.Parallel()
	s := newLoadedState(t, WithFixupLimit(2))

	a := load(t, s, mod("a", record.Map{"X": typeref("later", "W")}))[0]
	require.True(t, s.Quiesce(time.Second))
	assert.Same(t, s.ObjectType(), a.GetMember("X"))
	assert.Zero(t, s.PendingFixups())
}
