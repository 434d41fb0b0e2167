package typedb

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jward/typedb/internal/record"
	"github.com/jward/typedb/internal/version"
)

var py32 = version.Version{Major: 3, Minor: 2}

func versionOf(major, minor int) version.Version {
	return version.Version{Major: major, Minor: minor}
}

func newTestState(t *testing.T, opts ...Option) *State {
	t.Helper()
	base := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	return NewState(append(base, opts...)...)
}

// newLoadedState returns a state with the builtin module already loaded.
func newLoadedState(t *testing.T, opts ...Option) *State {
	t.Helper()
	s := newTestState(t, opts...)
	loadBuiltins(t, s)
	return s
}

func loadBuiltins(t *testing.T, s *State) *Module {
	t.Helper()
	mods, ok := s.Load(time.Second, ModuleDesc{Name: s.BuiltinModuleName(), Builtin: true, Desc: builtinDesc()})
	require.True(t, ok)
	return mods[0]
}

func load(t *testing.T, s *State, descs ...ModuleDesc) []*Module {
	t.Helper()
	mods, ok := s.Load(time.Second, descs...)
	require.True(t, ok)
	return mods
}

func mod(name string, members record.Map) ModuleDesc {
	return ModuleDesc{Name: name, Desc: record.Map{"members": members}}
}

func builtinDesc() record.Map {
	return record.Map{
		"doc": "Built-in functions, exceptions, and other objects.",
		"members": record.Map{
			"object":    typeRec(nil),
			"type":      typeRec(nil, objRef()),
			"int":       typeRec(record.Map{"bit_length": methodRec("self")}, objRef()),
			"str":       typeRec(record.Map{"upper": methodRec("self")}, objRef()),
			"float":     typeRec(nil, objRef()),
			"bool":      typeRec(nil, []any{nil, "int"}),
			"list":      typeRec(record.Map{"append": methodRec("self", "object")}, objRef()),
			"tuple":     typeRec(nil, objRef()),
			"dict":      typeRec(nil, objRef()),
			"NoneType":  typeRec(nil, objRef()),
			"function":  typeRec(nil, objRef()),
			"generator": typeRec(nil, objRef()),
			"_hidden": record.Map{"kind": "type", "value": record.Map{
				"is_hidden": true,
			}},
			"len": funcRec("obj"),
		},
	}
}

func objRef() []any { return []any{nil, "object"} }

func typeRec(members record.Map, bases ...[]any) record.Map {
	v := record.Map{}
	if members != nil {
		v["members"] = members
	}
	if len(bases) > 0 {
		l := make([]any, len(bases))
		for i, b := range bases {
			l[i] = b
		}
		v["bases"] = l
	}
	return record.Map{"kind": "type", "value": v}
}

func overload(args ...string) record.Map {
	l := make([]any, len(args))
	for i, a := range args {
		l[i] = record.Map{"name": a}
	}
	return record.Map{"args": l}
}

func funcRec(args ...string) record.Map {
	return record.Map{"kind": "function", "value": record.Map{
		"overloads": []any{overload(args...)},
	}}
}

func methodRec(args ...string) record.Map {
	return record.Map{"kind": "method", "value": record.Map{
		"overloads": []any{overload(args...)},
	}}
}

func typeref(module, name string) record.Map {
	return record.Map{"kind": "typeref", "value": []any{TypeRef(module, name)}}
}

func dataRec(ref []any) record.Map {
	return record.Map{"kind": "data", "value": record.Map{"type": ref}}
}

func funcref(target string) record.Map {
	return record.Map{"kind": "funcref", "value": record.Map{"func_name": target}}
}
