package typedb

import (
	core "github.com/jward/typedb/internal/typedb"
	"github.com/jward/typedb/internal/store"
)

// Public type aliases for the internal object graph and snapshot types.
// These are Go type aliases (=), identical to the internal types at compile
// time. External consumers use these names; no conversion is needed.

type Member = core.Member
type Container = core.Container
type Kind = core.Kind
type Location = core.Location
type Module = core.Module
type Type = core.Type
type Function = core.Function
type MethodDescriptor = core.MethodDescriptor
type Overload = core.Overload
type Parameter = core.Parameter
type ParameterFormat = core.ParameterFormat
type Property = core.Property
type Constant = core.Constant
type MultipleMembers = core.MultipleMembers
type BuiltinTypeID = core.BuiltinTypeID

// Member kinds.
const (
	KindUnknown  = core.KindUnknown
	KindModule   = core.KindModule
	KindType     = core.KindType
	KindFunction = core.KindFunction
	KindMethod   = core.KindMethod
	KindProperty = core.KindProperty
	KindConstant = core.KindConstant
	KindMultiple = core.KindMultiple
)

// TypeRef builds a type reference record: a module name ("" for the
// builtin module), a type name, and optional index references.
func TypeRef(module, name string, index ...any) []any {
	return core.TypeRef(module, name, index...)
}

type Store = store.Store
type StoredModule = store.Module
type StoredMember = store.Member
type StoredOverload = store.Overload
type StoredParameter = store.Parameter
type TypeBase = store.TypeBase

// OpenStore opens (creating if needed) a snapshot database at path.
func OpenStore(path string) (*Store, error) {
	s, err := store.NewStore(path)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
