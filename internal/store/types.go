package store

import "time"

// Member kinds as stored in members.kind. They mirror the resolved object
// graph, plus "alias" for a name bound to a member declared elsewhere.
const (
	KindModule   = "module"
	KindType     = "type"
	KindFunction = "function"
	KindMethod   = "method"
	KindProperty = "property"
	KindConstant = "data"
	KindMultiple = "multiple"
	KindAlias    = "alias"
)

// Base kinds as stored in type_bases.kind.
const (
	BaseDeclared = "base"
	BaseMro      = "mro"
)

// Module is one loaded module in a snapshot.
type Module struct {
	ID          int64
	Name        string
	Doc         string
	IsBuiltin   bool
	SourceHash  string
	MemberCount int
	ExportedAt  time.Time
}

// Member is a module-level member, or a member nested in a type or a
// multiple-members set when ParentMemberID is non-nil.
type Member struct {
	ID             int64
	ModuleID       int64
	ParentMemberID *int64
	Name           string
	Kind           string
	Doc            string
	TypeName       string // qualified type of a constant or property
	Target         string // qualified name an alias or module member points at
	BuiltinTypeID  string
	IsBuiltin      bool
	IsHidden       bool
	Line           int
	Col            int
	SignatureHash  string
}

// Overload is one call signature of a function or method member.
type Overload struct {
	ID          int64
	MemberID    int64
	Ordinal     int
	Doc         string
	ReturnDoc   string
	ReturnTypes []string
}

// Parameter belongs to an Overload.
type Parameter struct {
	ID           int64
	OverloadID   int64
	Ordinal      int
	Name         string
	Format       string
	DefaultValue string
	Doc          string
	Types        []string
}

// TypeBase is one entry in a type member's declared bases or its mro.
type TypeBase struct {
	ID       int64
	MemberID int64
	Ordinal  int
	Kind     string
	Name     string
}
