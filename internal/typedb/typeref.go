package typedb

import (
	"fmt"

	"github.com/jward/typedb/internal/record"
)

// typeRef is one decoded (module, name, index types) reference. A missing
// name refers to object; a missing module refers to the builtin module.
type typeRef struct {
	module    string
	name      string
	hasModule bool
	hasName   bool
	index     []any

	// from is the alternative slot being filled, when the reference is one
	// alternative of a multiple member.
	from *altSlot
}

// altSlot names one alternative of a multiple member.
type altSlot struct {
	mm *MultipleMembers
	i  int
}

func (r typeRef) String() string {
	switch {
	case !r.hasName:
		return "object"
	case !r.hasModule:
		return r.name
	}
	return r.module + "." + r.name
}

// parseTypeRef reads a [module, name] or [module, name, [index refs...]]
// tuple. Either of module and name may be null.
func parseTypeRef(v any) (typeRef, bool) {
	l, ok := record.AsList(v)
	if !ok || len(l) < 2 {
		return typeRef{}, false
	}
	var r typeRef
	if l[0] != nil {
		s, ok := record.AsString(l[0])
		if !ok {
			return typeRef{}, false
		}
		r.module, r.hasModule = s, s != ""
	}
	if l[1] != nil {
		s, ok := record.AsString(l[1])
		if !ok {
			return typeRef{}, false
		}
		r.name, r.hasName = s, s != ""
	}
	if len(l) > 2 {
		if idx, ok := record.AsList(l[2]); ok && len(idx) > 0 {
			r.index = idx
		}
	}
	return r, true
}

// isRefList reports whether v is a list of references ("any of") rather
// than a single tuple.
func isRefList(v any) bool {
	l, ok := record.AsList(v)
	if !ok || len(l) == 0 {
		return false
	}
	_, nested := record.AsList(l[0])
	return nested
}

// TypeRef builds the record form of a reference. An empty module means the
// builtin module; an empty name means object.
func TypeRef(module, name string, index ...any) []any {
	var m, n any
	if module != "" {
		m = module
	}
	if name != "" {
		n = name
	}
	if len(index) > 0 {
		return []any{m, n, index}
	}
	return []any{m, n}
}

func describeRef(v any) string {
	if r, ok := parseTypeRef(v); ok {
		return r.String()
	}
	return fmt.Sprintf("%v", v)
}
