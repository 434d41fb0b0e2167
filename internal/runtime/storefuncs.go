package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/typedb/internal/store"
)

// Host functions over an exported snapshot. Rows are returned as Risor
// maps with primitive values.

// snapshot_modules() → [{name, doc, builtin, member_count, source_hash}]
func makeSnapshotModulesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("snapshot_modules", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("snapshot_modules", 0, len(args))
		}
		mods, err := s.Modules()
		if err != nil {
			return object.Errorf("snapshot_modules: %v", err)
		}
		results := make([]object.Object, 0, len(mods))
		for _, m := range mods {
			results = append(results, object.NewMap(map[string]object.Object{
				"id":           object.NewInt(m.ID),
				"name":         object.NewString(m.Name),
				"doc":          object.NewString(m.Doc),
				"builtin":      object.NewBool(m.IsBuiltin),
				"member_count": object.NewInt(int64(m.MemberCount)),
				"source_hash":  object.NewString(m.SourceHash),
			}))
		}
		return object.NewList(results)
	})
}

// snapshot_members(module) → top-level member rows, or nil for an unknown module
func makeSnapshotMembersFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("snapshot_members", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("snapshot_members", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("snapshot_members: %v", err)
		}
		mod, err := s.ModuleByName(name)
		if err != nil {
			return object.Errorf("snapshot_members: %v", err)
		}
		if mod == nil {
			return object.Nil
		}
		members, err := s.MembersByModule(mod.ID)
		if err != nil {
			return object.Errorf("snapshot_members: %v", err)
		}
		return membersToList(members)
	})
}

// snapshot_search(pattern, limit?) → member rows whose name matches a "*" pattern
func makeSnapshotSearchFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("snapshot_search", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("snapshot_search: expected 1 or 2 arguments, got %d", len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("snapshot_search: %v", err)
		}
		limit := 0
		if len(args) == 2 {
			n, err := toInt64(args[1])
			if err != nil {
				return object.Errorf("snapshot_search: %v", err)
			}
			limit = int(n)
		}
		members, _, err := s.SearchMembers(pattern, 0, limit)
		if err != nil {
			return object.Errorf("snapshot_search: %v", err)
		}
		return membersToList(members)
	})
}

// snapshot_dependents(module) → names of modules referencing module
func makeSnapshotDependentsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("snapshot_dependents", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("snapshot_dependents", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("snapshot_dependents: %v", err)
		}
		names, err := s.ModulesReferencing(name)
		if err != nil {
			return object.Errorf("snapshot_dependents: %v", err)
		}
		return stringList(names)
	})
}

// db_query(sql, args...) → list of maps (column → value)
//
// Only SELECT statements run. WITH is refused too, since SQLite allows a
// CTE in front of DELETE and UPDATE.
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		query, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		if !isReadQuery(query) {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		params := make([]any, 0, len(args)-1)
		for _, arg := range args[1:] {
			params = append(params, sqlArg(arg))
		}

		rows, err := s.DB().QueryContext(ctx, query, params...)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return object.Errorf("db_query: columns: %v", err)
		}

		results := []object.Object{}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		return object.NewList(results)
	})
}

func isReadQuery(query string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT")
}

// sqlArg converts a Risor value to a database/sql parameter.
func sqlArg(arg object.Object) any {
	switch v := arg.(type) {
	case *object.Int:
		return v.Value()
	case *object.Float:
		return v.Value()
	case *object.String:
		return v.Value()
	case *object.Bool:
		return v.Value()
	case *object.NilType:
		return nil
	default:
		return arg.Inspect()
	}
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

// membersToList converts snapshot member rows to a Risor list of maps.
func membersToList(members []*store.Member) object.Object {
	results := make([]object.Object, 0, len(members))
	for _, m := range members {
		row := map[string]object.Object{
			"id":        object.NewInt(m.ID),
			"module_id": object.NewInt(m.ModuleID),
			"name":      object.NewString(m.Name),
			"kind":      object.NewString(m.Kind),
			"doc":       object.NewString(m.Doc),
			"type_name": object.NewString(m.TypeName),
			"target":    object.NewString(m.Target),
		}
		if m.ParentMemberID != nil {
			row["parent_member_id"] = object.NewInt(*m.ParentMemberID)
		}
		results = append(results, object.NewMap(row))
	}
	return object.NewList(results)
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}
