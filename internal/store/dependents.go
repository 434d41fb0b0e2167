package store

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hashicorp/go-set/v3"
)

// referenceQuery collects every stored type mention that could name a type
// of the module bound to the LIKE parameters, paired with the mentioning
// module. Rows are narrowed in Go by declaringModule.
const referenceQuery = `
	SELECT mo.name, m.type_name FROM members m
		JOIN modules mo ON mo.id = m.module_id
		WHERE mo.name <> ? AND m.type_name LIKE ? ESCAPE '\'
	UNION ALL
	SELECT mo.name, m.target FROM members m
		JOIN modules mo ON mo.id = m.module_id
		WHERE mo.name <> ? AND (m.target LIKE ? ESCAPE '\' OR m.target = ?)
	UNION ALL
	SELECT mo.name, tb.name FROM type_bases tb
		JOIN members m ON m.id = tb.member_id
		JOIN modules mo ON mo.id = m.module_id
		WHERE mo.name <> ? AND tb.name LIKE ? ESCAPE '\'
	UNION ALL
	SELECT mo.name, o.return_types FROM overloads o
		JOIN members m ON m.id = o.member_id
		JOIN modules mo ON mo.id = m.module_id
		WHERE mo.name <> ? AND o.return_types LIKE ? ESCAPE '\'
	UNION ALL
	SELECT mo.name, p.types FROM parameters p
		JOIN overloads o ON o.id = p.overload_id
		JOIN members m ON m.id = o.member_id
		JOIN modules mo ON mo.id = m.module_id
		WHERE mo.name <> ? AND p.types LIKE ? ESCAPE '\'`

// ModulesReferencing returns the names of modules whose members mention a
// type declared in the named module: through a constant or property type,
// an alias target, a base or mro entry, a parameter type, or a return
// type, including as a sequence index type. A type belongs to the longest
// snapshot module its qualified name starts with, so "os.path.join" counts
// for os.path and not for os. The module itself is excluded.
func (s *Store) ModulesReferencing(module string) ([]string, error) {
	known, err := s.moduleNameSet()
	if err != nil {
		return nil, fmt.Errorf("modules referencing %q: %w", module, err)
	}

	like := "%" + escapeLike(module) + ".%"
	rows, err := s.db.Query(referenceQuery,
		module, like,
		module, like, module,
		module, like,
		module, like,
		module, like,
	)
	if err != nil {
		return nil, fmt.Errorf("modules referencing %q: %w", module, err)
	}
	defer rows.Close()

	found := set.New[string](8)
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		if found.Contains(name) {
			continue
		}
		for _, qn := range qualifiedNames(text) {
			if declaringModule(qn, known) == module {
				found.Insert(name)
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := found.Slice()
	sort.Strings(names)
	return names, nil
}

func (s *Store) moduleNameSet() (*set.Set[string], error) {
	rows, err := s.db.Query("SELECT name FROM modules")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := set.New[string](32)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan module name: %w", err)
		}
		names.Insert(name)
	}
	return names, rows.Err()
}

// qualifiedNames splits stored type text, such as "dict[str, os.Stat]" or
// a JSON list of names, into its dotted names.
func qualifiedNames(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r != '.' && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// declaringModule returns the longest known module that qn is, or that qn
// is qualified by. It returns "" when none matches.
func declaringModule(qn string, known *set.Set[string]) string {
	for cut := qn; cut != ""; {
		if known.Contains(cut) {
			return cut
		}
		dot := strings.LastIndexByte(cut, '.')
		if dot < 0 {
			break
		}
		cut = cut[:dot]
	}
	return ""
}
