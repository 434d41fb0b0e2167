package store

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Module operations ---

func (s *Store) InsertModule(m *Module) (int64, error) {
	if m.ExportedAt.IsZero() {
		m.ExportedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := s.db.Exec(
		`INSERT INTO modules (name, doc, is_builtin, source_hash, member_count, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.Name, m.Doc, m.IsBuiltin, m.SourceHash, m.MemberCount, m.ExportedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert module: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return id, nil
}

const moduleCols = `id, name, doc, is_builtin, source_hash, member_count, exported_at`

func scanModule(row interface{ Scan(...any) error }) (*Module, error) {
	m := &Module{}
	var doc, hash sql.NullString
	if err := row.Scan(&m.ID, &m.Name, &doc, &m.IsBuiltin, &hash, &m.MemberCount, &m.ExportedAt); err != nil {
		return nil, err
	}
	m.Doc, m.SourceHash = doc.String, hash.String
	return m, nil
}

// ModuleByName returns the module with the given name, or nil if absent.
func (s *Store) ModuleByName(name string) (*Module, error) {
	m, err := scanModule(s.db.QueryRow("SELECT "+moduleCols+" FROM modules WHERE name = ?", name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by name: %w", err)
	}
	return m, nil
}

// ModuleByID returns the module with the given id, or nil if absent.
func (s *Store) ModuleByID(id int64) (*Module, error) {
	m, err := scanModule(s.db.QueryRow("SELECT "+moduleCols+" FROM modules WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("module by id: %w", err)
	}
	return m, nil
}

// Modules returns every module in the snapshot ordered by name.
func (s *Store) Modules() ([]*Module, error) {
	rows, err := s.db.Query("SELECT " + moduleCols + " FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	defer rows.Close()
	var modules []*Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// SetMemberCount records the number of module-level members after a commit.
func (s *Store) SetMemberCount(moduleID int64, n int) error {
	if _, err := s.db.Exec("UPDATE modules SET member_count = ? WHERE id = ?", n, moduleID); err != nil {
		return fmt.Errorf("set member count: %w", err)
	}
	return nil
}

// --- Member operations ---

func (s *Store) InsertMember(m *Member) (int64, error) {
	id, err := insertMemberTx(s.db, m)
	if err != nil {
		return 0, fmt.Errorf("insert member: %w", err)
	}
	m.ID = id
	return id, nil
}

// MemberCols is the column list for member queries.
const MemberCols = `id, module_id, parent_member_id, name, kind, doc, type_name, target,
	builtin_type_id, is_builtin, is_hidden, line, col, signature_hash`

func scanMember(row interface{ Scan(...any) error }) (*Member, error) {
	m := &Member{}
	var doc, typeName, target, builtinID, hash sql.NullString
	var line, col sql.NullInt64
	err := row.Scan(
		&m.ID, &m.ModuleID, &m.ParentMemberID, &m.Name, &m.Kind, &doc, &typeName, &target,
		&builtinID, &m.IsBuiltin, &m.IsHidden, &line, &col, &hash,
	)
	if err != nil {
		return nil, err
	}
	m.Doc, m.TypeName, m.Target = doc.String, typeName.String, target.String
	m.BuiltinTypeID, m.SignatureHash = builtinID.String, hash.String
	m.Line, m.Col = int(line.Int64), int(col.Int64)
	return m, nil
}

func (s *Store) queryMembers(query string, args ...any) ([]*Member, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MembersByModule returns the module-level members of a module ordered by name.
func (s *Store) MembersByModule(moduleID int64) ([]*Member, error) {
	members, err := s.queryMembers(
		"SELECT "+MemberCols+" FROM members WHERE module_id = ? AND parent_member_id IS NULL ORDER BY name, id",
		moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("members by module: %w", err)
	}
	return members, nil
}

// MembersByParent returns the members nested in a type or multiple member.
func (s *Store) MembersByParent(memberID int64) ([]*Member, error) {
	members, err := s.queryMembers(
		"SELECT "+MemberCols+" FROM members WHERE parent_member_id = ? ORDER BY name, id",
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("members by parent: %w", err)
	}
	return members, nil
}

// MembersByName returns every member with exactly the given name.
func (s *Store) MembersByName(name string) ([]*Member, error) {
	members, err := s.queryMembers(
		"SELECT "+MemberCols+" FROM members WHERE name = ? ORDER BY module_id, id",
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("members by name: %w", err)
	}
	return members, nil
}

// SearchMembers returns members whose name matches a "*" wildcard pattern,
// skipping offset rows and returning at most limit (zero or less means no
// limit), along with the total number of matches.
func (s *Store) SearchMembers(pattern string, offset, limit int) ([]*Member, int, error) {
	like := globToLike(pattern)
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM members WHERE name LIKE ? ESCAPE '\'`, like).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search members: count: %w", err)
	}
	query := "SELECT " + MemberCols + ` FROM members WHERE name LIKE ? ESCAPE '\' ORDER BY name, module_id, id LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = -1
	}
	members, err := s.queryMembers(query, like, limit, max(offset, 0))
	if err != nil {
		return nil, 0, fmt.Errorf("search members: %w", err)
	}
	return members, total, nil
}

// MemberByID returns a single member, or nil if absent.
func (s *Store) MemberByID(id int64) (*Member, error) {
	m, err := scanMember(s.db.QueryRow("SELECT "+MemberCols+" FROM members WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("member by id: %w", err)
	}
	return m, nil
}

// SubtypesOf returns the type members that list the qualified name among
// their declared bases.
func (s *Store) SubtypesOf(name string) ([]*Member, error) {
	members, err := s.queryMembers(
		"SELECT "+MemberCols+` FROM members
		 WHERE id IN (SELECT member_id FROM type_bases WHERE kind = 'base' AND name = ?)
		 ORDER BY name, id`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("subtypes of: %w", err)
	}
	return members, nil
}

// MemberByPath walks a dotted path from a module's top level through
// nested members. Returns nil when any segment is missing.
func (s *Store) MemberByPath(moduleID int64, path []string) (*Member, error) {
	var cur *Member
	for i, name := range path {
		var candidates []*Member
		var err error
		if i == 0 {
			candidates, err = s.queryMembers(
				"SELECT "+MemberCols+" FROM members WHERE module_id = ? AND parent_member_id IS NULL AND name = ? ORDER BY id LIMIT 1",
				moduleID, name,
			)
		} else {
			candidates, err = s.queryMembers(
				"SELECT "+MemberCols+" FROM members WHERE parent_member_id = ? AND name = ? ORDER BY id LIMIT 1",
				cur.ID, name,
			)
		}
		if err != nil {
			return nil, fmt.Errorf("member by path: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		cur = candidates[0]
	}
	return cur, nil
}

// --- Overload and parameter operations ---

func (s *Store) InsertOverload(o *Overload) (int64, error) {
	id, err := insertOverloadTx(s.db, o)
	if err != nil {
		return 0, fmt.Errorf("insert overload: %w", err)
	}
	o.ID = id
	return id, nil
}

// OverloadsByMember returns a function's overloads in declaration order.
func (s *Store) OverloadsByMember(memberID int64) ([]*Overload, error) {
	rows, err := s.db.Query(
		"SELECT id, member_id, ordinal, doc, return_doc, return_types FROM overloads WHERE member_id = ? ORDER BY ordinal",
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("overloads by member: %w", err)
	}
	defer rows.Close()
	var overloads []*Overload
	for rows.Next() {
		o := &Overload{}
		var doc, retDoc, ret sql.NullString
		if err := rows.Scan(&o.ID, &o.MemberID, &o.Ordinal, &doc, &retDoc, &ret); err != nil {
			return nil, fmt.Errorf("scan overload: %w", err)
		}
		o.Doc, o.ReturnDoc = doc.String, retDoc.String
		o.ReturnTypes = unmarshalNames(ret.String)
		overloads = append(overloads, o)
	}
	return overloads, rows.Err()
}

func (s *Store) InsertParameter(p *Parameter) (int64, error) {
	id, err := insertParameterTx(s.db, p)
	if err != nil {
		return 0, fmt.Errorf("insert parameter: %w", err)
	}
	p.ID = id
	return id, nil
}

// ParametersByOverload returns an overload's parameters in order.
func (s *Store) ParametersByOverload(overloadID int64) ([]*Parameter, error) {
	rows, err := s.db.Query(
		`SELECT id, overload_id, ordinal, name, format, default_value, doc, types
		 FROM parameters WHERE overload_id = ? ORDER BY ordinal`,
		overloadID,
	)
	if err != nil {
		return nil, fmt.Errorf("parameters by overload: %w", err)
	}
	defer rows.Close()
	var params []*Parameter
	for rows.Next() {
		p := &Parameter{}
		var name, format, def, doc, types sql.NullString
		if err := rows.Scan(&p.ID, &p.OverloadID, &p.Ordinal, &name, &format, &def, &doc, &types); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p.Name, p.Format, p.DefaultValue, p.Doc = name.String, format.String, def.String, doc.String
		p.Types = unmarshalNames(types.String)
		params = append(params, p)
	}
	return params, rows.Err()
}

// --- Type base operations ---

func (s *Store) InsertTypeBase(tb *TypeBase) (int64, error) {
	id, err := insertTypeBaseTx(s.db, tb)
	if err != nil {
		return 0, fmt.Errorf("insert type base: %w", err)
	}
	tb.ID = id
	return id, nil
}

// BasesByType returns a type member's bases and mro entries, bases first.
func (s *Store) BasesByType(memberID int64) ([]*TypeBase, error) {
	rows, err := s.db.Query(
		`SELECT id, member_id, ordinal, kind, name FROM type_bases
		 WHERE member_id = ? ORDER BY CASE kind WHEN 'base' THEN 0 ELSE 1 END, ordinal`,
		memberID,
	)
	if err != nil {
		return nil, fmt.Errorf("bases by type: %w", err)
	}
	defer rows.Close()
	var bases []*TypeBase
	for rows.Next() {
		tb := &TypeBase{}
		if err := rows.Scan(&tb.ID, &tb.MemberID, &tb.Ordinal, &tb.Kind, &tb.Name); err != nil {
			return nil, fmt.Errorf("scan type base: %w", err)
		}
		bases = append(bases, tb)
	}
	return bases, rows.Err()
}

// --- Metadata ---

// SetMetadata stores a key/value pair, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value for key and whether it was present.
func (s *Store) GetMetadata(key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value.String, true, nil
}
