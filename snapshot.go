package typedb

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/typedb/internal/store"
)

// Pagination controls offset+limit paging on search results.
type Pagination struct {
	Offset int // skip this many results (default 0)
	Limit  int // max results to return (default 50, max 500)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// normalize returns a Pagination with defaults applied and bounds enforced.
func (p Pagination) normalize() Pagination {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// PagedResult wraps a page of results with total count for pagination.
type PagedResult[T any] struct {
	Items      []T
	TotalCount int // total matching results (before pagination)
}

// MemberResult extends a stored member with its location in the module tree.
type MemberResult struct {
	store.Member
	Module string // declaring module name
	Path   string // dotted path inside the module
}

// Snapshot answers queries against an exported SQLite snapshot without
// loading the module descriptions again.
type Snapshot struct {
	store *store.Store
}

// NewSnapshot wraps an open snapshot store.
func NewSnapshot(s *Store) *Snapshot {
	return &Snapshot{store: s}
}

// Modules returns every module in the snapshot ordered by name.
func (q *Snapshot) Modules() ([]*StoredModule, error) {
	mods, err := q.store.Modules()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return mods, nil
}

// Metadata returns a value recorded at export time.
func (q *Snapshot) Metadata(key string) (string, bool, error) {
	return q.store.GetMetadata(key)
}

// Member resolves a dotted path inside module. Aliases are followed to
// their targets, and constants and properties are walked through their
// type, so "mod.conn.close" works when conn is a constant.
func (q *Snapshot) Member(module, dotted string) (*StoredMember, error) {
	mod, err := q.module(module)
	if err != nil {
		return nil, err
	}
	if dotted == "" {
		return nil, nil
	}
	var cur *StoredMember
	for i, seg := range strings.Split(dotted, ".") {
		var next *StoredMember
		if i == 0 {
			next, err = q.store.MemberByPath(mod.ID, []string{seg})
		} else {
			next, err = q.child(cur, seg)
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: member %s.%s: %w", module, dotted, err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: %s.%s", ErrMemberNotFound, module, dotted)
		}
		cur = next
	}
	return cur, nil
}

// Members lists the members of module, or of the container at dotted.
func (q *Snapshot) Members(module, dotted string) ([]*StoredMember, error) {
	mod, err := q.module(module)
	if err != nil {
		return nil, err
	}
	if dotted == "" {
		members, err := q.store.MembersByModule(mod.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		return members, nil
	}
	m, err := q.Member(module, dotted)
	if err != nil {
		return nil, err
	}
	members, err := q.children(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return members, nil
}

// Signatures returns the stored overloads of the function or method at
// dotted. Multiple members yield the signatures of every alternative.
func (q *Snapshot) Signatures(module, dotted string) ([]Signature, error) {
	m, err := q.Member(module, dotted)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	m, err = q.follow(m, 0)
	if err != nil || m == nil {
		return nil, err
	}
	if m.Kind == store.KindType {
		return q.constructorSignatures(m)
	}
	return q.signatures(m)
}

// constructorSignatures returns the __init__ overloads of t renamed to the
// type, each returning the type itself.
func (q *Snapshot) constructorSignatures(t *StoredMember) ([]Signature, error) {
	name, err := q.qualifiedName(t)
	if err != nil {
		return nil, err
	}
	members, err := q.typeMembers(t, map[int64]bool{}, map[string]bool{})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	for _, m := range members {
		if m.Name != "__init__" {
			continue
		}
		init, err := q.follow(m, 0)
		if err != nil || init == nil {
			return nil, err
		}
		sigs, err := q.signatures(init)
		if err != nil {
			return nil, err
		}
		for i := range sigs {
			sigs[i].Name = t.Name
			sigs[i].Returns = []string{name}
		}
		return sigs, nil
	}
	return []Signature{{Name: t.Name, Doc: t.Doc, Returns: []string{name}}}, nil
}

// qualifiedName renders m the way exported type names are written: bare
// for builtin module members, module-qualified otherwise.
func (q *Snapshot) qualifiedName(m *StoredMember) (string, error) {
	mod, err := q.store.ModuleByID(m.ModuleID)
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if mod == nil {
		return "", fmt.Errorf("snapshot: member %s has no module", m.Name)
	}
	path, err := q.path(m)
	if err != nil {
		return "", err
	}
	if b, ok, _ := q.store.GetMetadata("builtin_module"); ok && b == mod.Name {
		return path, nil
	}
	return mod.Name + "." + path, nil
}

func (q *Snapshot) signatures(m *StoredMember) ([]Signature, error) {
	switch m.Kind {
	case store.KindFunction, store.KindMethod:
	case store.KindMultiple:
		alts, err := q.store.MembersByParent(m.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		var out []Signature
		for _, alt := range alts {
			sigs, err := q.signatures(alt)
			if err != nil {
				return nil, err
			}
			out = append(out, sigs...)
		}
		return out, nil
	default:
		return nil, nil
	}

	overloads, err := q.store.OverloadsByMember(m.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	out := make([]Signature, 0, len(overloads))
	for _, o := range overloads {
		params, err := q.store.ParametersByOverload(o.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		sig := Signature{Name: m.Name, Doc: o.Doc, ReturnDoc: o.ReturnDoc, Returns: o.ReturnTypes}
		for _, p := range params {
			sig.Parameters = append(sig.Parameters, SignatureParam{
				Name: p.Name, Format: p.Format, Default: p.DefaultValue, Types: p.Types, Doc: p.Doc,
			})
		}
		out = append(out, sig)
	}
	return out, nil
}

// Search finds members by name with "*" wildcards.
func (q *Snapshot) Search(pattern string, page Pagination) (*PagedResult[MemberResult], error) {
	page = page.normalize()
	members, total, err := q.store.SearchMembers(pattern, page.Offset, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	names, err := q.moduleNames()
	if err != nil {
		return nil, err
	}
	result := &PagedResult[MemberResult]{Items: make([]MemberResult, 0, len(members)), TotalCount: total}
	for _, m := range members {
		path, err := q.path(m)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, MemberResult{Member: *m, Module: names[m.ModuleID], Path: path})
	}
	return result, nil
}

// Dependents returns the modules whose members reference module.
func (q *Snapshot) Dependents(module string) ([]string, error) {
	names, err := q.store.ModulesReferencing(module)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return names, nil
}

func (q *Snapshot) module(name string) (*StoredModule, error) {
	mod, err := q.store.ModuleByName(name)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if mod == nil && (name == "builtins" || name == "__builtin__") {
		if b, ok, _ := q.store.GetMetadata("builtin_module"); ok && b != name {
			return q.module(b)
		}
	}
	if mod == nil {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return mod, nil
}

func (q *Snapshot) moduleNames() (map[int64]string, error) {
	mods, err := q.store.Modules()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	names := make(map[int64]string, len(mods))
	for _, m := range mods {
		names[m.ID] = m.Name
	}
	return names, nil
}

// path returns the dotted path of m inside its module.
func (q *Snapshot) path(m *StoredMember) (string, error) {
	parts := []string{m.Name}
	cur := m
	for cur.ParentMemberID != nil {
		parent, err := q.store.MemberByID(*cur.ParentMemberID)
		if err != nil {
			return "", fmt.Errorf("snapshot: %w", err)
		}
		if parent == nil {
			break
		}
		// alternatives of a multiple member share its name
		if parent.Kind != store.KindMultiple {
			parts = append(parts, parent.Name)
		}
		cur = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "."), nil
}

// maxHops bounds alias and type chains; a malformed snapshot can make
// them cyclic.
const maxHops = 16

// child finds seg among the members reached from m.
func (q *Snapshot) child(m *StoredMember, seg string) (*StoredMember, error) {
	children, err := q.children(m)
	if err != nil {
		return nil, err
	}
	for _, ch := range children {
		if ch.Name == seg {
			return ch, nil
		}
	}
	return nil, nil
}

// children lists what completion after "m." would offer: the top level of a
// referenced module, or the members of the type m evaluates to.
func (q *Snapshot) children(m *StoredMember) ([]*StoredMember, error) {
	f, err := q.follow(m, 0)
	if err != nil || f == nil {
		return nil, err
	}
	if f.Kind == store.KindModule {
		mod, err := q.store.ModuleByName(f.Target)
		if err != nil || mod == nil {
			return nil, err
		}
		return q.store.MembersByModule(mod.ID)
	}
	c, err := q.container(f, 0)
	if err != nil || c == nil {
		return nil, err
	}
	return q.typeMembers(c, map[int64]bool{}, map[string]bool{})
}

// typeMembers returns t's own members followed by those inherited through
// its declared bases. A name already seen hides later definitions.
func (q *Snapshot) typeMembers(t *StoredMember, visited map[int64]bool, names map[string]bool) ([]*StoredMember, error) {
	if visited[t.ID] || len(visited) > maxHops {
		return nil, nil
	}
	visited[t.ID] = true

	own, err := q.store.MembersByParent(t.ID)
	if err != nil {
		return nil, err
	}
	var out []*StoredMember
	for _, m := range own {
		if !names[m.Name] {
			names[m.Name] = true
			out = append(out, m)
		}
	}

	bases, err := q.store.BasesByType(t.ID)
	if err != nil {
		return nil, err
	}
	for _, b := range bases {
		if b.Kind != store.BaseDeclared {
			continue
		}
		base, err := q.resolve(baseTypeName(b.Name))
		if err != nil {
			return nil, err
		}
		if base == nil || base.Kind != store.KindType {
			continue
		}
		inherited, err := q.typeMembers(base, visited, names)
		if err != nil {
			return nil, err
		}
		out = append(out, inherited...)
	}
	return out, nil
}

// container returns the type or module-level container m exposes members
// through, following aliases and value types.
func (q *Snapshot) container(m *StoredMember, hops int) (*StoredMember, error) {
	if hops > maxHops {
		return nil, nil
	}
	m, err := q.follow(m, hops)
	if err != nil || m == nil {
		return nil, err
	}
	switch m.Kind {
	case store.KindType:
		return m, nil
	case store.KindConstant, store.KindProperty:
		target, err := q.resolve(baseTypeName(m.TypeName))
		if err != nil || target == nil {
			return nil, err
		}
		return q.container(target, hops+1)
	case store.KindMultiple:
		alts, err := q.store.MembersByParent(m.ID)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		for _, alt := range alts {
			if alt.Kind == store.KindType {
				return alt, nil
			}
		}
	}
	return nil, nil
}

// follow resolves alias rows to the member they name.
func (q *Snapshot) follow(m *StoredMember, hops int) (*StoredMember, error) {
	for m != nil && m.Kind == store.KindAlias {
		if hops > maxHops {
			return nil, nil
		}
		hops++
		next, err := q.resolve(m.Target)
		if err != nil {
			return nil, err
		}
		m = next
	}
	return m, nil
}

// resolve finds the member named by a qualified name such as
// "pkg.mod.Type.method". The longest module prefix wins; a bare name is
// looked up in the builtin module.
func (q *Snapshot) resolve(qualified string) (*StoredMember, error) {
	if qualified == "" {
		return nil, nil
	}
	parts := strings.Split(qualified, ".")
	if len(parts) == 1 {
		b, ok, err := q.store.GetMetadata("builtin_module")
		if err != nil || !ok {
			return nil, err
		}
		parts = append([]string{b}, parts...)
	}
	for i := len(parts) - 1; i >= 1; i-- {
		mod, err := q.store.ModuleByName(strings.Join(parts[:i], "."))
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		if mod == nil {
			continue
		}
		return q.memberInModule(mod.ID, parts[i:])
	}
	return nil, nil
}

// memberInModule walks path from a module's top level, descending into
// nested members by parent id.
func (q *Snapshot) memberInModule(moduleID int64, path []string) (*StoredMember, error) {
	m, err := q.store.MemberByPath(moduleID, path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return m, nil
}

// baseTypeName strips index types from a rendered sequence type name.
func baseTypeName(name string) string {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return name[:i]
	}
	return name
}

// =============================================================================
// Hierarchy and graphs
// =============================================================================

// TypeHierarchy is the inheritance view of one stored type.
type TypeHierarchy struct {
	Type     MemberResult
	Bases    []string       // declared bases, in order
	Mro      []string       // method resolution order when recorded
	Subtypes []MemberResult // types that declare this one as a base
}

// TypeHierarchy returns the bases, mro, and known subtypes of the type at
// dotted. Returns nil with no error if the member is not a type.
func (q *Snapshot) TypeHierarchy(module, dotted string) (*TypeHierarchy, error) {
	m, err := q.Member(module, dotted)
	if err != nil {
		return nil, err
	}
	m, err = q.follow(m, 0)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Kind != store.KindType {
		return nil, nil
	}
	names, err := q.moduleNames()
	if err != nil {
		return nil, err
	}
	result := func(m *StoredMember) (MemberResult, error) {
		path, err := q.path(m)
		if err != nil {
			return MemberResult{}, err
		}
		return MemberResult{Member: *m, Module: names[m.ModuleID], Path: path}, nil
	}

	self, err := result(m)
	if err != nil {
		return nil, err
	}
	h := &TypeHierarchy{Type: self, Bases: []string{}, Mro: []string{}, Subtypes: []MemberResult{}}

	bases, err := q.store.BasesByType(m.ID)
	if err != nil {
		return nil, fmt.Errorf("type hierarchy: %w", err)
	}
	for _, b := range bases {
		if b.Kind == store.BaseMro {
			h.Mro = append(h.Mro, b.Name)
		} else {
			h.Bases = append(h.Bases, b.Name)
		}
	}

	qualified, err := q.qualifiedName(m)
	if err != nil {
		return nil, err
	}
	subs, err := q.store.SubtypesOf(qualified)
	if err != nil {
		return nil, fmt.Errorf("type hierarchy: %w", err)
	}
	for _, sub := range subs {
		r, err := result(sub)
		if err != nil {
			return nil, err
		}
		h.Subtypes = append(h.Subtypes, r)
	}
	return h, nil
}

// ModuleGraph is the module-to-module reference graph of a snapshot.
type ModuleGraph struct {
	Modules []string
	Edges   []ModuleEdge
}

// ModuleEdge records that From references a member of To.
type ModuleEdge struct {
	From string
	To   string
}

// ModuleGraph derives the reference graph from type names, alias targets,
// and base lists recorded in the snapshot.
func (q *Snapshot) ModuleGraph() (*ModuleGraph, error) {
	mods, err := q.store.Modules()
	if err != nil {
		return nil, fmt.Errorf("module graph: %w", err)
	}
	g := &ModuleGraph{Modules: make([]string, 0, len(mods)), Edges: []ModuleEdge{}}
	for _, m := range mods {
		g.Modules = append(g.Modules, m.Name)
		deps, err := q.store.ModulesReferencing(m.Name)
		if err != nil {
			return nil, fmt.Errorf("module graph: %w", err)
		}
		for _, from := range deps {
			g.Edges = append(g.Edges, ModuleEdge{From: from, To: m.Name})
		}
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g, nil
}

// CircularDependencies finds reference cycles between modules using
// Tarjan's strongly connected components algorithm. Each cycle repeats its
// first module at the end. Returns an empty list for acyclic snapshots.
func (q *Snapshot) CircularDependencies() ([][]string, error) {
	graph, err := q.ModuleGraph()
	if err != nil {
		return nil, fmt.Errorf("circular dependencies: %w", err)
	}

	adj := map[string][]string{}
	for _, e := range graph.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}

	type nodeInfo struct {
		index   int
		lowlink int
		onStack bool
	}
	info := map[string]*nodeInfo{}
	index := 0
	var stack []string
	result := [][]string{}

	var strongconnect func(v string)
	strongconnect = func(v string) {
		ni := &nodeInfo{index: index, lowlink: index, onStack: true}
		info[v] = ni
		index++
		stack = append(stack, v)

		for _, w := range adj[v] {
			wi, visited := info[w]
			if !visited {
				strongconnect(w)
				ni.lowlink = min(ni.lowlink, info[w].lowlink)
			} else if wi.onStack {
				ni.lowlink = min(ni.lowlink, wi.index)
			}
		}

		if ni.lowlink != ni.index {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			info[w].onStack = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		// Modules never reference themselves in the graph, so only
		// components of two or more are cycles.
		if len(scc) > 1 {
			sort.Strings(scc)
			result = append(result, append(scc, scc[0]))
		}
	}

	for _, name := range graph.Modules {
		if _, visited := info[name]; !visited {
			strongconnect(name)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i][0] < result[j][0] })
	return result, nil
}
