// Package scrape builds module description records from Python source and
// stub files. It is the fallback for modules that ship no description file:
// the result is coarser than an interpreter-generated database (no version
// gates, literal-only data types) but loads through the same path.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/typedb/internal/record"
	core "github.com/jward/typedb/internal/typedb"
)

// Scraper converts Python files to module records.
type Scraper struct {
	log *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithLogger sets the logger used for skipped definitions.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Scraper.
func New(opts ...Option) *Scraper {
	s := &Scraper{log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// File reads and scrapes the file at path as module.
func (s *Scraper) File(ctx context.Context, module, path string) (record.Map, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scrape: read %s: %w", path, err)
	}
	return s.Source(ctx, module, src)
}

// Source scrapes Python source text as module. Syntax errors do not fail
// the scrape; whatever tree-sitter recovers is kept.
func (s *Scraper) Source(ctx context.Context, module string, src []byte) (record.Map, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("scrape: parse %s: %w", module, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	sc := &scope{s: s, module: module, src: src, imports: make(map[string][2]string), local: make(map[string]bool)}
	sc.collect(root)

	desc := record.Map{"members": sc.block(root, false)}
	if doc := sc.docstring(root); doc != "" {
		desc["doc"] = doc
	}
	return desc, nil
}

// scope carries per-file state while walking the tree.
type scope struct {
	s       *Scraper
	module  string
	src     []byte
	imports map[string][2]string // local name -> (module, name)
	local   map[string]bool      // top-level class names
}

func (sc *scope) text(n *sitter.Node) string {
	return n.Content(sc.src)
}

// collect records imports and top-level class names so bare annotations
// can be qualified.
func (sc *scope) collect(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := unwrapDecorated(root.NamedChild(i))
		switch n.Type() {
		case "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				sc.local[sc.text(name)] = true
			}
		case "import_from_statement":
			from := n.ChildByFieldName("module_name")
			if from == nil || from.Type() == "relative_import" {
				continue
			}
			mod := sc.text(from)
			for j := 0; j < int(n.NamedChildCount()); j++ {
				c := n.NamedChild(j)
				if c.StartByte() == from.StartByte() {
					continue
				}
				switch c.Type() {
				case "dotted_name":
					name := sc.text(c)
					sc.imports[name] = [2]string{mod, name}
				case "aliased_import":
					name := c.ChildByFieldName("name")
					alias := c.ChildByFieldName("alias")
					if name != nil && alias != nil {
						sc.imports[sc.text(alias)] = [2]string{mod, sc.text(name)}
					}
				}
			}
		}
	}
}

// block reads the definitions directly inside body. Inside a class,
// functions become methods.
func (sc *scope) block(body *sitter.Node, inClass bool) record.Map {
	members := record.Map{}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		decorators := decoratorNames(child, sc.src)
		n := unwrapDecorated(child)

		switch n.Type() {
		case "function_definition":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			sc.addFunction(members, sc.text(name), n, decorators, inClass)
		case "class_definition":
			name := n.ChildByFieldName("name")
			if name == nil {
				continue
			}
			members[sc.text(name)] = sc.class(n)
		case "expression_statement":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				if a := n.NamedChild(j); a.Type() == "assignment" {
					sc.assignment(members, a)
				}
			}
		}
	}
	return members
}

func (sc *scope) class(n *sitter.Node) record.Map {
	value := record.Map{}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		var bases []any
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			b := supers.NamedChild(i)
			if b.Type() != "identifier" && b.Type() != "attribute" {
				continue // keyword arguments such as metaclass=
			}
			bases = append(bases, sc.ref(sc.text(b)))
		}
		if len(bases) > 0 {
			value["bases"] = bases
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		if doc := sc.docstring(body); doc != "" {
			value["doc"] = doc
		}
		if members := sc.block(body, true); len(members) > 0 {
			value["members"] = members
		}
	}
	return record.Map{"kind": "type", "location": location(n), "value": value}
}

// addFunction adds a function, method or property. A name defined more
// than once (typing overloads in stubs) collects one overload per
// definition.
func (sc *scope) addFunction(members record.Map, name string, n *sitter.Node, decorators []string, inClass bool) {
	if inClass && hasDecorator(decorators, "property") {
		value := record.Map{}
		if doc := sc.docstring(n.ChildByFieldName("body")); doc != "" {
			value["doc"] = doc
		}
		if ret := n.ChildByFieldName("return_type"); ret != nil {
			value["type"] = []any{sc.ref(sc.text(ret))}
		}
		members[name] = record.Map{"kind": "property", "location": location(n), "value": value}
		return
	}
	for _, d := range decorators {
		if strings.HasSuffix(d, ".setter") || strings.HasSuffix(d, ".deleter") {
			return
		}
	}

	ov := record.Map{"args": sc.parameters(n.ChildByFieldName("parameters"))}
	if doc := sc.docstring(n.ChildByFieldName("body")); doc != "" {
		ov["doc"] = doc
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		ov["ret_type"] = []any{sc.ref(sc.text(ret))}
	}

	if existing, ok := record.AsMap(members[name]); ok && isCallable(existing) {
		if value, ok := record.Nested(existing, "value"); ok {
			overloads, _ := record.List(value, "overloads")
			value["overloads"] = append(overloads, ov)
			return
		}
	}

	kind := "function"
	value := record.Map{"overloads": []any{ov}}
	if inClass {
		kind = "method"
		if hasDecorator(decorators, "staticmethod") {
			value["static"] = true
		}
	}
	if doc, ok := ov["doc"]; ok {
		value["doc"] = doc
	}
	members[name] = record.Map{"kind": kind, "location": location(n), "value": value}
}

func isCallable(rec record.Map) bool {
	kind := record.String(rec, "kind")
	return kind == "function" || kind == "method"
}

func (sc *scope) parameters(params *sitter.Node) []any {
	args := []any{}
	if params == nil {
		return args
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		arg := record.Map{}
		switch p.Type() {
		case "identifier":
			arg["name"] = sc.text(p)
		case "default_parameter":
			arg["name"] = sc.fieldText(p, "name")
			arg["default_value"] = sc.fieldText(p, "value")
		case "typed_parameter":
			inner := p.NamedChild(0)
			if inner == nil {
				continue
			}
			switch inner.Type() {
			case "list_splat_pattern":
				arg["arg_format"] = "*"
				arg["name"] = strings.TrimPrefix(sc.text(inner), "*")
			case "dictionary_splat_pattern":
				arg["arg_format"] = "**"
				arg["name"] = strings.TrimPrefix(sc.text(inner), "**")
			default:
				arg["name"] = sc.text(inner)
			}
			if t := p.ChildByFieldName("type"); t != nil {
				arg["type"] = []any{sc.ref(sc.text(t))}
			}
		case "typed_default_parameter":
			arg["name"] = sc.fieldText(p, "name")
			arg["default_value"] = sc.fieldText(p, "value")
			if t := p.ChildByFieldName("type"); t != nil {
				arg["type"] = []any{sc.ref(sc.text(t))}
			}
		case "list_splat_pattern":
			arg["name"] = strings.TrimPrefix(sc.text(p), "*")
			arg["arg_format"] = "*"
		case "dictionary_splat_pattern":
			arg["name"] = strings.TrimPrefix(sc.text(p), "**")
			arg["arg_format"] = "**"
		default:
			// keyword_separator, positional_separator
			continue
		}
		args = append(args, arg)
	}
	return args
}

func (sc *scope) assignment(members record.Map, a *sitter.Node) {
	left := a.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" {
		return
	}
	name := sc.text(left)
	var ref []any
	switch {
	case a.ChildByFieldName("type") != nil:
		ref = sc.ref(sc.text(a.ChildByFieldName("type")))
	case a.ChildByFieldName("right") != nil:
		ref = sc.literal(a.ChildByFieldName("right"))
	}
	if ref == nil {
		sc.s.log.Debug("scrape.skip", "module", sc.module, "name", name, "reason", "no inferable type")
		return
	}
	members[name] = record.Map{"kind": "data", "value": record.Map{"type": []any{ref}}}
}

// literal infers a builtin type from a literal right-hand side.
func (sc *scope) literal(n *sitter.Node) []any {
	var name string
	switch n.Type() {
	case "integer":
		name = "int"
	case "float":
		name = "float"
	case "string", "concatenated_string":
		name = "str"
		text := sc.text(n)
		if i := strings.IndexAny(text, `"'`); i > 0 && strings.ContainsAny(text[:i], "bB") {
			name = "bytes"
		}
	case "true", "false":
		name = "bool"
	case "none":
		name = "NoneType"
	case "list", "list_comprehension":
		name = "list"
	case "dictionary", "dictionary_comprehension":
		name = "dict"
	case "tuple":
		name = "tuple"
	case "set", "set_comprehension":
		name = "set"
	case "identifier", "attribute":
		// Aliases of classes become type references.
		text := sc.text(n)
		if sc.local[text] {
			return core.TypeRef(sc.module, text)
		}
		return nil
	default:
		return nil
	}
	return core.TypeRef("", name)
}

// ref converts an annotation to a type reference. Bare names resolve to
// a class of this module, then an imported name, then the builtin module.
func (sc *scope) ref(annotation string) []any {
	annotation = strings.Trim(strings.TrimSpace(annotation), `"'`)
	base, args := splitSubscript(strings.TrimPrefix(annotation, "typing."))
	if base == "Optional" && len(args) == 1 {
		return sc.ref(args[0])
	}

	var index []any
	for _, a := range args {
		index = append(index, sc.ref(a))
	}

	module, name := "", base
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		module, name = base[:i], base[i+1:]
		if imp, ok := sc.imports[module]; ok {
			module = imp[0] + "." + imp[1]
		}
	} else if sc.local[base] {
		module = sc.module
	} else if imp, ok := sc.imports[base]; ok {
		module, name = imp[0], imp[1]
	}
	if module == "typing" || module == "" {
		if lowered := lowerGeneric(name); lowered != name {
			module, name = "", lowered
		}
	}
	if len(index) > 0 {
		return core.TypeRef(module, name, index...)
	}
	return core.TypeRef(module, name)
}

// lowerGeneric maps typing aliases to their builtin types.
func lowerGeneric(name string) string {
	switch name {
	case "List":
		return "list"
	case "Dict":
		return "dict"
	case "Tuple":
		return "tuple"
	case "Set":
		return "set"
	case "FrozenSet":
		return "frozenset"
	case "Type":
		return "type"
	case "Any":
		return "object"
	case "None":
		return "NoneType"
	}
	return name
}

// splitSubscript splits "a.B[x, y[z]]" into "a.B" and ["x", "y[z]"].
func splitSubscript(s string) (string, []string) {
	open := strings.IndexByte(s, '[')
	if open < 0 || !strings.HasSuffix(s, "]") {
		return s, nil
	}
	base, inner := s[:open], s[open+1:len(s)-1]
	var args []string
	depth, start := 0, 0
	for i, r := range inner {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(inner[start:]); last != "" {
		args = append(args, last)
	}
	return strings.TrimSpace(base), args
}

func (sc *scope) fieldText(n *sitter.Node, field string) string {
	if c := n.ChildByFieldName(field); c != nil {
		return sc.text(c)
	}
	return ""
}

// docstring returns the leading string literal of body, unquoted.
func (sc *scope) docstring(body *sitter.Node) string {
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return unquote(sc.text(str))
}

func unquote(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}
	return strings.TrimSpace(s)
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n.Type() == "decorated_definition" {
		if def := n.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return n
}

func decoratorNames(n *sitter.Node, src []byte) []string {
	if n.Type() != "decorated_definition" {
		return nil
	}
	var names []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "decorator" {
			names = append(names, strings.TrimSpace(strings.TrimPrefix(c.Content(src), "@")))
		}
	}
	return names
}

func hasDecorator(decorators []string, name string) bool {
	for _, d := range decorators {
		if d == name {
			return true
		}
	}
	return false
}

func location(n *sitter.Node) []any {
	p := n.StartPoint()
	return []any{int(p.Row) + 1, int(p.Column)}
}
