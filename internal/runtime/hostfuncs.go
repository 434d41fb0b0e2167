package runtime

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/typedb/internal/record"
	"github.com/jward/typedb/internal/scrape"
)

// parsedTree is the source and grammar behind one parsed tree.
type parsedTree struct {
	src  []byte
	lang *sitter.Language
}

// treeIndex lets node_text and query recover a node's source and grammar.
// smacker/go-tree-sitter has no Node.Tree(), so trees are keyed by the
// address of their root node and looked up by walking Parent().
type treeIndex struct {
	mu    sync.RWMutex
	trees map[uintptr]parsedTree
}

func newTreeIndex() *treeIndex {
	return &treeIndex{trees: make(map[uintptr]parsedTree)}
}

func (ti *treeIndex) add(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	ti.mu.Lock()
	ti.trees[key] = parsedTree{src: src, lang: lang}
	ti.mu.Unlock()
}

func (ti *treeIndex) lookup(node *sitter.Node) (parsedTree, bool) {
	for node.Parent() != nil {
		node = node.Parent()
	}
	ti.mu.RLock()
	pt, ok := ti.trees[uintptr(unsafe.Pointer(node))]
	ti.mu.RUnlock()
	return pt, ok
}

// nodeArg unwraps a proxied *sitter.Node argument. The second result is a
// Risor error to return as-is when the argument is not a node.
func nodeArg(fn string, arg object.Object) (*sitter.Node, object.Object) {
	proxy, ok := arg.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected proxy (Node), got %s", fn, arg.Type())
	}
	node, ok := proxy.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected *sitter.Node, got %T", fn, proxy.Interface())
	}
	return node, nil
}

// stringArg unwraps a string argument named what.
func stringArg(fn, what string, arg object.Object) (string, object.Object) {
	s, ok := arg.(*object.String)
	if !ok {
		return "", object.Errorf("%s: %s must be a string, got %s", fn, what, arg.Type())
	}
	return s.Value(), nil
}

func proxyOf(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: proxy error: %v", fn, err)
	}
	return p
}

// parse(path) → *sitter.Tree
//
// The grammar comes from the file extension (.py, .pyi, .pyw).
func makeParseFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse", 1, len(args))
		}
		path, errObj := stringArg("parse", "path", args[0])
		if errObj != nil {
			return errObj
		}
		lang, ok := LanguageForFile(path)
		if !ok {
			return object.Errorf("parse: no grammar for %s", path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		return parseInto(ctx, ti, src, lang)
	})
}

// parse_src(source, language?) → *sitter.Tree
//
// The language defaults to python.
func makeParseSrcFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("parse_src: expected 1 or 2 arguments, got %d", len(args))
		}
		src, errObj := stringArg("parse_src", "source", args[0])
		if errObj != nil {
			return errObj
		}
		lang := "python"
		if len(args) == 2 {
			if lang, errObj = stringArg("parse_src", "language", args[1]); errObj != nil {
				return errObj
			}
		}
		return parseInto(ctx, ti, []byte(src), lang)
	})
}

func parseInto(ctx context.Context, ti *treeIndex, src []byte, langName string) object.Object {
	lang, found := ParserForLanguage(langName)
	if !found {
		return object.Errorf("parse: unsupported language %q", langName)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return object.Errorf("parse: tree-sitter parse failed: %v", err)
	}
	ti.add(tree, src, lang)
	return proxyOf("parse", tree)
}

// node_text(node) → string
//
// Risor's proxies cannot pass []byte, so node.Content(src) is not callable
// from scripts directly.
func makeNodeTextFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		pt, found := ti.lookup(node)
		if !found {
			return object.Errorf("node_text: no source found for node's tree")
		}
		return object.NewString(node.Content(pt.src))
	})
}

// node_child(node, field) → Node or nil
//
// A proxied Go nil pointer is not nil to Risor, so a missing child comes
// back as Risor nil.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", "field", args[1])
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOf("node_child", child)
	})
}

// node_location(node) → [line, col]
//
// Lines are 1-based and columns 0-based, as in a module record's
// "location" field.
func makeNodeLocationFn() *object.Builtin {
	return object.NewBuiltin("node_location", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_location", 1, len(args))
		}
		node, errObj := nodeArg("node_location", args[0])
		if errObj != nil {
			return errObj
		}
		p := node.StartPoint()
		return object.NewList([]object.Object{
			object.NewInt(int64(p.Row) + 1),
			object.NewInt(int64(p.Column)),
		})
	})
}

// query(pattern, node) → list of maps from capture name to Node
func makeQueryFn(ti *treeIndex) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", "pattern", args[0])
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		pt, found := ti.lookup(node)
		if !found {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), pt.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, pt.src)

			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: proxy error for capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// scrape(path, module?) → module record
//
// The module name defaults to the file name without its extension.
func makeScrapeFn(sc *scrape.Scraper) *object.Builtin {
	return object.NewBuiltin("scrape", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("scrape: expected 1 or 2 arguments, got %d", len(args))
		}
		path, errObj := stringArg("scrape", "path", args[0])
		if errObj != nil {
			return errObj
		}
		module := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if len(args) == 2 {
			if module, errObj = stringArg("scrape", "module", args[1]); errObj != nil {
				return errObj
			}
		}
		desc, err := sc.File(ctx, module, path)
		if err != nil {
			return object.Errorf("scrape: %v", err)
		}
		return recordToObject(desc)
	})
}

// scrape_src(module, source) → module record
func makeScrapeSrcFn(sc *scrape.Scraper) *object.Builtin {
	return object.NewBuiltin("scrape_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("scrape_src", 2, len(args))
		}
		module, errObj := stringArg("scrape_src", "module", args[0])
		if errObj != nil {
			return errObj
		}
		src, errObj := stringArg("scrape_src", "source", args[1])
		if errObj != nil {
			return errObj
		}
		desc, err := sc.Source(ctx, module, []byte(src))
		if err != nil {
			return object.Errorf("scrape_src: %v", err)
		}
		return recordToObject(desc)
	})
}

// recordToObject converts a decoded record value to Risor objects.
func recordToObject(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case record.Map:
		m := make(map[string]object.Object, len(x))
		for k, item := range x {
			m[k] = recordToObject(item)
		}
		return object.NewMap(m)
	case []any:
		items := make([]object.Object, len(x))
		for i, item := range x {
			items[i] = recordToObject(item)
		}
		return object.NewList(items)
	case string:
		return object.NewString(x)
	case bool:
		return object.NewBool(x)
	case int:
		return object.NewInt(int64(x))
	case int64:
		return object.NewInt(x)
	case float64:
		return object.NewFloat(x)
	default:
		return sqlValueToObject(x)
	}
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	log *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.log.Info("script.log", "msg", msg)
}

func (l *logObject) Warn(msg string) {
	l.log.Warn("script.log", "msg", msg)
}

func (l *logObject) Error(msg string) {
	l.log.Error("script.log", "msg", msg)
}
