package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/typedb/internal/scrape"
	"github.com/jward/typedb/internal/store"
	core "github.com/jward/typedb/internal/typedb"
)

// Runtime embeds a Risor VM and exposes a loaded type database, an
// optional exported snapshot, and Python parsing host functions to
// inspection scripts.
type Runtime struct {
	state      *core.State
	store      *store.Store
	scriptsDir string
	fsys       fs.FS
	log        *slog.Logger
	trees      *treeIndex
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS reads relative script paths and imports from fsys
// instead of scriptsDir.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithStore exposes an exported snapshot to scripts.
func WithStore(s *store.Store) RuntimeOption {
	return func(r *Runtime) {
		r.store = s
	}
}

// WithRuntimeLogger sets the logger behind the script "log" global.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRuntime creates a Runtime over state (which may be nil). Relative
// script paths resolve against scriptsDir unless WithRuntimeFS is given.
func NewRuntime(state *core.State, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		state:      state,
		scriptsDir: scriptsDir,
		log:        slog.Default(),
		trees:      newTreeIndex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads the script at path and evaluates it with the host
// globals plus extra. The value of the last expression is returned
// converted to Go; nil when the script ends in a statement.
func (r *Runtime) RunScript(ctx context.Context, path string, extra map[string]any) (any, error) {
	src, err := r.LoadScript(path)
	if err != nil {
		return nil, err
	}
	return r.eval(ctx, src, path, extra)
}

// RunSource evaluates Risor source text like RunScript.
func (r *Runtime) RunSource(ctx context.Context, source string, extra map[string]any) (any, error) {
	return r.eval(ctx, source, "<inline>", extra)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extra map[string]any) (any, error) {
	globals := r.buildGlobals(extra)

	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if src := r.scriptFS(); src != nil {
		names := make([]string, 0, len(globals))
		for name := range globals {
			names = append(names, name)
		}
		// Imported modules are compiled separately and must be told
		// which names are host globals.
		opts = append(opts, risor.WithImporter(importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: names,
			SourceFS:    src,
			Extensions:  []string{".risor"},
		})))
	}

	result, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return nil, fmt.Errorf("runtime: script %s: %w", label, err)
	}
	if result == nil || result == object.Nil {
		return nil, nil
	}
	return result.Interface(), nil
}

// scriptFS is where relative script paths and imports resolve: the
// configured fs.FS, else scriptsDir, else nothing.
func (r *Runtime) scriptFS() fs.FS {
	switch {
	case r.fsys != nil:
		return r.fsys
	case r.scriptsDir != "":
		return os.DirFS(r.scriptsDir)
	default:
		return nil
	}
}

// LoadScript reads a .risor file and returns its source code. Absolute
// paths are read from disk. Relative paths are read from the configured
// fs.FS or scriptsDir, and from the working directory when neither is set.
func (r *Runtime) LoadScript(path string) (string, error) {
	src := r.scriptFS()
	if filepath.IsAbs(path) || src == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s: %w", path, err)
		}
		return string(data), nil
	}

	name := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "./")
	data, err := fs.ReadFile(src, name)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s from fs: %w", name, err)
	}
	return string(data), nil
}

// BuiltinScriptPath returns the path of a bundled inspection script.
func BuiltinScriptPath(name string) string {
	return "inspect/" + name + ".risor"
}

// buildGlobals returns every global a script sees. Database globals are
// present only when a state or snapshot is attached.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	sc := scrape.New(scrape.WithLogger(r.log))
	globals := map[string]any{
		"parse":         makeParseFn(r.trees),
		"parse_src":     makeParseSrcFn(r.trees),
		"node_text":     makeNodeTextFn(r.trees),
		"node_child":    makeNodeChildFn(),
		"node_location": makeNodeLocationFn(),
		"query":         makeQueryFn(r.trees),
		"scrape":        makeScrapeFn(sc),
		"scrape_src":    makeScrapeSrcFn(sc),
		"log":           mustProxy(&logObject{log: r.log}),
	}

	if r.state != nil {
		globals["module_names"] = makeModuleNamesFn(r.state)
		globals["get_module"] = makeGetModuleFn(r.state)
		globals["get_member"] = makeGetMemberFn(r.state)
		globals["lookup_type"] = makeLookupTypeFn(r.state)
		globals["builtin_type_name"] = makeBuiltinTypeNameFn(r.state)
	}
	if r.store != nil {
		globals["snapshot_modules"] = makeSnapshotModulesFn(r.store)
		globals["snapshot_members"] = makeSnapshotMembersFn(r.store)
		globals["snapshot_search"] = makeSnapshotSearchFn(r.store)
		globals["snapshot_dependents"] = makeSnapshotDependentsFn(r.store)
		globals["db_query"] = makeDBQueryFn(r.store)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
