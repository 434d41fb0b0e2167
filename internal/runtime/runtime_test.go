package runtime

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/typedb/internal/record"
	"github.com/jward/typedb/internal/store"
	core "github.com/jward/typedb/internal/typedb"
)

const pyTestSource = `"""Geometry helpers."""

def area(width, height=1):
    return width * height

def perimeter(width, height):
    return 2 * (width + height)

class Square(Shape):
    def __init__(self, side):
        self.side = side

    def scale(self, k):
        return Square(self.side * k)
`

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// parsePySource parses Python source with tree-sitter directly and
// registers it in a Runtime's tree index.
func parsePySource(t *testing.T, src string) (*sitter.Tree, *Runtime) {
	t.Helper()

	rt := NewRuntime(nil, "")

	lang, ok := ParserForLanguage("python")
	require.True(t, ok, "python language not found")

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)

	rt.trees.add(tree, []byte(src), lang)
	return tree, rt
}

func writePy(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geometry.py")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

// newState returns a state with a small builtin module and two user
// modules loaded.
func newState(t *testing.T) *core.State {
	t.Helper()
	s := core.NewState(core.WithLogger(quiet))

	typ := func(members record.Map, bases ...any) record.Map {
		v := record.Map{}
		if members != nil {
			v["members"] = members
		}
		if len(bases) > 0 {
			v["bases"] = bases
		}
		return record.Map{"kind": "type", "value": v}
	}
	fn := func(ret []any, args ...string) record.Map {
		params := make([]any, len(args))
		for i, a := range args {
			params[i] = record.Map{"name": a}
		}
		o := record.Map{"args": params}
		if ret != nil {
			o["ret_type"] = []any{ret}
		}
		return record.Map{"kind": "function", "value": record.Map{"overloads": []any{o}}}
	}
	obj := core.TypeRef("", "object")

	_, ok := s.Load(time.Second, core.ModuleDesc{Name: s.BuiltinModuleName(), Builtin: true, Desc: record.Map{
		"members": record.Map{
			"object": typ(nil),
			"int":    typ(nil, obj),
			"str":    typ(record.Map{"upper": record.Map{"kind": "method", "value": record.Map{"overloads": []any{record.Map{"args": []any{record.Map{"name": "self"}}}}}}}, obj),
			"list":   typ(nil, obj),
			"len":    fn(core.TypeRef("", "int"), "obj"),
		},
	}})
	require.True(t, ok)

	_, ok = s.Load(time.Second,
		core.ModuleDesc{Name: "shapes", Desc: record.Map{"doc": "Shapes.", "members": record.Map{
			"Shape":  typ(record.Map{"area": fn(core.TypeRef("", "int"), "self")}, obj),
			"Square": typ(record.Map{"side": record.Map{"kind": "data", "value": record.Map{"type": core.TypeRef("", "int")}}}, core.TypeRef("shapes", "Shape")),
		}}},
		core.ModuleDesc{Name: "app", Desc: record.Map{"members": record.Map{
			"canvas": record.Map{"kind": "data", "value": record.Map{"type": core.TypeRef("shapes", "Square")}},
			"geo":    record.Map{"kind": "moduleref", "value": []any{"shapes"}},
		}}},
	)
	require.True(t, ok)
	return s
}

// newSnapshot returns a store holding one module with three members.
func newSnapshot(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())

	shapes := &store.Module{Name: "shapes", Doc: "Shapes.", MemberCount: 2}
	_, err = s.InsertModule(shapes)
	require.NoError(t, err)
	app := &store.Module{Name: "app", MemberCount: 1}
	_, err = s.InsertModule(app)
	require.NoError(t, err)

	for _, m := range []*store.Member{
		{ModuleID: shapes.ID, Name: "Shape", Kind: store.KindType},
		{ModuleID: shapes.ID, Name: "Square", Kind: store.KindType},
		{ModuleID: app.ID, Name: "canvas", Kind: store.KindConstant, TypeName: "shapes.Square"},
	} {
		_, err := s.InsertMember(m)
		require.NoError(t, err)
	}
	return s
}

// =============================================================================
// Languages
// =============================================================================

func TestLanguageForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"mod.py", "python", true},
		{"stubs/os.pyi", "python", true},
		{"GUI.PYW", "python", true},
		{"main.go", "", false},
		{"README", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			got, ok := LanguageForFile(tt.path)
			if ok != tt.ok {
				t.Errorf("LanguageForFile(%q) ok = %v, want %v", tt.path, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("LanguageForFile(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestParserForLanguage(t *testing.T) {
	t.Parallel()

	l, ok := ParserForLanguage("python")
	require.True(t, ok)
	assert.NotNil(t, l)

	_, ok = ParserForLanguage("cobol")
	assert.False(t, ok)
}

// =============================================================================
// Tree-sitter plumbing
// =============================================================================

func TestParse_ModuleRoot(t *testing.T) {
	tree, _ := parsePySource(t, pyTestSource)
	defer tree.Close()

	root := tree.RootNode()
	require.NotNil(t, root)
	assert.Equal(t, "module", root.Type())
	assert.False(t, root.HasError())
}

func TestNodeText_FunctionName(t *testing.T) {
	tree, rt := parsePySource(t, pyTestSource)
	defer tree.Close()

	root := tree.RootNode()
	var fn *sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if c := root.NamedChild(i); c.Type() == "function_definition" {
			fn = c
			break
		}
	}
	require.NotNil(t, fn)

	pt, ok := rt.trees.lookup(fn.ChildByFieldName("name"))
	require.True(t, ok)
	assert.Equal(t, "area", fn.ChildByFieldName("name").Content(pt.src))
}

func TestTreeIndex_LookupFromNestedNode(t *testing.T) {
	tree, rt := parsePySource(t, pyTestSource)
	defer tree.Close()

	root := tree.RootNode()
	deep := root.NamedDescendantForPointRange(sitter.Point{Row: 10, Column: 8}, sitter.Point{Row: 10, Column: 12})
	require.NotNil(t, deep)
	pt, ok := rt.trees.lookup(deep)
	require.True(t, ok)
	want, _ := ParserForLanguage("python")
	assert.Equal(t, want, pt.lang)
	assert.Equal(t, pyTestSource, string(pt.src))
}

// =============================================================================
// Parsing host functions
// =============================================================================

func TestRunSource_ParseAndQuery(t *testing.T) {
	path := writePy(t, pyTestSource)
	rt := NewRuntime(nil, "", WithRuntimeLogger(quiet))

	script := `
tree := parse(test_file)
root := tree.RootNode()
assert(root.Type() == "module", "expected module")

names := []
for _, m := range query("(function_definition name: (identifier) @name)", root) {
    names.append(node_text(m["name"]))
}
names
`
	got, err := rt.RunSource(context.Background(), script, map[string]any{"test_file": path})
	require.NoError(t, err)
	assert.Equal(t, []any{"area", "perimeter", "__init__", "scale"}, got)
}

func TestRunSource_ParseRejectsUnknownExtension(t *testing.T) {
	rt := NewRuntime(nil, "")
	_, err := rt.RunSource(context.Background(), `parse("main.go")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no grammar")
}

func TestRunSource_ParseSrcDefaultsToPython(t *testing.T) {
	rt := NewRuntime(nil, "")

	script := `
tree := parse_src("class A(B):\n    pass\n")
cls := tree.RootNode().NamedChild(0)
[cls.Type(), node_text(node_child(cls, "name")), node_text(node_child(cls, "superclasses"))]
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"class_definition", "A", "(B)"}, got)
}

func TestRunSource_ParseSrcUnsupportedLanguage(t *testing.T) {
	rt := NewRuntime(nil, "")
	_, err := rt.RunSource(context.Background(), `parse_src("x", "cobol")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported language")
}

func TestRunSource_NodeChildMissingFieldIsNil(t *testing.T) {
	rt := NewRuntime(nil, "")

	script := `
fn := parse_src("def f(): pass\n").RootNode().NamedChild(0)
node_child(fn, "return_type") == nil
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, true, got)
}

func TestRunSource_QueryMultipleCaptures(t *testing.T) {
	rt := NewRuntime(nil, "")

	script := `
root := parse_src(src).RootNode()
out := []
for _, m := range query("(class_definition name: (identifier) @cls body: (block (function_definition name: (identifier) @method)))", root) {
    out.append(node_text(m["cls"]) + "." + node_text(m["method"]))
}
out
`
	got, err := rt.RunSource(context.Background(), script, map[string]any{"src": pyTestSource})
	require.NoError(t, err)
	assert.Equal(t, []any{"Square.__init__", "Square.scale"}, got)
}

func TestRunSource_QueryNoMatches(t *testing.T) {
	rt := NewRuntime(nil, "")
	got, err := rt.RunSource(context.Background(), `len(query("(class_definition) @c", parse_src("x = 1\n").RootNode()))`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestRunSource_QueryInvalidPattern(t *testing.T) {
	rt := NewRuntime(nil, "")
	_, err := rt.RunSource(context.Background(), `query("(not_a_real_node_type @x)", parse_src("x = 1\n").RootNode())`, nil)
	require.Error(t, err)
}

func TestRunSource_NodeLocation(t *testing.T) {
	rt := NewRuntime(nil, "")
	got, err := rt.RunSource(context.Background(), `node_location(parse_src("x = 1\n\nclass A:\n    pass\n").RootNode().NamedChild(1))`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(3), int64(0)}, got)
}

// =============================================================================
// Scraping host functions
// =============================================================================

func TestRunSource_ScrapeSrc(t *testing.T) {
	rt := NewRuntime(nil, "", WithRuntimeLogger(quiet))

	script := `
r := scrape_src("m", "class A:\n    def f(self) -> int: ...\n")
a := r["members"]["A"]
[a["kind"], a["location"], a["value"]["members"]["f"]["kind"]]
`
	got, err := rt.RunSource(context.Background(), script, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"type", []any{int64(1), int64(0)}, "method"}, got)
}

func TestRunSource_ScrapeFileNamesModuleAfterFile(t *testing.T) {
	path := writePy(t, pyTestSource)
	rt := NewRuntime(nil, "", WithRuntimeLogger(quiet))

	script := `
r := scrape(test_file)
[r["members"]["area"]["kind"], r["members"]["Square"]["kind"]]
`
	got, err := rt.RunSource(context.Background(), script, map[string]any{"test_file": path})
	require.NoError(t, err)
	assert.Equal(t, []any{"function", "type"}, got)
}

func TestRunSource_ScrapeMissingFile(t *testing.T) {
	rt := NewRuntime(nil, "", WithRuntimeLogger(quiet))
	_, err := rt.RunSource(context.Background(), `scrape("/no/such/file.py")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrape")
}

// =============================================================================
// Type database host functions
// =============================================================================

func TestStateGlobals_ModuleNames(t *testing.T) {
	rt := NewRuntime(newState(t), "")
	got, err := rt.RunSource(context.Background(), `module_names()`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"app", "builtins", "shapes"}, got)
}

func TestStateGlobals_GetModule(t *testing.T) {
	rt := NewRuntime(newState(t), "")

	got, err := rt.RunSource(context.Background(), `get_module("shapes")`, nil)
	require.NoError(t, err)
	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shapes", m["name"])
	assert.Equal(t, "module", m["kind"])
	assert.Equal(t, "Shapes.", m["doc"])
	assert.Equal(t, false, m["builtin"])
	assert.Equal(t, []any{"Shape", "Square"}, m["members"])

	got, err = rt.RunSource(context.Background(), `get_module("nowhere")`, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateGlobals_GetMemberWalksThroughValues(t *testing.T) {
	rt := NewRuntime(newState(t), "")
	ctx := context.Background()

	got, err := rt.RunSource(ctx, `get_member("shapes", "Square")`, nil)
	require.NoError(t, err)
	sq := got.(map[string]any)
	assert.Equal(t, "shapes.Square", sq["qualified_name"])
	assert.Equal(t, []any{"shapes.Shape"}, sq["bases"])
	assert.Equal(t, []any{"side", "area"}, sq["members"])

	got, err = rt.RunSource(ctx, `get_member("app", "canvas.area")`, nil)
	require.NoError(t, err)
	area := got.(map[string]any)
	assert.Equal(t, "area", area["name"])
	overloads := area["overloads"].([]any)
	require.Len(t, overloads, 1)
	assert.Equal(t, []any{"int"}, overloads[0].(map[string]any)["returns"])

	got, err = rt.RunSource(ctx, `get_member("app", "geo.Square.side")["type"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "int", got)

	got, err = rt.RunSource(ctx, `get_member("app", "canvas.nope")`, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateGlobals_LookupType(t *testing.T) {
	s := newState(t)
	rt := NewRuntime(s, "")
	ctx := context.Background()

	got, err := rt.RunSource(ctx, `lookup_type("", "str")["type_id"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "Unicode", got)

	got, err = rt.RunSource(ctx, `lookup_type("shapes", "Square")["qualified_name"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "shapes.Square", got)

	got, err = rt.RunSource(ctx, `lookup_type("", "len")["name"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "object", got, "non-type members resolve to object")

	got, err = rt.RunSource(ctx, `lookup_type("later", "Thing")`, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, s.PendingFixups(), "scripts never queue fixups")
}

func TestStateGlobals_BuiltinTypeName(t *testing.T) {
	rt := NewRuntime(newState(t), "")
	ctx := context.Background()

	got, err := rt.RunSource(ctx, `builtin_type_name("Unicode")`, nil)
	require.NoError(t, err)
	assert.Equal(t, "str", got)

	_, err = rt.RunSource(ctx, `builtin_type_name("Teapot")`, nil)
	require.Error(t, err)
}

func TestStateGlobals_AbsentWithoutState(t *testing.T) {
	rt := NewRuntime(nil, "")
	_, err := rt.RunSource(context.Background(), `module_names()`, nil)
	require.Error(t, err)
}

// =============================================================================
// Snapshot host functions
// =============================================================================

func TestSnapshotGlobals(t *testing.T) {
	rt := NewRuntime(nil, "", WithStore(newSnapshot(t)))
	ctx := context.Background()

	got, err := rt.RunSource(ctx, `
out := []
for _, m := range snapshot_modules() { out.append(m["name"]) }
out
`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"app", "shapes"}, got)

	got, err = rt.RunSource(ctx, `
out := []
for _, m := range snapshot_members("shapes") { out.append(m["name"] + ":" + m["kind"]) }
out
`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"Shape:type", "Square:type"}, got)

	got, err = rt.RunSource(ctx, `snapshot_members("nowhere")`, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = rt.RunSource(ctx, `len(snapshot_search("S*"))`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	got, err = rt.RunSource(ctx, `len(snapshot_search("*", 1))`, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	got, err = rt.RunSource(ctx, `snapshot_dependents("shapes")`, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"app"}, got)
}

func TestDBQuery(t *testing.T) {
	rt := NewRuntime(nil, "", WithStore(newSnapshot(t)))
	ctx := context.Background()

	got, err := rt.RunSource(ctx, `db_query("SELECT name FROM members WHERE type_name = ?", "shapes.Square")[0]["name"]`, nil)
	require.NoError(t, err)
	assert.Equal(t, "canvas", got)

	_, err = rt.RunSource(ctx, `db_query("DELETE FROM members")`, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only SELECT")
}

// =============================================================================
// Script loading
// =============================================================================

func TestRunScript_LoadsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte("1 + 1\n"), 0644))

	rt := NewRuntime(nil, dir)
	got, err := rt.RunScript(context.Background(), "test.risor", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
}

func TestRunScript_MissingFile(t *testing.T) {
	rt := NewRuntime(nil, t.TempDir())
	_, err := rt.RunScript(context.Background(), "nonexistent.risor", nil)
	require.Error(t, err)
}

func TestBuiltinScriptPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "inspect/summary.risor", BuiltinScriptPath("summary"))
}

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()

	mapFS := fstest.MapFS{
		"inspect/summary.risor": &fstest.MapFile{Data: []byte(`x := 42`)},
	}
	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	got, err := rt.LoadScript("inspect/summary.risor")
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)

	got, err = rt.LoadScript("./inspect/summary.risor")
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)

	_, err = rt.LoadScript("nonexistent.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLoadScript_AbsolutePathBypassesFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "local.risor")
	require.NoError(t, os.WriteFile(path, []byte(`z := 7`), 0644))

	rt := NewRuntime(nil, "", WithRuntimeFS(fstest.MapFS{}))
	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)
}

func TestLoadScript_RelativeToScriptsDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.risor"), []byte(`z := 7`), 0644))

	rt := NewRuntime(nil, dir)
	got, err := rt.LoadScript("test.risor")
	require.NoError(t, err)
	assert.Equal(t, `z := 7`, got)
}

// =============================================================================
// Importers
// =============================================================================

func TestImport_FSImporter(t *testing.T) {
	// Risor's FSImporter resolves "lib_helpers" by trying name + ".risor",
	// so the file must be at the flat path "lib_helpers.risor" in the FS.
	mapFS := fstest.MapFS{
		"lib_helpers.risor": &fstest.MapFile{Data: []byte(`
func greet(name) {
	return "hello " + name
}
`)},
	}
	rt := NewRuntime(nil, "", WithRuntimeFS(mapFS))

	got, err := rt.RunSource(context.Background(), "import lib_helpers\nlib_helpers.greet(\"world\")\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
}

func TestImport_FromScriptsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "math_utils.risor"), []byte(`
func double(x) {
	return x * 2
}
`), 0644))

	rt := NewRuntime(nil, dir)
	got, err := rt.RunSource(context.Background(), "import math_utils\nmath_utils.double(21)\n", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestImport_GlobalsAvailableInImportedModules(t *testing.T) {
	// The importer must know host global names or the module fails to
	// compile.
	mapFS := fstest.MapFS{
		"helper.risor": &fstest.MapFile{Data: []byte(`
func count_modules() {
	log.Info("counting")
	return len(module_names())
}
`)},
	}
	rt := NewRuntime(newState(t), "", WithRuntimeFS(mapFS), WithRuntimeLogger(quiet))

	got, err := rt.RunSource(context.Background(), "import helper\nhelper.count_modules()\n", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
}

func TestNewRuntime_Defaults(t *testing.T) {
	t.Parallel()

	rt := NewRuntime(nil, "/some/dir")
	require.NotNil(t, rt)
	assert.Nil(t, rt.fsys)
	assert.Nil(t, rt.store)
	assert.NotNil(t, rt.log)
	assert.Equal(t, "/some/dir", rt.scriptsDir)
}
