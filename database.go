package typedb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"weak"

	"github.com/jward/typedb/internal/record"
	core "github.com/jward/typedb/internal/typedb"
	"github.com/jward/typedb/internal/store"
	"github.com/jward/typedb/internal/version"
	"github.com/jward/typedb/scripts"
)

// DefaultLoadTimeout bounds how long a load waits for another batch to
// finish before giving up with ErrLoadTimeout.
const DefaultLoadTimeout = 10 * time.Second

var (
	// ErrLoadTimeout is returned when the load lock could not be taken in time.
	ErrLoadTimeout = errors.New("typedb: timed out waiting for another load to finish")

	// ErrModuleNotFound is returned by lookups naming a module that is not loaded.
	ErrModuleNotFound = errors.New("typedb: module not found")
)

// moduleExts are the description file extensions a database directory may
// contain. Earlier entries win when a module has more than one file.
var moduleExts = []string{".json", ".yaml", ".yml"}

// Database is a loaded completion type database: a shared state plus the
// loading, export and query surface around it.
type Database struct {
	state *core.State
	log   *slog.Logger

	timeout     time.Duration
	lang        string
	fixupLimit  int
	defaultDB   bool
	useParallel bool
	workers     int
	scriptsFS   fs.FS

	mu      sync.Mutex
	sources map[string]string // module name -> source hash
}

// Option configures a Database.
type Option func(*Database)

// WithLanguageVersion selects the target language version, e.g. "3.2".
// Members whose version expression excludes it are skipped, and the builtin
// dialect follows the major version.
func WithLanguageVersion(v string) Option {
	return func(d *Database) {
		d.lang = v
	}
}

// WithLogger sets the structured logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.log = l
		}
	}
}

// WithLoadTimeout bounds how long loads wait for the load lock. A negative
// value waits forever.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(d *Database) {
		d.timeout = timeout
	}
}

// WithFixupLimit sets how many load batches an unresolved reference waits
// before falling back to object.
func WithFixupLimit(n int) Option {
	return func(d *Database) {
		d.fixupLimit = n
	}
}

// WithParallel controls parallel decoding and export. When true (default),
// module files are decoded by a bounded worker pool and export builds one
// batch per module concurrently. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(d *Database) {
		d.useParallel = parallel
	}
}

// WithWorkers caps the worker pool. Zero or less means one worker per CPU.
func WithWorkers(n int) Option {
	return func(d *Database) {
		d.workers = n
	}
}

// WithDefaultDatabase marks the database as the interpreter's default
// database, enabling the 3.x module aliases cPickle and thread.
func WithDefaultDatabase(on bool) Option {
	return func(d *Database) {
		d.defaultDB = on
	}
}

// WithScriptsFS sets the filesystem relative Risor script paths are read
// from. It defaults to the bundled inspection scripts.
func WithScriptsFS(fsys fs.FS) Option {
	return func(d *Database) {
		d.scriptsFS = fsys
	}
}

// New creates a Database and, when dir is not empty, loads every module
// description in it. The builtin module is loaded first in its own batch.
func New(dir string, opts ...Option) (*Database, error) {
	d, err := newDatabase(opts)
	if err != nil {
		return nil, err
	}
	d.state = core.NewState(d.coreOptions()...)
	if dir != "" {
		if err := d.LoadDatabase(context.Background(), dir); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func newDatabase(opts []Option) (*Database, error) {
	d := &Database{
		log:         slog.Default(),
		timeout:     DefaultLoadTimeout,
		fixupLimit:  core.DefaultFixupLimit,
		useParallel: true,
		scriptsFS:   scripts.FS,
		sources:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.lang != "" {
		if _, ok := version.Parse(d.lang); !ok {
			return nil, fmt.Errorf("typedb: invalid language version %q", d.lang)
		}
	}
	return d, nil
}

func (d *Database) coreOptions() []core.Option {
	opts := []core.Option{
		core.WithLogger(d.log),
		core.WithFixupLimit(d.fixupLimit),
		core.WithDefaultDatabase(d.defaultDB),
	}
	if v, ok := version.Parse(d.lang); ok {
		opts = append(opts, core.WithLanguageVersion(v))
	}
	return opts
}

// State exposes the underlying shared state for callers that drive loads
// themselves, such as the script host.
func (d *Database) State() *core.State {
	return d.state
}

// Overlay creates a Database layered over d and loads dir into it. Module
// and builtin lookups that miss in the overlay fall through to d, so
// project-local modules can sit on top of a shared interpreter database.
func (d *Database) Overlay(dir string, opts ...Option) (*Database, error) {
	base := []Option{
		WithLogger(d.log),
		WithLoadTimeout(d.timeout),
		WithLanguageVersion(d.lang),
		WithFixupLimit(d.fixupLimit),
		WithParallel(d.useParallel),
		WithWorkers(d.workers),
		WithScriptsFS(d.scriptsFS),
	}
	o, err := newDatabase(append(base, opts...))
	if err != nil {
		return nil, err
	}
	o.state = core.NewOverlay(d.state, o.coreOptions()...)
	if dir != "" {
		if err := o.LoadDatabase(context.Background(), dir); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// moduleFile is one description file found in a database directory.
type moduleFile struct {
	name string
	path string
}

// decodedModule is the result of reading and decoding one moduleFile.
type decodedModule struct {
	moduleFile
	hash string
	desc record.Map
	err  error
}

// listModuleFiles returns the description files directly inside dir, one
// per module name, sorted by module name.
func listModuleFiles(dir string) ([]moduleFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read database dir: %w", err)
	}
	rank := func(ext string) int {
		for i, e := range moduleExts {
			if e == ext {
				return i
			}
		}
		return -1
	}
	best := map[string]moduleFile{}
	bestRank := map[string]int{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := filepath.Ext(e.Name())
		r := rank(ext)
		if r < 0 {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if prev, ok := bestRank[name]; ok && prev <= r {
			continue
		}
		best[name] = moduleFile{name: name, path: filepath.Join(dir, e.Name())}
		bestRank[name] = r
	}
	files := make([]moduleFile, 0, len(best))
	for _, f := range best {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func decodeModuleFile(f moduleFile) decodedModule {
	dm := decodedModule{moduleFile: f}
	data, err := os.ReadFile(f.path)
	if err != nil {
		dm.err = fmt.Errorf("read: %w", err)
		return dm
	}
	dm.hash = store.HashSource(data)
	dm.desc, dm.err = record.DecodeNamed(f.path, data)
	return dm
}

// LoadDatabase loads every module description in dir. Files are decoded
// first (in parallel unless disabled), then the builtin module is loaded
// in its own batch and the remaining modules in a single batch so
// references between them resolve without fallback. Files that fail to
// decode are skipped, reported through the corruption broadcast, and
// summarised in the returned error.
func (d *Database) LoadDatabase(ctx context.Context, dir string) error {
	start := time.Now()
	files, err := listModuleFiles(dir)
	if err != nil {
		return fmt.Errorf("typedb: load %s: %w", dir, err)
	}

	var decoded []decodedModule
	if d.useParallel {
		decoded, err = d.decodeParallel(ctx, files)
	} else {
		decoded, err = d.decodeSerial(ctx, files)
	}
	if err != nil {
		return fmt.Errorf("typedb: load %s: %w", dir, err)
	}

	var errs []error
	good := decoded[:0]
	for _, dm := range decoded {
		if dm.err != nil {
			errs = append(errs, fmt.Errorf("decode %s: %w", dm.path, dm.err))
			continue
		}
		good = append(good, dm)
	}
	if len(errs) > 0 {
		d.log.Warn("database.decode_failed", "dir", dir, "errors", len(errs))
		d.state.OnDatabaseCorrupt()
	}

	if err := d.loadDecoded(ctx, good); err != nil {
		return err
	}
	d.log.Info("database.loaded", "dir", dir, "modules", len(good), "elapsed", time.Since(start))

	if len(errs) > 0 {
		return fmt.Errorf("typedb: loading had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

func (d *Database) decodeSerial(ctx context.Context, files []moduleFile) ([]decodedModule, error) {
	out := make([]decodedModule, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, decodeModuleFile(f))
	}
	return out, nil
}

// loadDecoded loads the builtin module (if present) in its own batch and
// everything else in one batch. A file named for the target dialect wins
// over one named for the other dialect, which is then not loaded.
func (d *Database) loadDecoded(ctx context.Context, modules []decodedModule) error {
	builtinName := d.state.BuiltinModuleName()
	pick := -1
	for i, dm := range modules {
		if dm.name == builtinName {
			pick = i
			break
		}
		if isBuiltinName(dm.name) && pick < 0 {
			pick = i
		}
	}

	if pick >= 0 {
		desc := core.ModuleDesc{Name: builtinName, Builtin: true, Desc: modules[pick].desc}
		if err := d.load(ctx, desc); err != nil {
			return err
		}
	}
	rest := make([]core.ModuleDesc, 0, len(modules))
	for i, dm := range modules {
		if i == pick {
			continue
		}
		if isBuiltinName(dm.name) {
			// The other dialect's builtin file would shadow the builtin
			// alias under its own name.
			d.log.Debug("database.skip_builtin", "module", dm.name, "builtin", builtinName)
			continue
		}
		rest = append(rest, core.ModuleDesc{Name: dm.name, Desc: dm.desc})
	}
	if err := d.load(ctx, rest...); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i, dm := range modules {
		name := dm.name
		switch {
		case i == pick:
			name = builtinName
		case isBuiltinName(name):
			continue
		}
		d.sources[name] = dm.hash
	}
	return nil
}

func isBuiltinName(name string) bool {
	return name == "builtins" || name == "__builtin__"
}

// load runs descs as one batch, bounded by the configured timeout and the
// context deadline.
func (d *Database) load(ctx context.Context, descs ...core.ModuleDesc) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("typedb: load: %w", err)
	}
	if len(descs) == 0 {
		return nil
	}
	if _, ok := d.state.Load(d.loadTimeout(ctx), descs...); !ok {
		return ErrLoadTimeout
	}
	return nil
}

func (d *Database) loadTimeout(ctx context.Context) time.Duration {
	timeout := d.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left < 0 {
			left = 0
		}
		if timeout < 0 || left < timeout {
			timeout = left
		}
	}
	return timeout
}

// LoadModule loads or replaces a single module from the description file
// at path. A decode failure is broadcast as database corruption.
func (d *Database) LoadModule(ctx context.Context, name, path string) error {
	dm := decodeModuleFile(moduleFile{name: name, path: path})
	if dm.err != nil {
		d.log.Warn("database.decode_failed", "module", name, "path", path, "err", dm.err)
		d.state.OnDatabaseCorrupt()
		return fmt.Errorf("typedb: load module %s: %w", name, dm.err)
	}
	desc := core.ModuleDesc{Name: name, Desc: dm.desc}
	if isBuiltinName(name) {
		desc.Name = d.state.BuiltinModuleName()
		desc.Builtin = true
	}
	if err := d.load(ctx, desc); err != nil {
		return fmt.Errorf("typedb: load module %s: %w", name, err)
	}
	d.mu.Lock()
	d.sources[desc.Name] = dm.hash
	d.mu.Unlock()
	return nil
}

// Record is a decoded module description: the top-level mapping with an
// optional "doc" and a "members" mapping of member records.
type Record = map[string]any

// LoadRecords loads in-memory module descriptions as one batch, with the
// builtin module (if any) in a batch of its own first.
func (d *Database) LoadRecords(ctx context.Context, modules map[string]Record) error {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)

	decoded := make([]decodedModule, 0, len(names))
	for _, name := range names {
		var buf bytes.Buffer
		if err := record.Encode(&buf, modules[name]); err != nil {
			return fmt.Errorf("typedb: load records: %s: %w", name, err)
		}
		decoded = append(decoded, decodedModule{
			moduleFile: moduleFile{name: name, path: "memory:" + name},
			hash:       store.HashSource(buf.Bytes()),
			desc:       modules[name],
		})
	}
	if err := d.loadDecoded(ctx, decoded); err != nil {
		return fmt.Errorf("typedb: load records: %w", err)
	}
	return nil
}

// UnloadModule removes a loaded module. It reports whether one existed.
func (d *Database) UnloadModule(name string) bool {
	if isBuiltinName(name) {
		name = d.state.BuiltinModuleName()
	}
	d.mu.Lock()
	delete(d.sources, name)
	d.mu.Unlock()
	return d.state.RemoveModule(name)
}

// GetModule returns a loaded module, or nil.
func (d *Database) GetModule(name string) *Module {
	return d.state.GetModule(name)
}

// ModuleNames returns the sorted names of every loaded module, including
// those of an overlaid database.
func (d *Database) ModuleNames() []string {
	return d.state.ModuleNames()
}

// BuiltinModule returns the builtin module, or nil before it is loaded.
func (d *Database) BuiltinModule() *Module {
	return d.state.BuiltinModule()
}

// LanguageVersion returns the configured target version, or "" when none.
func (d *Database) LanguageVersion() string {
	if v, ok := d.state.LanguageVersion(); ok {
		return v.String()
	}
	return ""
}

// Quiesce drains pending fixups once, waiting for any load in progress.
func (d *Database) Quiesce(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.state.Quiesce(d.loadTimeout(ctx)) {
		return ErrLoadTimeout
	}
	return nil
}

// drain replays pending fixups without moving unresolved references
// closer to object.
func (d *Database) drain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.state.Drain(d.loadTimeout(ctx)) {
		return ErrLoadTimeout
	}
	return nil
}

// PendingFixups reports how many references are still waiting to resolve.
func (d *Database) PendingFixups() int {
	return d.state.PendingFixups()
}

// OnCorrupt registers fn to run whenever a module description fails to
// decode. The returned function unregisters it.
func (d *Database) OnCorrupt(fn func()) (cancel func()) {
	return d.state.ListenForCorruption(func() bool {
		fn()
		return true
	})
}

// WatchCorruption registers fn against owner without keeping owner alive.
// Once owner has been garbage collected the listener is dropped on the next
// broadcast.
func WatchCorruption[T any](d *Database, owner *T, fn func(*T)) (cancel func()) {
	wp := weak.Make(owner)
	return d.state.ListenForCorruption(func() bool {
		o := wp.Value()
		if o == nil {
			return false
		}
		fn(o)
		return true
	})
}

// Query returns a QueryBuilder over the loaded database.
func (d *Database) Query() *QueryBuilder {
	return &QueryBuilder{db: d}
}

func (d *Database) sourceHash(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sources[name]
}
