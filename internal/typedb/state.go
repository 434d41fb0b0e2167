package typedb

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/jward/typedb/internal/version"
)

// DefaultFixupLimit is how many times an unresolved type reference is
// retried before it falls back to object.
const DefaultFixupLimit = 2

// State owns the module table, the builtin module, pending fixups, the
// shared constant table and the corruption listeners. It is safe for
// concurrent use; loads are serialized through BeginLoad and EndLoad.
type State struct {
	log        *slog.Logger
	gate       version.Gate
	lang       version.Version
	hasLang    bool
	defaultDB  bool
	fixupLimit int
	inner      *State

	modMu   sync.RWMutex
	modules map[string]*Module
	builtin *Module
	// staged holds modules of the batch in progress. They are visible to
	// the resolver but not to GetModule until the batch ends.
	staged map[string]*Module

	objectType atomic.Pointer[Type]
	objMu      sync.Mutex
	objFixups  []func(*Type)

	fixMu  sync.Mutex
	fixups []*fixup
	// holdLevels is set while Drain replays; retries keep their level.
	holdLevels atomic.Bool

	modFixMu     sync.Mutex
	moduleFixups map[string][]func(Member)

	constMu   sync.Mutex
	constants map[*Type]*Constant

	loader    loadCoordinator
	listeners listenerRegistry
}

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.log = l
		}
	}
}

// WithLanguageVersion sets the target language version used for version
// gating and dialect-dependent builtin names.
func WithLanguageVersion(v version.Version) Option {
	return func(s *State) {
		s.lang = v
		s.hasLang = true
		s.gate = version.ForVersion(v)
	}
}

// WithFixupLimit sets how many escalation levels a reference may be
// deferred through before it falls back to object. Values below zero are
// treated as zero.
func WithFixupLimit(n int) Option {
	return func(s *State) {
		if n < 0 {
			n = 0
		}
		s.fixupLimit = n
	}
}

// WithDefaultDatabase marks the state as backed by the bundled default
// database, which enables the 3.x module aliases.
func WithDefaultDatabase(on bool) Option {
	return func(s *State) {
		s.defaultDB = on
	}
}

// NewState creates an empty State.
func NewState(opts ...Option) *State {
	s := &State{
		log:          slog.Default(),
		fixupLimit:   DefaultFixupLimit,
		modules:      make(map[string]*Module),
		staged:       make(map[string]*Module),
		moduleFixups: make(map[string][]func(Member)),
		constants:    make(map[*Type]*Constant),
	}
	s.loader.init()
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewOverlay creates a State layered over inner. Module, builtin and
// constant lookups that miss locally fall through to inner. The overlay
// inherits inner's language version unless opts override it.
func NewOverlay(inner *State, opts ...Option) *State {
	base := []Option{WithLogger(inner.log), WithFixupLimit(inner.fixupLimit)}
	if inner.hasLang {
		base = append(base, WithLanguageVersion(inner.lang))
	}
	s := NewState(append(base, opts...)...)
	s.inner = inner
	return s
}

// Inner returns the state this one overlays, if any.
func (s *State) Inner() *State { return s.inner }

// LanguageVersion returns the target version, if one was configured.
func (s *State) LanguageVersion() (version.Version, bool) { return s.lang, s.hasLang }

// VersionApplies reports whether a member tagged with expr is included for
// the target version.
func (s *State) VersionApplies(expr any) bool { return s.gate.Applies(expr) }

func (s *State) py3() bool { return is3x(s.lang, s.hasLang) }

// BuiltinModuleName is the builtin module's name for the target dialect.
func (s *State) BuiltinModuleName() string { return BuiltinModuleName(s.lang, s.hasLang) }

// BuiltinTypeName returns the name under which the builtin module declares
// the type with the given id.
func (s *State) BuiltinTypeName(id BuiltinTypeID) string {
	return builtinTypeName(id, s.py3())
}

// GetModule returns a published module by name. Both dialect names of the
// builtin module are accepted, and with the default database the 3.x
// aliases cPickle and thread map to _pickle and _thread.
func (s *State) GetModule(name string) *Module {
	return s.getModule(name, false)
}

// findModule is GetModule extended to modules of the batch in progress.
func (s *State) findModule(name string) *Module {
	return s.getModule(name, true)
}

func (s *State) getModule(name string, staged bool) *Module {
	s.modMu.RLock()
	m := s.modules[name]
	if m == nil && staged {
		m = s.staged[name]
	}
	s.modMu.RUnlock()
	if m != nil {
		return m
	}

	if s.defaultDB && s.py3() {
		switch name {
		case "cPickle":
			return s.getModule("_pickle", staged)
		case "thread":
			return s.getModule("_thread", staged)
		}
	}

	if name == "__builtin__" || name == "builtins" {
		if b := s.builtinModule(staged); b != nil {
			return b
		}
	}

	if s.inner != nil {
		return s.inner.getModule(name, staged)
	}
	return nil
}

// BuiltinModule returns the published builtin module of this state or the
// nearest inner state.
func (s *State) BuiltinModule() *Module {
	return s.builtinModule(false)
}

func (s *State) builtinModule(staged bool) *Module {
	s.modMu.RLock()
	b := s.builtin
	if b == nil && staged {
		for _, m := range s.staged {
			if m.builtin {
				b = m
				break
			}
		}
	}
	s.modMu.RUnlock()
	if b == nil && s.inner != nil {
		return s.inner.builtinModule(staged)
	}
	return b
}

// AddModule publishes m immediately, replacing any module of the same name,
// and replays module-reference fixups waiting for it. Loads normally publish
// through EndLoad instead.
func (s *State) AddModule(m *Module) {
	s.modMu.Lock()
	s.publishLocked(m)
	s.modMu.Unlock()
	s.runModuleFixups(m)
}

func (s *State) publishLocked(m *Module) {
	s.modules[m.name] = m
	if m.builtin {
		s.builtin = m
		s.objectType.Store(nil)
	}
}

// RemoveModule drops a published module. It reports whether one existed.
func (s *State) RemoveModule(name string) bool {
	s.modMu.Lock()
	defer s.modMu.Unlock()
	m, ok := s.modules[name]
	if !ok {
		return false
	}
	delete(s.modules, name)
	if s.builtin == m {
		s.builtin = nil
		s.objectType.Store(nil)
	}
	return true
}

// Modules returns the modules published in this state, without inner
// states.
func (s *State) Modules() []*Module {
	s.modMu.RLock()
	defer s.modMu.RUnlock()
	out := make([]*Module, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// ModuleNames returns the sorted names of modules in this state and every
// inner state.
func (s *State) ModuleNames() []string {
	seen := map[string]bool{}
	var out []string
	for st := s; st != nil; st = st.inner {
		st.modMu.RLock()
		for name := range st.modules {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
		st.modMu.RUnlock()
	}
	sort.Strings(out)
	return out
}

// ObjectType returns the builtin object type once the builtin module that
// declares it is available.
func (s *State) ObjectType() *Type {
	if t := s.objectType.Load(); t != nil {
		return t
	}
	b := s.builtinModule(true)
	if b == nil {
		return nil
	}
	t, ok := b.GetAnyMember(s.BuiltinTypeName(IDObject)).(*Type)
	if !ok {
		return nil
	}
	s.objectType.CompareAndSwap(nil, t)
	return s.objectType.Load()
}
