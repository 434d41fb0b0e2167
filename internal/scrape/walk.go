package scrape

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/jward/typedb/internal/record"
)

// Entry is one Python file found under a source root.
type Entry struct {
	Module string
	Path   string
}

var skipDirs = map[string]struct{}{
	"__pycache__":   {},
	"node_modules":  {},
	"venv":          {},
	"build":         {},
	"dist":          {},
	"site-packages": {},
}

// Walk finds the Python source and stub files under root, honouring a
// .gitignore at root. When a module has both a stub and a source file,
// the stub wins. Entries are sorted by module name.
func Walk(root string) ([]Entry, error) {
	gi, _ := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	found := make(map[string]Entry)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if gi != nil && gi.MatchesPath(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(name)
		if ext != ".py" && ext != ".pyi" {
			return nil
		}
		module := ModuleName(rel)
		if module == "" {
			return nil
		}
		if prev, ok := found[module]; ok && filepath.Ext(prev.Path) == ".pyi" {
			return nil
		}
		found[module] = Entry{Module: module, Path: path}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: walk %s: %w", root, err)
	}

	entries := make([]Entry, 0, len(found))
	for _, e := range found {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Module < entries[j].Module })
	return entries, nil
}

// ModuleName converts a root-relative file path to a dotted module name.
// A package's __init__ file names the package. Returns "" for paths that
// are not valid module names.
func ModuleName(rel string) string {
	rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	parts := strings.Split(rel, "/")
	if parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return ""
	}
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, ".- ") {
			return ""
		}
	}
	return strings.Join(parts, ".")
}

// Dir scrapes every module under root, parsing files concurrently.
func (s *Scraper) Dir(ctx context.Context, root string) (map[string]record.Map, error) {
	entries, err := Walk(root)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	out := make(map[string]record.Map, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			desc, err := s.File(gctx, e.Module, e.Path)
			if err != nil {
				return err
			}
			mu.Lock()
			out[e.Module] = desc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Info("scrape.done", "root", root, "modules", len(out))
	return out, nil
}

// WriteDir writes each module record to dir as <module>.yaml, creating
// dir if needed.
func WriteDir(dir string, modules map[string]record.Map) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("scrape: create %s: %w", dir, err)
	}
	for name, desc := range modules {
		path := filepath.Join(dir, name+".yaml")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("scrape: create %s: %w", path, err)
		}
		if err := record.Encode(f, desc); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("scrape: close %s: %w", path, err)
		}
	}
	return nil
}
