package typedb

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	core "github.com/jward/typedb/internal/typedb"
	"github.com/jward/typedb/internal/store"
)

// workerCount returns the pool size for n items.
func (d *Database) workerCount(n int) int {
	workers := d.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(1, min(workers, n))
}

// decodeParallel reads and decodes files with a bounded worker pool. Decode
// failures are reported per file; only cancellation fails the whole call.
func (d *Database) decodeParallel(ctx context.Context, files []moduleFile) ([]decodedModule, error) {
	out := make([]decodedModule, len(files))
	if len(files) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workerCount(len(files)))
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = decodeModuleFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// exportItem holds everything an export worker needs for one module.
type exportItem struct {
	module   *core.Module
	moduleID int64
	batch    *store.BatchedStore
}

// Export writes the modules of this database (not of an overlaid one) into
// a snapshot using a three-phase pipeline:
//
//	Phase A (serial):   replace existing module rows, insert fresh ones.
//	Phase B (parallel): walk each module into its own BatchedStore.
//	Phase C (serial):   commit batches to SQLite and record member counts.
//
// Pending fixups are drained first, without escalation, so the snapshot
// reflects the resolved graph and exporting never degrades a forward
// reference.
func (d *Database) Export(ctx context.Context, s *store.Store) error {
	start := time.Now()
	if err := d.drain(ctx); err != nil {
		return fmt.Errorf("typedb: export: %w", err)
	}

	// ---- Phase A: Serial module rows ----
	modules := d.state.Modules()
	items := make([]exportItem, 0, len(modules))
	for _, m := range modules {
		item, err := d.prepareExport(s, m)
		if err != nil {
			return fmt.Errorf("typedb: export: prepare %s: %w", m.Name(), err)
		}
		items = append(items, item)
	}

	// ---- Phase B: Parallel member walk ----
	errs := make([]error, len(items))
	if d.useParallel && len(items) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.workerCount(len(items)))
		for i, item := range items {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				errs[i] = newExporter(item.batch, item.moduleID, item.module).writeModule()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("typedb: export: %w", err)
		}
	} else {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("typedb: export: %w", err)
			}
			errs[i] = newExporter(item.batch, item.moduleID, item.module).writeModule()
		}
	}

	// ---- Phase C: Serial commit ----
	var failed []error
	for i, item := range items {
		if errs[i] != nil {
			failed = append(failed, fmt.Errorf("export %s: %w", item.module.Name(), errs[i]))
			continue
		}
		top, err := item.batch.MembersByModule(item.moduleID)
		if err != nil {
			failed = append(failed, fmt.Errorf("count %s: %w", item.module.Name(), err))
			continue
		}
		if err := s.CommitBatch(item.batch); err != nil {
			failed = append(failed, fmt.Errorf("commit %s: %w", item.module.Name(), err))
			continue
		}
		if err := s.SetMemberCount(item.moduleID, len(top)); err != nil {
			failed = append(failed, fmt.Errorf("count %s: %w", item.module.Name(), err))
		}
	}

	if err := d.writeMetadata(s, len(items)); err != nil {
		failed = append(failed, err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("typedb: export had %d error(s): %w", len(failed), failed[0])
	}
	d.log.Info("database.exported", "modules", len(items), "elapsed", time.Since(start))
	return nil
}

// prepareExport does Phase A work for one module: drop any previous
// snapshot of it and insert its module row.
func (d *Database) prepareExport(s *store.Store, m *core.Module) (exportItem, error) {
	existing, err := s.ModuleByName(m.Name())
	if err != nil {
		return exportItem{}, err
	}
	if existing != nil {
		if err := s.DeleteModuleData(existing.ID); err != nil {
			return exportItem{}, fmt.Errorf("delete old data: %w", err)
		}
	}
	id, err := s.InsertModule(&store.Module{
		Name:       m.Name(),
		Doc:        m.Doc(),
		IsBuiltin:  m.IsBuiltin(),
		SourceHash: d.sourceHash(m.Name()),
	})
	if err != nil {
		return exportItem{}, err
	}
	return exportItem{module: m, moduleID: id, batch: store.NewBatchedStore(s)}, nil
}

func (d *Database) writeMetadata(s *store.Store, modules int) error {
	meta := map[string]string{
		"language_version": d.LanguageVersion(),
		"builtin_module":   d.state.BuiltinModuleName(),
		"exported_at":      time.Now().UTC().Format(time.RFC3339),
		"module_count":     fmt.Sprint(modules),
	}
	for _, k := range []string{"language_version", "builtin_module", "exported_at", "module_count"} {
		if err := s.SetMetadata(k, meta[k]); err != nil {
			return err
		}
	}
	return nil
}
