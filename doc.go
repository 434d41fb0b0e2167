// Package typedb loads a completion type database: a directory of
// per-module description files (JSON or YAML) produced by an interpreter
// scraper, resolved into an in-memory graph of modules, types, functions,
// properties and constants that editor completion can query.
//
// # Loading
//
// Module files reference each other by (module, name) type references.
// References that cannot be resolved yet are queued as fixups and retried
// after each load batch; after a bounded number of batches they fall back
// to the builtin object type, so every reference eventually resolves.
//
//	db, err := typedb.New("path/to/db", typedb.WithLanguageVersion("3.2"))
//	if err != nil { ... }
//
//	q := db.Query()
//	items, err := q.Completions("os", "path")
//	sigs, err := q.Signatures("os.path", "join")
//
// The builtin module is loaded first, in its own batch, under the name of
// the target dialect ("builtins" for 3.x, "__builtin__" for 2.x). A
// [Database.Overlay] layers project-local modules over a shared database.
//
// # Snapshots
//
// [Database.Export] writes the resolved graph into a SQLite snapshot.
// A [Snapshot] answers member, signature, search, hierarchy and module
// graph queries from it without decoding the description files again.
//
//	s, err := typedb.OpenStore("typedb.db")
//	err = db.Export(ctx, s)
//	res, err := typedb.NewSnapshot(s).Search("join*", typedb.Pagination{})
//
// # Corruption
//
// Files that fail to decode are skipped and broadcast to subscribers
// registered with [Database.OnCorrupt], which can rebuild the database.
package typedb
