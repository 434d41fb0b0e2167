package typedb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDB = "testdata/db"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDatabase loads testdata/db for Python 3.2.
func newTestDatabase(t *testing.T, opts ...Option) *Database {
	t.Helper()
	base := []Option{WithLogger(quietLogger()), WithLanguageVersion("3.2")}
	d, err := New(testDB, append(base, opts...)...)
	require.NoError(t, err)
	return d
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "typedb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestSnapshot exports testdata/db and wraps the result.
func newTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	d := newTestDatabase(t)
	s := newTestStore(t)
	require.NoError(t, d.Export(context.Background(), s))
	return NewSnapshot(s)
}

// copyDB copies testdata/db into a temp dir so a test can add files to it.
func copyDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	entries, err := os.ReadDir(testDB)
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(testDB, e.Name()))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644))
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func ref(module, name string) []any {
	return TypeRef(module, name)
}

func typeRecord(members Record, bases ...[]any) Record {
	v := Record{}
	if members != nil {
		v["members"] = members
	}
	if len(bases) > 0 {
		l := make([]any, len(bases))
		for i, b := range bases {
			l[i] = b
		}
		v["bases"] = l
	}
	return Record{"kind": "type", "value": v}
}

func funcRecord(ret []any, args ...string) Record {
	l := make([]any, len(args))
	for i, a := range args {
		l[i] = Record{"name": a}
	}
	o := Record{"args": l}
	if ret != nil {
		o["ret_type"] = []any{ret}
	}
	return Record{"kind": "function", "value": Record{"overloads": []any{o}}}
}

func minimalBuiltins() Record {
	return Record{"members": Record{
		"object": typeRecord(nil),
		"int":    typeRecord(nil, ref("", "object")),
		"str":    typeRecord(nil, ref("", "object")),
	}}
}
