package typedb

import (
	"context"

	"github.com/jward/typedb/internal/runtime"
)

// ScriptPath returns the path of a bundled inspection script, for use
// with RunScript.
func ScriptPath(name string) string {
	return runtime.BuiltinScriptPath(name)
}

// RunScript runs a Risor inspection script against the loaded database
// and returns the value of its last expression. Absolute paths are read
// from disk; relative paths from the scripts filesystem. When snap is not
// nil the snapshot query globals are available too. extra adds globals.
func (d *Database) RunScript(ctx context.Context, path string, snap *Store, extra map[string]any) (any, error) {
	opts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(d.log)}
	if d.scriptsFS != nil {
		opts = append(opts, runtime.WithRuntimeFS(d.scriptsFS))
	}
	if snap != nil {
		opts = append(opts, runtime.WithStore(snap))
	}
	rt := runtime.NewRuntime(d.state, "", opts...)
	d.log.Debug("script.run", "path", path)
	return rt.RunScript(ctx, path, extra)
}
