package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/typedb"
)

var (
	flagScriptDir  string
	flagBuiltin    bool
	flagSnapshot   bool
	flagScriptArgs map[string]string
)

var scriptCmd = &cobra.Command{
	Use:   "script <file>",
	Short: "Run a Risor inspection script",
	Long: `Runs a Risor script with the loaded database exposed as globals and prints
the value of its last expression. With --builtin, <file> names a bundled
script such as "summary" or "outline".`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().StringVar(&flagScriptDir, "dir", "", "module database to load before running")
	scriptCmd.Flags().BoolVar(&flagBuiltin, "builtin", false, "run a bundled inspection script")
	scriptCmd.Flags().BoolVar(&flagSnapshot, "snapshot", false, "expose the exported snapshot to the script")
	scriptCmd.Flags().StringToStringVar(&flagScriptArgs, "arg", nil, "extra string globals as key=value")
}

func runScript(cmd *cobra.Command, args []string) error {
	path, err := scriptPath(args[0], flagBuiltin)
	if err != nil {
		return outputError("script", err)
	}

	dir := ""
	if flagScriptDir != "" {
		if dir, err = resolveDir(flagScriptDir); err != nil {
			return outputError("script", err)
		}
	}
	db, err := typedb.New(dir, databaseOptions()...)
	if err != nil {
		return outputError("script", err)
	}

	var snap *typedb.Store
	if flagSnapshot {
		cwd, err := os.Getwd()
		if err != nil {
			return outputError("script", fmt.Errorf("getting cwd: %w", err))
		}
		dbPath := resolveDBPath(findRepoRoot(cwd))
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return outputError("script", fmt.Errorf("snapshot not found: %s (run 'typedb load' first)", dbPath))
		}
		if snap, err = typedb.OpenStore(dbPath); err != nil {
			return outputError("script", err)
		}
		defer snap.Close()
	}

	extra := make(map[string]any, len(flagScriptArgs))
	for k, v := range flagScriptArgs {
		extra[k] = v
	}
	value, err := db.RunScript(context.Background(), path, snap, extra)
	if err != nil {
		return outputError("script", err)
	}
	return outputResult(CLIResult{Command: "script", Results: value})
}

// scriptPath maps the script argument to a path RunScript understands:
// bundled names stay relative, files on disk become absolute.
func scriptPath(arg string, builtin bool) (string, error) {
	if builtin {
		return typedb.ScriptPath(arg), nil
	}
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("resolving script path %q: %w", arg, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("script not found: %s", abs)
	}
	return abs, nil
}
