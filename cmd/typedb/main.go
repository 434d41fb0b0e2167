package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/typedb"
)

var (
	flagDB      string
	flagFormat  string
	flagPython  string
	flagTimeout time.Duration
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "typedb",
	Short:         "Completion type database for Python",
	Long:          "typedb loads interpreter-generated module descriptions, resolves cross-module type references, and answers completion queries from a SQLite snapshot.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "snapshot path (default: .typedb/typedb.db relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagPython, "python", "", "target language version, e.g. 2.7 or 3.12 (default: newest)")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", typedb.DefaultLoadTimeout, "how long a load waits on another batch")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log resolution details to stderr")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(scrapeCmd)
}

var (
	flagForce   bool
	flagOverlay string
)

var loadCmd = &cobra.Command{
	Use:   "load <dir>",
	Short: "Load a module database and export a snapshot",
	Long:  "Loads every module description in <dir>, resolves references between modules, and writes the resolved graph to the SQLite snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	loadCmd.Flags().BoolVar(&flagForce, "force", false, "delete the snapshot and export from scratch")
	loadCmd.Flags().StringVar(&flagOverlay, "overlay", "", "project database layered over <dir>")
}

func runLoad(cmd *cobra.Command, args []string) error {
	start := time.Now()

	dir, err := resolveDir(args[0])
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing snapshot for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared snapshot: %s\n", dbPath)
	}

	db, err := typedb.New(dir, databaseOptions()...)
	if err != nil {
		return fmt.Errorf("loading %s: %w", dir, err)
	}
	layers := []*typedb.Database{db}
	if flagOverlay != "" {
		overlayDir, err := resolveDir(flagOverlay)
		if err != nil {
			return err
		}
		o, err := db.Overlay(overlayDir)
		if err != nil {
			return fmt.Errorf("loading overlay %s: %w", overlayDir, err)
		}
		layers = append(layers, o)
	}
	loadDuration := time.Since(start)

	s, err := typedb.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	exportStart := time.Now()
	ctx := context.Background()
	for _, layer := range layers {
		if err := layer.Export(ctx, s); err != nil {
			return err
		}
	}
	mods, err := s.Modules()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Loaded %d modules from %s in %s (load: %s, export: %s)\n",
		len(mods), dir,
		time.Since(start).Round(time.Millisecond),
		loadDuration.Round(time.Millisecond),
		time.Since(exportStart).Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "Snapshot: %s\n", dbPath)
	return nil
}

// newLogger returns the stderr logger behind --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// databaseOptions builds database options from the persistent flags.
func databaseOptions() []typedb.Option {
	opts := []typedb.Option{
		typedb.WithLogger(newLogger()),
		typedb.WithLoadTimeout(flagTimeout),
	}
	if flagPython != "" {
		opts = append(opts, typedb.WithLanguageVersion(flagPython))
	}
	return opts
}

// resolveDir returns the absolute path of an existing directory argument.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns startDir when none is found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the snapshot path from the --db flag or the default.
func resolveDBPath(repoRoot string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(repoRoot, flagDB)
	}
	return filepath.Join(repoRoot, ".typedb", "typedb.db")
}
