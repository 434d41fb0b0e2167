package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/typedb/internal/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <src-dir> <out-dir>",
	Short: "Generate module descriptions from Python sources",
	Long: `Parses the Python sources and stubs under <src-dir> and writes one YAML
module description per module to <out-dir>, ready for 'typedb load'.
Types come from annotations and literal assignments only.`,
	Args: cobra.ExactArgs(2),
	RunE: runScrape,
}

func runScrape(cmd *cobra.Command, args []string) error {
	start := time.Now()

	src, err := resolveDir(args[0])
	if err != nil {
		return outputError("scrape", err)
	}
	out, err := filepath.Abs(args[1])
	if err != nil {
		return outputError("scrape", fmt.Errorf("resolving path %q: %w", args[1], err))
	}

	s := scrape.New(scrape.WithLogger(newLogger()))
	modules, err := s.Dir(context.Background(), src)
	if err != nil {
		return outputError("scrape", err)
	}
	if err := scrape.WriteDir(out, modules); err != nil {
		return outputError("scrape", err)
	}

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(os.Stderr, "Scraped %s in %s\n", src, time.Since(start).Round(time.Millisecond))

	return outputResult(CLIResult{
		Command: "scrape",
		Results: CLIScrapeSummary{Source: src, Output: out, Modules: names},
	})
}
