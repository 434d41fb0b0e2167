package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatModulesText formats CLIModule results as aligned columns.
func formatModulesText(w io.Writer, mods []CLIModule) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tMEMBERS\tBUILTIN\tDOC")
	for _, m := range mods {
		fmt.Fprintf(tw, "%s\t%d\t%t\t%s\n", m.Name, m.MemberCount, m.Builtin, firstLine(m.Doc))
	}
	tw.Flush()
}

// formatMembersText formats CLIMember results as aligned columns.
func formatMembersText(w io.Writer, members []CLIMember) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tTYPE\tLINE")
	for _, m := range members {
		name := m.Name
		if m.Module != "" && m.Path != "" {
			name = m.Module + "." + m.Path
		}
		typ := m.TypeName
		if typ == "" {
			typ = m.Target
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", name, m.Kind, typ, m.Line)
	}
	tw.Flush()
}

// formatSignaturesText prints one signature per line, followed by its doc.
func formatSignaturesText(w io.Writer, sigs []CLISignature) {
	for _, s := range sigs {
		fmt.Fprintln(w, s.Text)
		if s.Doc != "" {
			fmt.Fprintf(w, "    %s\n", firstLine(s.Doc))
		}
	}
}

// formatHierarchyText formats a CLIHierarchy as readable text.
func formatHierarchyText(w io.Writer, h CLIHierarchy) {
	fmt.Fprintf(w, "Type: %s.%s\n", h.Type.Module, h.Type.Path)
	if len(h.Bases) > 0 {
		fmt.Fprintf(w, "Bases: %s\n", strings.Join(h.Bases, ", "))
	}
	if len(h.Mro) > 0 {
		fmt.Fprintf(w, "MRO: %s\n", strings.Join(h.Mro, " -> "))
	}
	if len(h.Subtypes) > 0 {
		fmt.Fprintln(w, "Subtypes:")
		for _, s := range h.Subtypes {
			fmt.Fprintf(w, "  %s.%s\n", s.Module, s.Path)
		}
	}
}

// formatGraphText prints each module followed by the modules it references.
func formatGraphText(w io.Writer, g CLIGraph) {
	out := map[string][]string{}
	for _, e := range g.Edges {
		out[e.From] = append(out[e.From], e.To)
	}
	mods := append([]string(nil), g.Modules...)
	sort.Strings(mods)
	for _, m := range mods {
		if deps := out[m]; len(deps) > 0 {
			fmt.Fprintf(w, "%s -> %s\n", m, strings.Join(deps, ", "))
		} else {
			fmt.Fprintln(w, m)
		}
	}
}

// formatCyclesText prints one cycle per line.
func formatCyclesText(w io.Writer, cycles [][]string) {
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No circular references.")
		return
	}
	for _, c := range cycles {
		fmt.Fprintln(w, strings.Join(c, " -> "))
	}
}

// formatScrapeText summarizes a scrape run.
func formatScrapeText(w io.Writer, s CLIScrapeSummary) {
	fmt.Fprintf(w, "Scraped %d modules from %s into %s\n", len(s.Modules), s.Source, s.Output)
	for _, m := range s.Modules {
		fmt.Fprintf(w, "  %s\n", m)
	}
}

// formatValueText prints script results: scalars and string lists line by
// line, anything else as Go syntax.
func formatValueText(w io.Writer, v any) {
	switch r := v.(type) {
	case []string:
		for _, s := range r {
			fmt.Fprintln(w, s)
		}
	case []any:
		for _, item := range r {
			fmt.Fprintln(w, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s: %v\n", k, r[k])
		}
	default:
		fmt.Fprintln(w, r)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// outputResultText formats a CLIResult as human-readable text to stdout.
func outputResultText(result CLIResult) error {
	return writeResultText(os.Stdout, result)
}

func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIModule:
		formatModulesText(w, v)
	case []CLIMember:
		formatMembersText(w, v)
	case CLIMember:
		formatMembersText(w, []CLIMember{v})
	case []CLISignature:
		formatSignaturesText(w, v)
	case CLIHierarchy:
		formatHierarchyText(w, v)
	case CLIGraph:
		formatGraphText(w, v)
	case [][]string:
		formatCyclesText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case CLIScrapeSummary:
		formatScrapeText(w, v)
	case nil:
		// No output for nil results (e.g., hierarchy of a non-type).
	default:
		if result.Command != "script" {
			return fmt.Errorf("unsupported result type for text format: %T", v)
		}
		formatValueText(w, v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIModule:
		return len(r)
	case []CLIMember:
		return len(r)
	case []CLISignature:
		return len(r)
	case []string:
		return len(r)
	case [][]string:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
