package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/typedb"
)

var (
	flagLimit  int
	flagOffset int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query an exported snapshot",
	Long:  "Run completion queries against a snapshot written by 'typedb load'. Member paths are dotted and relative to a module. Line numbers are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")

	queryCmd.AddCommand(modulesCmd)
	queryCmd.AddCommand(membersCmd)
	queryCmd.AddCommand(memberCmd)
	queryCmd.AddCommand(signatureCmd)
	queryCmd.AddCommand(searchCmd)
	queryCmd.AddCommand(dependentsCmd)
	queryCmd.AddCommand(hierarchyCmd)
	queryCmd.AddCommand(graphCmd)
	queryCmd.AddCommand(cyclesCmd)
}

// --- Helpers ---

// openSnapshot opens the snapshot from the --db flag path (or default).
func openSnapshot() (*typedb.Snapshot, func(), error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("snapshot not found: %s (run 'typedb load' first)", dbPath)
	}
	s, err := typedb.OpenStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return typedb.NewSnapshot(s), func() { s.Close() }, nil
}

// memberPath returns the optional dotted path argument at index i.
func memberPath(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// outputResult writes a CLIResult in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() typedb.Pagination {
	return typedb.Pagination{Limit: flagLimit, Offset: flagOffset}
}

// --- Conversions ---

func toCLIModule(m *typedb.StoredModule) CLIModule {
	return CLIModule{
		ID:          m.ID,
		Name:        m.Name,
		Doc:         m.Doc,
		Builtin:     m.IsBuiltin,
		MemberCount: m.MemberCount,
		SourceHash:  m.SourceHash,
	}
}

func toCLIMember(m *typedb.StoredMember, module, path string) CLIMember {
	return CLIMember{
		ID:       m.ID,
		Name:     m.Name,
		Kind:     m.Kind,
		Module:   module,
		Path:     path,
		Doc:      m.Doc,
		TypeName: m.TypeName,
		Target:   m.Target,
		Line:     m.Line,
		Col:      m.Col,
	}
}

func toCLIMembers(members []*typedb.StoredMember, module string) []CLIMember {
	out := make([]CLIMember, len(members))
	for i, m := range members {
		out[i] = toCLIMember(m, module, "")
	}
	return out
}

func toCLIResults(results []typedb.MemberResult) []CLIMember {
	out := make([]CLIMember, len(results))
	for i := range results {
		out[i] = toCLIMember(&results[i].Member, results[i].Module, results[i].Path)
	}
	return out
}

func toCLISignatures(sigs []typedb.Signature) []CLISignature {
	out := make([]CLISignature, len(sigs))
	for i, s := range sigs {
		params := make([]CLIParam, len(s.Parameters))
		for j, p := range s.Parameters {
			params[j] = CLIParam{Name: p.Name, Format: p.Format, Default: p.Default, Types: p.Types, Doc: p.Doc}
		}
		out[i] = CLISignature{Name: s.Name, Text: s.String(), Doc: s.Doc, Parameters: params, Returns: s.Returns}
	}
	return out
}

// --- Commands ---

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules in the snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("modules", err)
		}
		defer done()

		mods, err := q.Modules()
		if err != nil {
			return outputError("modules", err)
		}
		out := make([]CLIModule, len(mods))
		for i, m := range mods {
			out[i] = toCLIModule(m)
		}
		total := len(out)
		return outputResult(CLIResult{Command: "modules", Results: out, TotalCount: &total})
	},
}

var membersCmd = &cobra.Command{
	Use:   "members <module> [path]",
	Short: "List completion members of a module or of the member at path",
	Long:  "Lists the members offered after '<module>.' or '<module>.<path>.'. Types include inherited members; values are walked through their type.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("members", err)
		}
		defer done()

		members, err := q.Members(args[0], memberPath(args, 1))
		if err != nil {
			return outputError("members", err)
		}
		out := toCLIMembers(members, args[0])
		total := len(out)
		return outputResult(CLIResult{Command: "members", Results: out, TotalCount: &total})
	},
}

var memberCmd = &cobra.Command{
	Use:   "member <module> <path>",
	Short: "Show the member at a dotted path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("member", err)
		}
		defer done()

		m, err := q.Member(args[0], args[1])
		if err != nil {
			return outputError("member", err)
		}
		return outputResult(CLIResult{Command: "member", Results: toCLIMember(m, args[0], args[1])})
	},
}

var signatureCmd = &cobra.Command{
	Use:   "signature <module> <path>",
	Short: "Show the call signatures of a function, method or type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("signature", err)
		}
		defer done()

		sigs, err := q.Signatures(args[0], args[1])
		if err != nil {
			return outputError("signature", err)
		}
		out := toCLISignatures(sigs)
		total := len(out)
		return outputResult(CLIResult{Command: "signature", Results: out, TotalCount: &total})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search members by name",
	Long:  "Finds members whose name matches a glob pattern, where '*' matches any run of characters.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("search", err)
		}
		defer done()

		page, err := q.Search(args[0], buildPagination())
		if err != nil {
			return outputError("search", err)
		}
		return outputResult(CLIResult{Command: "search", Results: toCLIResults(page.Items), TotalCount: &page.TotalCount})
	},
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <module>",
	Short: "List modules that reference a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("dependents", err)
		}
		defer done()

		deps, err := q.Dependents(args[0])
		if err != nil {
			return outputError("dependents", err)
		}
		if deps == nil {
			deps = []string{}
		}
		total := len(deps)
		return outputResult(CLIResult{Command: "dependents", Results: deps, TotalCount: &total})
	},
}

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy <module> <path>",
	Short: "Show the bases and known subtypes of a type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("hierarchy", err)
		}
		defer done()

		h, err := q.TypeHierarchy(args[0], args[1])
		if err != nil {
			return outputError("hierarchy", err)
		}
		if h == nil {
			return outputResult(CLIResult{Command: "hierarchy", Results: nil})
		}
		return outputResult(CLIResult{Command: "hierarchy", Results: CLIHierarchy{
			Type:     toCLIMember(&h.Type.Member, h.Type.Module, h.Type.Path),
			Bases:    h.Bases,
			Mro:      h.Mro,
			Subtypes: toCLIResults(h.Subtypes),
		}})
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the module reference graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("graph", err)
		}
		defer done()

		g, err := q.ModuleGraph()
		if err != nil {
			return outputError("graph", err)
		}
		edges := make([]CLIEdge, len(g.Edges))
		for i, e := range g.Edges {
			edges[i] = CLIEdge{From: e.From, To: e.To}
		}
		return outputResult(CLIResult{Command: "graph", Results: CLIGraph{Modules: g.Modules, Edges: edges}})
	},
}

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "List circular references between modules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q, done, err := openSnapshot()
		if err != nil {
			return outputError("cycles", err)
		}
		defer done()

		cycles, err := q.CircularDependencies()
		if err != nil {
			return outputError("cycles", err)
		}
		total := len(cycles)
		return outputResult(CLIResult{Command: "cycles", Results: cycles, TotalCount: &total})
	},
}
