package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIModule is a JSON-friendly module representation.
type CLIModule struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Doc         string `json:"doc,omitempty"`
	Builtin     bool   `json:"builtin"`
	MemberCount int    `json:"member_count"`
	SourceHash  string `json:"source_hash,omitempty"`
}

// CLIMember is a JSON-friendly member representation.
type CLIMember struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Module   string `json:"module,omitempty"`
	Path     string `json:"path,omitempty"`
	Doc      string `json:"doc,omitempty"`
	TypeName string `json:"type_name,omitempty"`
	Target   string `json:"target,omitempty"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

// CLIParam is one parameter of a CLISignature.
type CLIParam struct {
	Name    string   `json:"name"`
	Format  string   `json:"format,omitempty"`
	Default string   `json:"default,omitempty"`
	Types   []string `json:"types,omitempty"`
	Doc     string   `json:"doc,omitempty"`
}

// CLISignature is a JSON-friendly call signature.
type CLISignature struct {
	Name       string     `json:"name"`
	Text       string     `json:"text"`
	Doc        string     `json:"doc,omitempty"`
	Parameters []CLIParam `json:"parameters"`
	Returns    []string   `json:"returns,omitempty"`
}

// CLIHierarchy is a JSON-friendly type hierarchy.
type CLIHierarchy struct {
	Type     CLIMember   `json:"type"`
	Bases    []string    `json:"bases"`
	Mro      []string    `json:"mro"`
	Subtypes []CLIMember `json:"subtypes"`
}

// CLIEdge is one module-to-module reference.
type CLIEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// CLIGraph is a JSON-friendly module reference graph.
type CLIGraph struct {
	Modules []string  `json:"modules"`
	Edges   []CLIEdge `json:"edges"`
}

// CLIScrapeSummary reports what a scrape wrote.
type CLIScrapeSummary struct {
	Source  string   `json:"source"`
	Output  string   `json:"output"`
	Modules []string `json:"modules"`
}
