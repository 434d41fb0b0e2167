package runtime

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// pythonExts are the extensions parsed with the Python grammar. Stubs
// (.pyi) describe modules the same way sources do.
var pythonExts = map[string]bool{
	".py":  true,
	".pyi": true,
	".pyw": true,
}

var pythonGrammar = sync.OnceValue(python.GetLanguage)

// LanguageForFile returns the language name for a file path based on its
// extension. Returns ("", false) for anything that is not Python.
func LanguageForFile(path string) (string, bool) {
	if pythonExts[strings.ToLower(filepath.Ext(path))] {
		return "python", true
	}
	return "", false
}

// ParserForLanguage returns the tree-sitter grammar for a language name.
// Only "python" is supported.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	if lang != "python" {
		return nil, false
	}
	return pythonGrammar(), true
}
