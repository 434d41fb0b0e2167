// Package scripts bundles the Risor inspection scripts shipped with typedb.
package scripts

import "embed"

// FS holds the bundled scripts. Paths match runtime.BuiltinScriptPath.
//
//go:embed inspect/*.risor
var FS embed.FS
