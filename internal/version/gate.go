// Package version decides whether a member applies to the target language
// version.
//
// Applicability expressions are one or more clauses joined by ';':
//
//	>=3.0
//	<=2.7
//	==3.4
//	>=3.0;<=3.5
//
// A member is included only when every clause passes.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a major.minor language version.
type Version struct {
	Major int
	Minor int
}

// String formats v as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v Version) canonical() string {
	return fmt.Sprintf("v%d.%d.0", v.Major, v.Minor)
}

// Parse parses "major.minor" (any further components are ignored).
func Parse(s string) (Version, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return Version{}, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil || major < 0 {
		return Version{}, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil || minor < 0 {
		return Version{}, false
	}
	return Version{Major: major, Minor: minor}, true
}

// Gate evaluates applicability expressions against a target version. The
// zero Gate has no target and admits everything.
type Gate struct {
	target *Version
}

// NewGate returns a Gate for target. An empty or unparsable target yields a
// Gate that admits every member.
func NewGate(target string) Gate {
	v, ok := Parse(target)
	if !ok {
		return Gate{}
	}
	return Gate{target: &v}
}

// ForVersion returns a Gate for an already parsed target.
func ForVersion(v Version) Gate {
	return Gate{target: &v}
}

// Target returns the target version, if any.
func (g Gate) Target() (Version, bool) {
	if g.target == nil {
		return Version{}, false
	}
	return *g.target, true
}

// Applies reports whether a member tagged with expr is included. A nil expr
// always applies; a non-string expr never does.
func (g Gate) Applies(expr any) bool {
	if g.target == nil || expr == nil {
		return true
	}
	s, ok := expr.(string)
	if !ok {
		return false
	}
	for _, clause := range strings.Split(s, ";") {
		if !g.clauseApplies(clause) {
			return false
		}
	}
	return true
}

func (g Gate) clauseApplies(clause string) bool {
	clause = strings.TrimSpace(clause)
	if len(clause) < 3 {
		return false
	}
	op, rest := clause[:2], clause[2:]
	v, ok := Parse(rest)
	if !ok {
		return false
	}
	cmp := semver.Compare(g.target.canonical(), v.canonical())
	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case "==":
		return cmp == 0
	}
	return false
}
