package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// ComputeSignatureHash computes a deterministic hash from a member's
// semantic identity: name, kind, its type or target, and its overloads
// with their parameters. Docs and locations do NOT affect the hash.
func ComputeSignatureHash(
	name, kind, typeName string,
	overloads []*Overload,
	params map[int][]*Parameter,
) string {
	h := xxh3.New()

	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	fmt.Fprintf(h, "type:%s\n", typeName)

	// Overloads sorted by ordinal; params keyed by the overload ordinal.
	sorted := make([]*Overload, len(overloads))
	copy(sorted, overloads)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })
	for _, o := range sorted {
		fmt.Fprintf(h, "overload:%d:%s\n", o.Ordinal, strings.Join(o.ReturnTypes, "|"))
		ps := make([]*Parameter, len(params[o.Ordinal]))
		copy(ps, params[o.Ordinal])
		sort.Slice(ps, func(i, j int) bool { return ps[i].Ordinal < ps[j].Ordinal })
		for _, p := range ps {
			fmt.Fprintf(h, "param:%d:%s:%s:%s:%s\n", p.Ordinal, p.Name, p.Format, p.DefaultValue, strings.Join(p.Types, "|"))
		}
	}

	return fmt.Sprintf("%016x", h.Sum64())
}

// HashSource returns the content hash recorded for a module's source data.
func HashSource(b []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}
