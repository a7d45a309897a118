// Package dse implements dead-store elimination (spec §4.8): a
// per-region forward pass that tracks the most recent store to each
// traced address and deletes a store once a later, must-aliasing
// store proves it can never be observed, guarded throughout by TBAA so
// an aliasing load or an escaping call lifts a candidate back to live.
//
// The forward "track last write per address, evict/lift on conflict"
// shape is the same structure CSE's value-number table already
// establishes in this codebase (one pass, one per-address cache,
// mutate then drop), specialized here to stores instead of arbitrary
// expressions and driven by TBAA's alias lattice instead of value
// identity.
package dse

import (
	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
)

// Transform implements pass.Transform for dead-store elimination
// (spec §4.8).
type Transform struct{}

// New constructs the DSE transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string          { return "dse" }
func (t *Transform) Requires() []string    { return []string{"tbaa"} }
func (t *Transform) Invalidates() []string { return nil }

// Run implements pass.Transform. DSE never invalidates TBAA: deleting
// a dead store removes a memory access, it does not move or create an
// allocation site.
func (t *Transform) Run(m *ir.Module, mgr *pass.Manager) ([]*ir.Region, error) {
	res, err := mgr.Get("tbaa")
	if err != nil {
		return nil, err
	}
	ta := res.(*tbaa.Analysis)

	modifiedSet := make(map[*ir.Region]bool)
	var modified []*ir.Region
	markModified := func(r *ir.Region) {
		if r != nil && !modifiedSet[r] {
			modifiedSet[r] = true
			modified = append(modified, r)
		}
	}

	ir.Walk(m.Root, func(r *ir.Region) {
		runRegion(r, ta, markModified)
	})

	return modified, nil
}

func isStore(n *ir.Node) bool {
	return n.Op == ir.OpStore || n.Op == ir.OpPtrStore
}

// runRegion implements spec §4.8's per-region forward pass. Stores are
// tracked by their own traced MemoryLocation (comparable, so it can key
// the map directly) rather than by the raw address node, since TBAA's
// Alias query compares memory-access nodes, not address expressions.
func runRegion(r *ir.Region, ta *tbaa.Analysis, markModified func(*ir.Region)) {
	lastStoreTo := make(map[tbaa.MemoryLocation]*ir.Node)
	potentiallyDead := make(map[*ir.Node]bool)
	definitelyLive := make(map[*ir.Node]bool)

	for _, n := range r.Nodes {
		switch {
		case isStore(n) && n.Traits.Has(ir.TraitVolatile):
			definitelyLive[n] = true

		case isStore(n):
			for loc, oldStore := range lastStoreTo {
				if ta.Alias(n, oldStore) == tbaa.MustAlias {
					potentiallyDead[oldStore] = true
					delete(lastStoreTo, loc)
				}
			}
			if newLoc, ok := ta.Location(n); ok {
				if prev, exists := lastStoreTo[newLoc]; exists {
					potentiallyDead[prev] = true
				}
				lastStoreTo[newLoc] = n
			}

		case n.Op == ir.OpLoad || n.Op == ir.OpPtrLoad:
			for _, store := range lastStoreTo {
				if ta.Alias(n, store) != tbaa.NoAlias {
					definitelyLive[store] = true
				}
			}

		case n.Op == ir.OpCall || n.Op == ir.OpInvoke:
			for _, store := range lastStoreTo {
				loc, ok := ta.Location(store)
				if !ok {
					continue
				}
				if loc.Site == nil || ta.Escaped(loc.Site) {
					definitelyLive[store] = true
				}
			}
		}
	}

	var toRemove []*ir.Node
	for store := range potentiallyDead {
		if definitelyLive[store] {
			continue
		}
		loc, ok := ta.Location(store)
		if ok && loc.Site != nil && ta.Escaped(loc.Site) {
			continue
		}
		toRemove = append(toRemove, store)
	}

	for _, store := range toRemove {
		if store.Parent == nil {
			continue
		}
		store.Parent.RemoveNode(store)
		markModified(r)
	}
}
