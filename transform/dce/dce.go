// Package dce implements a supplemental dead-code-elimination pass:
// iterative removal of side-effect-free nodes with no users.
//
// The reference implementation this repo is transcribed from folds
// dead-code elimination into dead-store elimination and mem2reg's own
// phi cleanup rather than shipping it as a standalone pass; this
// package fills that gap with a small pass of its own, grounded on
// `ssa/lift.go`'s "Eliminate dead new phis" loop — repeatedly sweep,
// drop anything with no referrers, and keep sweeping until a pass
// finds nothing left to drop, since removing one dead node can turn
// one of its own operands dead in turn.
package dce

import (
	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
)

// Transform implements pass.Transform for dead-code elimination.
type Transform struct{}

// New constructs the DCE transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string          { return "dce" }
func (t *Transform) Requires() []string    { return nil }
func (t *Transform) Invalidates() []string { return nil }

// Run implements pass.Transform. DCE only ever removes side-effect-
// free, unreferenced nodes, so no analysis (tbaa's allocation sites,
// callgraph's call sites) is ever invalidated: ALLOC/CALL/STORE and
// every terminator are side-effecting by definition and never removed
// here.
func (t *Transform) Run(m *ir.Module, mgr *pass.Manager) ([]*ir.Region, error) {
	modifiedSet := make(map[*ir.Region]bool)
	var modified []*ir.Region
	markModified := func(r *ir.Region) {
		if r != nil && !modifiedSet[r] {
			modifiedSet[r] = true
			modified = append(modified, r)
		}
	}

	for {
		changed := false
		ir.Walk(m.Root, func(r *ir.Region) {
			for _, n := range append([]*ir.Node(nil), r.Nodes...) {
				if !removable(n) {
					continue
				}
				r.RemoveNode(n)
				markModified(r)
				changed = true
			}
		})
		if !changed {
			break
		}
	}

	return modified, nil
}

func removable(n *ir.Node) bool {
	if n.Op.HasSideEffects() {
		return false
	}
	return len(n.Users()) == 0
}
