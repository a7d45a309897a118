// Package hoistexpr implements loop-invariant code motion (spec
// §4.9): detects loop regions by their back edge, collects
// side-effect-free nodes whose operands are all loop-external, and
// moves them to the loop's parent region ahead of its terminator,
// in decreasing order of an estimated benefit.
//
// The "detect structural region, classify candidates, move to an
// enclosing scope" shape is grounded on the same region-tree
// reasoning `transform/mem2reg` already uses to find a promotable
// alloc's reach; loop detection and the cost model themselves come
// directly from spec §4.9, since the teacher performs no loop-
// invariant motion of its own.
package hoistexpr

import (
	"math"
	"sort"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
)

// Transform implements pass.Transform for loop-invariant code motion
// (spec §4.9).
type Transform struct{}

// New constructs the HoistExpr transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string          { return "hoistexpr" }
func (t *Transform) Requires() []string    { return []string{"tbaa"} }
func (t *Transform) Invalidates() []string { return nil }

// Run implements pass.Transform. HoistExpr never invalidates TBAA:
// moving a node to an enclosing region changes where it executes, not
// what it reads from or the allocation sites TBAA already knows about.
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

	var loops []*ir.Region
	ir.Walk(m.Root, func(r *ir.Region) {
		if isLoop(r) {
			loops = append(loops, r)
		}
	})
	// Innermost first, so an inner loop's invariants land in its
	// parent region before that parent (itself possibly a loop) is
	// considered, letting a single Run converge across nest levels.
	sort.Slice(loops, func(i, j int) bool { return loops[i].Depth() > loops[j].Depth() })

	for _, loop := range loops {
		hoistLoop(loop, ta, markModified)
	}

	return modified, nil
}

// isLoop implements spec §4.9's loop-detection rule: a region is a
// loop iff its ENTRY has a user (JUMP/BRANCH/INVOKE) whose parent
// region is dominated by the region itself (a back edge).
func isLoop(r *ir.Region) bool {
	entry := r.Entry()
	if entry == nil {
		return false
	}
	for _, u := range entry.Users() {
		switch u.Op {
		case ir.OpJump, ir.OpBranch, ir.OpInvoke:
			if u.Parent != nil && r.Dominates(u.Parent) {
				return true
			}
		}
	}
	return false
}

// excludedFromHoisting implements spec §4.9's candidate exclusions:
// every control-flow or side-effectful opcode (Opcode.HasSideEffects
// already enumerates CALL/INVOKE/the STORE family/ALLOC/BRANCH/JUMP/
// RET/structural nodes), plus ATOMIC_LOAD (a side-effect-free read but
// still excluded per the spec's blanket "ATOMIC family"), FROM,
// literals and PARAM (already as loop-external as a value can be).
func excludedFromHoisting(op ir.Opcode) bool {
	if op.HasSideEffects() {
		return true
	}
	switch op {
	case ir.OpAtomicLoad, ir.OpFrom, ir.OpLiteral, ir.OpParam:
		return true
	}
	return false
}

// hoistable implements spec §4.9's candidate criteria.
func hoistable(n *ir.Node, loop *ir.Region) bool {
	if n.Traits.Has(ir.TraitVolatile) {
		return false
	}
	if excludedFromHoisting(n.Op) {
		return false
	}
	for _, in := range n.Inputs {
		if in == nil {
			continue
		}
		if in.Op == ir.OpLiteral || in.Op == ir.OpParam {
			continue
		}
		if in.Parent == nil || loop.Dominates(in.Parent) {
			return false
		}
	}
	return true
}

// loadSafe implements spec §4.9's load-hoisting safety rule: no store
// reachable within the loop's subtree may-aliases the load.
func loadSafe(n *ir.Node, loop *ir.Region, ta *tbaa.Analysis) bool {
	if n.Op != ir.OpLoad && n.Op != ir.OpPtrLoad {
		return true
	}
	safe := true
	ir.Walk(loop, func(r *ir.Region) {
		for _, other := range r.Nodes {
			if other.Op != ir.OpStore && other.Op != ir.OpPtrStore {
				continue
			}
			if ta.Alias(n, other) != tbaa.NoAlias {
				safe = false
			}
		}
	})
	return safe
}

func baseCost(op ir.Opcode) float64 {
	switch op {
	case ir.OpMul:
		return 3
	case ir.OpDiv, ir.OpMod:
		return 10
	case ir.OpCall, ir.OpInvoke:
		return 20
	default:
		return 1
	}
}

// loopNestDepth counts how many loop regions enclose r, r itself
// included, the "depth" spec §4.9's benefit formula scales by.
func loopNestDepth(r *ir.Region) int {
	depth := 0
	for cur := r; cur != nil; cur = cur.Parent {
		if isLoop(cur) {
			depth++
		}
	}
	return depth
}

func benefit(n *ir.Node, depth int) float64 {
	return baseCost(n.Op) * math.Pow(2, float64(depth))
}

// hoistLoop implements spec §4.9's two-round collection (first pass,
// then a local fixed-point pass over nodes whose operands the first
// round would newly externalize) followed by a benefit-sorted move to
// the loop's parent region.
func hoistLoop(loop *ir.Region, ta *tbaa.Analysis, markModified func(*ir.Region)) {
	parent := loop.Parent
	if parent == nil {
		return
	}
	depth := loopNestDepth(loop)

	var round1 []*ir.Node
	firstRound := make(map[*ir.Node]bool)
	ir.Walk(loop, func(r *ir.Region) {
		for _, n := range r.Nodes {
			if hoistable(n, loop) && loadSafe(n, loop, ta) {
				round1 = append(round1, n)
				firstRound[n] = true
			}
		}
	})

	var round2 []*ir.Node
	ir.Walk(loop, func(r *ir.Region) {
		for _, n := range r.Nodes {
			if firstRound[n] || !hoistableAssumingHoisted(n, loop, firstRound) {
				continue
			}
			if !loadSafe(n, loop, ta) {
				continue
			}
			round2 = append(round2, n)
		}
	})

	// round2 candidates depend on round1 ones having already moved
	// out of the loop (that is what made them hoistable at all), so
	// round1 is placed first in program order in its entirety; each
	// round is internally ordered by decreasing benefit.
	sortByBenefit := func(ns []*ir.Node) {
		sort.SliceStable(ns, func(i, j int) bool {
			return benefit(ns[i], depth) > benefit(ns[j], depth)
		})
	}
	sortByBenefit(round1)
	sortByBenefit(round2)
	candidates := append(round1, round2...)

	target := parent.Terminator()
	for _, n := range candidates {
		if n.Parent == nil {
			continue
		}
		owner := n.Parent
		for i, x := range owner.Nodes {
			if x == n {
				owner.Nodes = append(owner.Nodes[:i], owner.Nodes[i+1:]...)
				break
			}
		}
		n.Parent = nil
		if target != nil {
			parent.InsertBefore(target, n)
		} else {
			parent.AddNode(n)
		}
		markModified(owner)
		markModified(parent)
	}
}

// hoistableAssumingHoisted re-checks spec §4.9's operand-external
// criterion pretending every node in firstRound has already moved out
// of the loop, catching a value whose only loop-internal dependency is
// itself already invariant.
func hoistableAssumingHoisted(n *ir.Node, loop *ir.Region, firstRound map[*ir.Node]bool) bool {
	if n.Traits.Has(ir.TraitVolatile) {
		return false
	}
	if excludedFromHoisting(n.Op) {
		return false
	}
	for _, in := range n.Inputs {
		if in == nil {
			continue
		}
		if in.Op == ir.OpLiteral || in.Op == ir.OpParam || firstRound[in] {
			continue
		}
		if in.Parent == nil || loop.Dominates(in.Parent) {
			return false
		}
	}
	return true
}
