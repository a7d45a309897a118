// Package mem2reg promotes addressable scalars to SSA registers (spec
// §4.4): a promotable ALLOC's loads and stores are replaced by direct
// def-use edges, with FROM nodes inserted at the merge points that
// need them.
//
// The shape of the algorithm is grounded on the teacher's ssa/lift.go
// (Cytron et al.-style alloc lifting): collect promotable allocs,
// decide where phi-equivalent merge nodes are needed, rename loads and
// stores to direct references in dominance order, then wire the merge
// nodes from each reaching predecessor's final definition. Arc's
// region tree gives structural dominance directly (no separate
// dominance-frontier computation is built), and "reaching predecessor"
// is answered by Region.CanReach rather than a block-indexed bitset,
// so the phi-placement test below is a direct per-load region check
// instead of the teacher's iterated-dominance-frontier bitmap.
package mem2reg

import (
	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
)

// Transform implements pass.Transform for mem2reg (spec §4.4).
type Transform struct{}

// New constructs the mem2reg transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string         { return "mem2reg" }
func (t *Transform) Requires() []string   { return []string{"tbaa"} }
func (t *Transform) Invalidates() []string { return []string{"tbaa", "callgraph"} }

// Run implements pass.Transform.
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

	for _, fn := range m.Functions {
		region := bodyRegion(m, fn)
		if region == nil {
			continue
		}
		promoteFunction(region, ta, markModified)
	}
	return modified, nil
}

// bodyRegion locates the region whose name matches fn's interned
// name, the convention the Builder uses to wire a function's body.
func bodyRegion(m *ir.Module, fn *ir.Node) *ir.Region {
	var found *ir.Region
	ir.Walk(m.Root, func(r *ir.Region) {
		if r.Name == fn.StrID {
			found = r
		}
	})
	return found
}

func regionsUnder(r *ir.Region) map[*ir.Region]bool {
	set := make(map[*ir.Region]bool)
	ir.Walk(r, func(x *ir.Region) { set[x] = true })
	return set
}

// computePreds inverts Succs() over every region in fn's subtree, the
// direct-predecessor map phi-wiring needs (spec §4.4 step 5).
func computePreds(fnRegion *ir.Region) map[*ir.Region][]*ir.Region {
	preds := make(map[*ir.Region][]*ir.Region)
	ir.Walk(fnRegion, func(r *ir.Region) {
		for _, s := range r.Succs() {
			preds[s] = append(preds[s], r)
		}
	})
	return preds
}

// promoteFunction collects this function's promotable allocations and
// promotes each independently (spec §4.4 step 1-2).
func promoteFunction(fnRegion *ir.Region, ta *tbaa.Analysis, markModified func(*ir.Region)) {
	under := regionsUnder(fnRegion)
	preds := computePreds(fnRegion)

	var sites []*ir.Node
	for _, site := range ta.Sites() {
		if site.Op != ir.OpAlloc || site.Parent == nil || !under[site.Parent] {
			continue
		}
		if !promotable(site, ta) {
			continue
		}
		sites = append(sites, site)
	}

	for _, site := range sites {
		promoteSite(fnRegion, site, preds, markModified)
	}
}

// promotable implements the scope test of spec §4.4: known to TBAA,
// not escaped, not VOLATILE, no ADDR_OF user, every user a load/store
// whose access type matches the allocation's pointee type.
func promotable(site *ir.Node, ta *tbaa.Analysis) bool {
	if ta.Escaped(site) {
		return false
	}
	if site.Traits.Has(ir.TraitVolatile) {
		return false
	}
	pointeeKind := ir.AllocType(site)
	for _, u := range site.Users() {
		switch u.Op {
		case ir.OpLoad, ir.OpPtrLoad:
			if u.Type != pointeeKind {
				return false
			}
		case ir.OpStore, ir.OpPtrStore:
			if len(u.Inputs) < 1 || u.Inputs[0].Type != pointeeKind {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// promoteSite runs the phi-insertion, renaming and phi-wiring steps
// (spec §4.4 steps 3-6) for a single promotable allocation.
func promoteSite(fnRegion *ir.Region, site *ir.Node, preds map[*ir.Region][]*ir.Region, markModified func(*ir.Region)) {
	pointeeKind := ir.AllocType(site)

	storeRegions := make(map[*ir.Region]bool)
	for _, u := range site.Users() {
		if u.Op == ir.OpStore || u.Op == ir.OpPtrStore {
			storeRegions[u.Parent] = true
		}
	}

	// Step 3: phi insertion. A load's region needs a FROM node when
	// the site is stored to in two or more regions other than its own;
	// reachability is only checked later, when the FROM is wired.
	phiOf := make(map[*ir.Region]*ir.Node)
	for _, u := range site.Users() {
		if u.Op != ir.OpLoad && u.Op != ir.OpPtrLoad {
			continue
		}
		rl := u.Parent
		if _, has := phiOf[rl]; has {
			continue
		}
		distinct := 0
		for r := range storeRegions {
			if r != rl {
				distinct++
			}
		}
		if distinct >= 2 {
			phi := ir.NewNode(ir.OpFrom, pointeeKind, ir.Default())
			rl.InsertAfterEntry(phi)
			phiOf[rl] = phi
			markModified(rl)
		}
	}

	// Step 4: renaming, walked in region-tree (dominance) order. The
	// zero literal stands in for "the alloc itself is a zero
	// definition" (teacher's lift.go phrasing); it is only spliced
	// into the IR the first time some load actually reaches it.
	zero := zeroLiteral(pointeeKind)
	zeroInserted := false
	useValue := func(v *ir.Node) *ir.Node {
		if v == zero && !zeroInserted {
			fnRegion.InsertAfterEntry(zero)
			zeroInserted = true
			markModified(fnRegion)
		}
		return v
	}

	finalDef := make(map[*ir.Region]*ir.Node)
	var walk func(r *ir.Region, inherited *ir.Node)
	walk = func(r *ir.Region, inherited *ir.Node) {
		cur := inherited
		if phi, ok := phiOf[r]; ok {
			cur = phi
		}
		for _, n := range append([]*ir.Node(nil), r.Nodes...) {
			switch {
			case (n.Op == ir.OpLoad || n.Op == ir.OpPtrLoad) && len(n.Inputs) > 0 && n.Inputs[0] == site:
				n.ReplaceAllUsesWith(useValue(cur))
				r.RemoveNode(n)
				markModified(r)
			case (n.Op == ir.OpStore || n.Op == ir.OpPtrStore) && len(n.Inputs) > 1 && n.Inputs[1] == site:
				cur = n.Inputs[0]
				r.RemoveNode(n)
				markModified(r)
			}
		}
		finalDef[r] = cur
		for _, c := range r.Children {
			walk(c, cur)
		}
	}
	walk(fnRegion, zero)

	// Step 5: phi wiring, from each direct predecessor that can
	// actually reach the phi's region.
	for region, phi := range phiOf {
		for _, p := range preds[region] {
			if !p.CanReach(region) {
				continue
			}
			if v, ok := finalDef[p]; ok {
				phi.AddInput(useValue(v))
			}
		}
	}

	// Step 6: cleanup. The allocation itself is removed last so the
	// renaming walk above could still see it as every load/store's
	// address operand.
	if site.Parent != nil {
		owner := site.Parent
		owner.RemoveNode(site)
		markModified(owner)
	}
}

// zeroLiteral builds the zero-valued literal a promoted site's
// uninitialized path resolves to.
func zeroLiteral(k ir.TypeKind) *ir.Node {
	switch {
	case k == ir.KindBool:
		return ir.NewNode(ir.OpLiteral, k, ir.NewBool(false))
	case k.IsSignedInteger():
		return ir.NewNode(ir.OpLiteral, k, ir.NewInt(k, 0))
	case k.IsInteger():
		return ir.NewNode(ir.OpLiteral, k, ir.NewUint(k, 0))
	case k == ir.KindFloat32:
		return ir.NewNode(ir.OpLiteral, k, ir.NewFloat32(0))
	case k == ir.KindFloat64:
		return ir.NewNode(ir.OpLiteral, k, ir.NewFloat64(0))
	default:
		return ir.NewNode(ir.OpLiteral, k, ir.Default())
	}
}
