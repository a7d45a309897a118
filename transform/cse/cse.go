// Package cse implements common subexpression elimination (spec
// §4.6): a hash-based value-numbering pass that replaces a node by an
// earlier, value-equal node, consulting TBAA before folding loads
// together.
//
// Value numbering itself has no direct analogue in the teacher
// package (ssa/lift.go lifts whole allocations, it does not dedupe
// arbitrary expressions); the hashing/canonical-map shape here follows
// the same "single pass, mutate a cache, redirect users, drop the
// duplicate" structure pass/manager.go's invalidation model already
// establishes for this codebase.
package cse

import (
	"encoding/binary"
	"hash/fnv"
	"reflect"
	"sort"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
)

// Transform implements pass.Transform for CSE (spec §4.6).
type Transform struct{}

// New constructs the CSE transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string          { return "cse" }
func (t *Transform) Requires() []string    { return []string{"tbaa"} }
func (t *Transform) Invalidates() []string { return nil }

// Run implements pass.Transform. CSE never invalidates TBAA: it only
// ever merges value-equal nodes, it never creates a new allocation
// site or moves one, so every existing MemoryLocation stays valid.
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
		runFunction(region, ta, markModified)
	}
	return modified, nil
}

func bodyRegion(m *ir.Module, fn *ir.Node) *ir.Region {
	var found *ir.Region
	ir.Walk(m.Root, func(r *ir.Region) {
		if r.Name == fn.StrID {
			found = r
		}
	})
	return found
}

// eligible implements spec §4.6's exclusion list: side-effecting
// opcodes and any VOLATILE node are never candidates.
func eligible(n *ir.Node) bool {
	if n.Traits.Has(ir.TraitVolatile) {
		return false
	}
	return !n.Op.HasSideEffects()
}

// vnTable holds the per-function value-number assignment and the
// vn -> candidate-nodes index CSE consults before folding a new node
// into an earlier one.
type vnTable struct {
	vn   map[*ir.Node]uint64
	byVN map[uint64][]*ir.Node
}

func newVNTable() *vnTable {
	return &vnTable{vn: make(map[*ir.Node]uint64), byVN: make(map[uint64][]*ir.Node)}
}

// runFunction value-numbers every eligible node in fnRegion's subtree
// in a single forward walk, folding each new node into its canonical
// predecessor as soon as one is found.
func runFunction(fnRegion *ir.Region, ta *tbaa.Analysis, markModified func(*ir.Region)) {
	table := newVNTable()
	ir.Walk(fnRegion, func(r *ir.Region) {
		for _, n := range append([]*ir.Node(nil), r.Nodes...) {
			if !eligible(n) {
				continue
			}
			vn := valueNumber(table, ta, n)
			table.vn[n] = vn

			canon := findCanonical(table, ta, vn, n)
			if canon == nil {
				table.byVN[vn] = append(table.byVN[vn], n)
				continue
			}
			n.ReplaceAllUsesWith(canon)
			if n.Parent != nil {
				n.Parent.RemoveNode(n)
				markModified(n.Parent)
			}
		}
	})
}

// findCanonical returns an existing node with the same value number
// that n may be replaced by, or nil if none qualifies. Loads require
// an additional TBAA check (spec §4.6, "Loads").
func findCanonical(table *vnTable, ta *tbaa.Analysis, vn uint64, n *ir.Node) *ir.Node {
	for _, cand := range table.byVN[vn] {
		if cand == n || !structurallyEqual(cand, n) {
			continue
		}
		if n.Op == ir.OpLoad || n.Op == ir.OpPtrLoad {
			if ta.Alias(n, cand) == tbaa.NoAlias {
				continue
			}
		}
		return cand
	}
	return nil
}

// structurallyEqual is the final equality check after a vn collision:
// same opcode, result type, and (order-sensitive unless commutative)
// operand identities. Two distinct PARAM nodes are never equal, since
// each carries its own incoming value.
func structurallyEqual(a, b *ir.Node) bool {
	if a.Op != b.Op || a.Type != b.Type || len(a.Inputs) != len(b.Inputs) {
		return false
	}
	if a.Op == ir.OpParam {
		return a == b
	}
	ai, bi := append([]*ir.Node(nil), a.Inputs...), append([]*ir.Node(nil), b.Inputs...)
	if a.Op.IsCommutative() && len(ai) == 2 {
		sortPair(ai)
		sortPair(bi)
	}
	for i := range ai {
		if ai[i] != bi[i] {
			return false
		}
	}
	if a.Op == ir.OpLiteral {
		return a.Value.Bits() == b.Value.Bits()
	}
	return true
}

func sortPair(p []*ir.Node) {
	if len(p) == 2 && identityKey(p[0]) > identityKey(p[1]) {
		p[0], p[1] = p[1], p[0]
	}
}

// identityKey gives a stable-for-this-process ordering key over node
// identity, used only to canonicalize commutative operand order
// before hashing and before the structural tie-break compare.
func identityKey(n *ir.Node) uintptr {
	return reflect.ValueOf(n).Pointer()
}

// valueNumber implements spec §4.6's hash derivation: opcode, result
// type, operand value numbers (commutative opcodes sort the pair
// first), literal bit patterns, and, for loads, the known
// MemoryLocation.
func valueNumber(table *vnTable, ta *tbaa.Analysis, n *ir.Node) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	writeU64(uint64(n.Op))
	writeU64(uint64(n.Type))

	if n.Op == ir.OpLiteral {
		writeU64(n.Value.Bits())
	}

	operandVNs := make([]uint64, len(n.Inputs))
	for i, in := range n.Inputs {
		if v, ok := table.vn[in]; ok {
			operandVNs[i] = v
		} else {
			operandVNs[i] = uint64(identityKey(in))
		}
	}
	if n.Op.IsCommutative() && len(operandVNs) == 2 {
		sort.Slice(operandVNs, func(i, j int) bool { return operandVNs[i] < operandVNs[j] })
	}
	for _, v := range operandVNs {
		writeU64(v)
	}

	if (n.Op == ir.OpLoad || n.Op == ir.OpPtrLoad) && ta != nil {
		if loc, ok := ta.Location(n); ok && loc.Site != nil {
			writeU64(uint64(identityKey(loc.Site)))
			writeU64(uint64(loc.Offset))
			writeU64(uint64(loc.Size))
			writeU64(uint64(loc.Kind))
		}
	}

	return h.Sum64()
}
