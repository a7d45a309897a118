// Package selector implements the pattern-driven instruction selector
// spec §4.12 describes: a priority-ordered registry of (predicate,
// generator) pairs that rewrite selection DAG nodes (codegen/seldag)
// into target instruction form, generic over the architecture
// contract in codegen/target.
//
// The teacher has no instruction selector (its SSA lowers straight to
// an interpreter, not a machine), so the registry shape below is
// transcribed directly from spec §4.12's "sorted by decreasing
// priority, first match wins" description rather than adapted from
// teacher source; the node-rewriting primitives it calls
// (AddOperand/ReplaceAllUsesWith) are the ones codegen/seldag already
// established, which in turn mirror ir.Node's own edge-maintenance
// idiom.
package selector

import (
	"sort"

	"github.com/arclang/arc/codegen/seldag"
	"github.com/arclang/arc/codegen/target"
	"github.com/arclang/arc/ir"
)

// Pattern is one selection rule (spec §4.12): Predicate decides
// whether Generate applies to a given DAG node, Priority breaks ties
// between patterns that could both apply (highest first), and Name
// identifies the pattern for diagnostics/tests.
type Pattern struct {
	Name      string
	Priority  uint32
	Predicate func(*seldag.Node) bool
	// Generate rewrites node into instruction form, using dag's
	// make_instruction/make_reg/make_imm/make_mem constructors as
	// needed, and returns the node that should now stand in node's
	// place (ordinarily node itself, mutated; occasionally a fresh
	// node when the rewrite must replace rather than mutate).
	Generate func(dag *seldag.DAG, node *seldag.Node) *seldag.Node
}

// Selector holds patterns sorted by decreasing priority and the
// Target contract they were written against (spec §4.12, §6).
type Selector struct {
	Arch     target.Target
	patterns []Pattern
}

// New constructs an empty Selector for arch.
func New(arch target.Target) *Selector {
	return &Selector{Arch: arch}
}

// Register adds p to the registry, keeping patterns sorted by
// decreasing priority; patterns registered with equal priority keep
// their relative registration order (spec §4.12 does not define a
// tie-break beyond priority, so stability is the least-surprising
// choice).
func (s *Selector) Register(p Pattern) {
	s.patterns = append(s.patterns, p)
	sort.SliceStable(s.patterns, func(i, j int) bool {
		return s.patterns[i].Priority > s.patterns[j].Priority
	})
}

// Patterns returns the registry in priority order. The returned slice
// must not be mutated.
func (s *Selector) Patterns() []Pattern { return s.patterns }

// Select implements spec §4.12's select(node): tries patterns in
// priority order, stops at the first whose Predicate returns true,
// invokes its Generate, marks node (and the node Generate returned,
// if that is a different one) Selected, and reports whether any
// pattern matched.
func (s *Selector) Select(dag *seldag.DAG, node *seldag.Node) bool {
	if node.State != seldag.StateUnselected {
		return false
	}
	for _, p := range s.patterns {
		if !p.Predicate(node) {
			continue
		}
		result := p.Generate(dag, node)
		if result == nil {
			result = node
		}
		node.State = seldag.StateSelected
		result.State = seldag.StateSelected
		return true
	}
	return false
}

// SelectAll implements spec §4.12's select_all(): iterates every
// non-selected node in dag and attempts Select on each, in build
// order so a pattern that synthesizes new nodes mid-walk does not
// perturb ones already visited. It returns how many nodes were
// selected.
func (s *Selector) SelectAll(dag *seldag.DAG) int {
	selected := 0
	// Copy the slice: Generate may append synthetic nodes to
	// dag.Nodes, and we want this walk to cover exactly the nodes
	// that existed when SelectAll started.
	nodes := append([]*seldag.Node(nil), dag.Nodes...)
	for _, n := range nodes {
		if s.Select(dag, n) {
			selected++
		}
	}
	return selected
}

// MakeInstruction is the make_instruction helper spec §4.12 exposes
// to patterns, validated against the Target's MaxOperands (a pattern
// that tries to emit an over-wide instruction is a selector bug, not
// a recoverable condition — it panics the same way an out-of-bounds
// slice index would).
func (s *Selector) MakeInstruction(dag *seldag.DAG, targetOp int, operands []*seldag.Node) *seldag.Node {
	if max := s.Arch.MaxOperands(); max > 0 && len(operands) > max {
		panic("selector: instruction operand count exceeds target.MaxOperands")
	}
	return dag.NewInstruction(targetOp, operands)
}

// MakeReg is the make_reg helper (spec §4.12).
func (s *Selector) MakeReg(dag *seldag.DAG, id int, typ ir.TypeKind) *seldag.Node {
	return dag.NewRegister(id, typ)
}

// MakeImm is the make_imm helper (spec §4.12).
func (s *Selector) MakeImm(dag *seldag.DAG, v uint64, typ ir.TypeKind) *seldag.Node {
	return dag.NewImmediate(v, typ)
}

// MakeMem is the make_mem helper (spec §4.12).
func (s *Selector) MakeMem(dag *seldag.DAG, addr *seldag.Node, typ ir.TypeKind) *seldag.Node {
	return dag.NewMemory(addr, typ)
}
