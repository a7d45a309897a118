// Package constfold implements constant folding (spec §4.7): a
// worklist-driven pass that collapses a node whose operands are all
// literals (or, for BRANCH/SELECT, whose controlling condition is a
// literal) into the literal value or control-flow edge it statically
// computes to.
//
// The worklist shape mirrors mem2reg's and SROA's "collect candidates,
// mutate, track modified regions" structure, seeded once with every
// node up front and re-seeded with a folded node's users so a
// chain like (10+20)*(50-15) collapses in one pass instead of needing
// repeated invocations.
package constfold

import (
	"math"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
)

// Transform implements pass.Transform for constant folding (spec §4.7).
type Transform struct{}

// New constructs the constant-folding transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string          { return "constfold" }
func (t *Transform) Requires() []string    { return nil }
func (t *Transform) Invalidates() []string { return nil }

// Run implements pass.Transform. ConstFold never invalidates TBAA or
// the call graph: folding replaces a pure computation by a literal, it
// never creates, moves or removes an allocation site or a call edge.
func (t *Transform) Run(m *ir.Module, mgr *pass.Manager) ([]*ir.Region, error) {
	modifiedSet := make(map[*ir.Region]bool)
	var modified []*ir.Region
	markModified := func(r *ir.Region) {
		if r != nil && !modifiedSet[r] {
			modifiedSet[r] = true
			modified = append(modified, r)
		}
	}

	var worklist []*ir.Node
	seen := make(map[*ir.Node]bool)
	push := func(n *ir.Node) {
		if n == nil || seen[n] {
			return
		}
		seen[n] = true
		worklist = append(worklist, n)
	}

	ir.Walk(m.Root, func(r *ir.Region) {
		for _, n := range r.Nodes {
			push(n)
		}
	})

	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]
		delete(seen, n)

		if n.Parent == nil {
			continue // already folded away
		}
		if n.Traits.Has(ir.TraitVolatile) {
			continue
		}

		switch {
		case n.Op == ir.OpBranch:
			foldBranch(n, markModified, push)
		default:
			lit := fold(n)
			if lit == nil {
				continue
			}
			users := append([]*ir.Node(nil), n.Users()...)
			region := n.Parent
			n.ReplaceAllUsesWith(lit)
			if lit.Parent == nil {
				// A freshly synthesized literal (arithmetic/compare/
				// bitwise/cast folds); splice it in where n stood.
				region.InsertBefore(n, lit)
			}
			// Else lit is an existing node already live in the graph
			// (FROM/SELECT collapsing to one of their own operands) and
			// needs no re-insertion.
			region.RemoveNode(n)
			markModified(region)
			for _, u := range users {
				push(u)
			}
		}
	}

	return modified, nil
}

// fold returns the literal node n collapses to, or nil if n is not
// (yet) foldable.
func fold(n *ir.Node) *ir.Node {
	switch n.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod:
		return foldArith(n)
	case ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLte, ir.OpGt, ir.OpGte:
		return foldCompare(n)
	case ir.OpBAnd, ir.OpBOr, ir.OpBXor, ir.OpBShl, ir.OpBShr:
		return foldBitwise(n)
	case ir.OpBNot:
		return foldBNot(n)
	case ir.OpCast:
		return foldCast(n)
	case ir.OpFrom:
		return foldFrom(n)
	case ir.OpSelect:
		return foldSelect(n)
	}
	return nil
}

func isLiteral(n *ir.Node) bool { return n != nil && n.Op == ir.OpLiteral }

// foldArith implements spec §4.7's arithmetic family: both operands
// literal, numeric-promoted, DIV/MOD by zero left unfolded.
func foldArith(n *ir.Node) *ir.Node {
	if len(n.Inputs) != 2 || !isLiteral(n.Inputs[0]) || !isLiteral(n.Inputs[1]) {
		return nil
	}
	lhs, rhs := n.Inputs[0], n.Inputs[1]
	kind, ok := ir.Promote(lhs.Type, rhs.Type)
	if !ok {
		return nil
	}

	if kind.IsFloat() {
		a, err1 := asFloat64(lhs)
		b, err2 := asFloat64(rhs)
		if err1 != nil || err2 != nil {
			return nil
		}
		var r float64
		switch n.Op {
		case ir.OpAdd:
			r = a + b
		case ir.OpSub:
			r = a - b
		case ir.OpMul:
			r = a * b
		case ir.OpDiv:
			if b == 0 {
				return nil
			}
			r = a / b
		case ir.OpMod:
			if b == 0 {
				return nil
			}
			r = math.Mod(a, b)
		}
		return floatLiteral(kind, r)
	}

	a, err1 := lhs.Value.AsInt64()
	b, err2 := rhs.Value.AsInt64()
	if err1 != nil || err2 != nil {
		return nil
	}
	var r int64
	switch n.Op {
	case ir.OpAdd:
		r = a + b
	case ir.OpSub:
		r = a - b
	case ir.OpMul:
		r = a * b
	case ir.OpDiv:
		if b == 0 {
			return nil
		}
		r = a / b
	case ir.OpMod:
		if b == 0 {
			return nil
		}
		r = a % b
	}
	return ir.NewNode(ir.OpLiteral, kind, ir.NewInt(kind, r))
}

// foldCompare implements spec §4.7's comparison family: folds to a
// BOOL literal under the same numeric promotion rule as arithmetic.
func foldCompare(n *ir.Node) *ir.Node {
	if len(n.Inputs) != 2 || !isLiteral(n.Inputs[0]) || !isLiteral(n.Inputs[1]) {
		return nil
	}
	lhs, rhs := n.Inputs[0], n.Inputs[1]
	kind, ok := ir.Promote(lhs.Type, rhs.Type)
	if !ok {
		return nil
	}

	var cmp int
	if kind.IsFloat() {
		a, err1 := asFloat64(lhs)
		b, err2 := asFloat64(rhs)
		if err1 != nil || err2 != nil {
			return nil
		}
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	} else {
		a, err1 := lhs.Value.AsInt64()
		b, err2 := rhs.Value.AsInt64()
		if err1 != nil || err2 != nil {
			return nil
		}
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	}

	var result bool
	switch n.Op {
	case ir.OpEq:
		result = cmp == 0
	case ir.OpNeq:
		result = cmp != 0
	case ir.OpLt:
		result = cmp < 0
	case ir.OpLte:
		result = cmp <= 0
	case ir.OpGt:
		result = cmp > 0
	case ir.OpGte:
		result = cmp >= 0
	}
	return ir.NewNode(ir.OpLiteral, ir.KindBool, ir.NewBool(result))
}

// foldBitwise implements spec §4.7's bitwise family: identical integer
// type required, no promotion.
func foldBitwise(n *ir.Node) *ir.Node {
	if len(n.Inputs) != 2 || !isLiteral(n.Inputs[0]) || !isLiteral(n.Inputs[1]) {
		return nil
	}
	lhs, rhs := n.Inputs[0], n.Inputs[1]
	if lhs.Type != rhs.Type || !lhs.Type.IsInteger() {
		return nil
	}
	a, err1 := lhs.Value.AsUint64()
	b, err2 := rhs.Value.AsUint64()
	if err1 != nil || err2 != nil {
		return nil
	}
	var r uint64
	switch n.Op {
	case ir.OpBAnd:
		r = a & b
	case ir.OpBOr:
		r = a | b
	case ir.OpBXor:
		r = a ^ b
	case ir.OpBShl:
		r = a << uint(b)
	case ir.OpBShr:
		r = a >> uint(b)
	}
	return ir.NewNode(ir.OpLiteral, lhs.Type, ir.NewUint(lhs.Type, r))
}

func foldBNot(n *ir.Node) *ir.Node {
	if len(n.Inputs) != 1 || !isLiteral(n.Inputs[0]) || !n.Inputs[0].Type.IsInteger() {
		return nil
	}
	v, err := n.Inputs[0].Value.AsUint64()
	if err != nil {
		return nil
	}
	return ir.NewNode(ir.OpLiteral, n.Inputs[0].Type, ir.NewUint(n.Inputs[0].Type, ^v))
}

// foldCast implements spec §4.7's cast family: C-style numeric
// conversion of a literal operand to n's own (target) type.
func foldCast(n *ir.Node) *ir.Node {
	if len(n.Inputs) != 1 || !isLiteral(n.Inputs[0]) {
		return nil
	}
	src := n.Inputs[0]
	if !src.Type.IsNumeric() || !n.Type.IsNumeric() {
		return nil
	}
	if n.Type.IsFloat() {
		v, err := asFloat64(src)
		if err != nil {
			return nil
		}
		return floatLiteral(n.Type, v)
	}
	if src.Type.IsFloat() {
		v, err := asFloat64(src)
		if err != nil {
			return nil
		}
		return ir.NewNode(ir.OpLiteral, n.Type, ir.NewInt(n.Type, int64(v)))
	}
	v, err := src.Value.AsInt64()
	if err != nil {
		return nil
	}
	return ir.NewNode(ir.OpLiteral, n.Type, ir.NewInt(n.Type, v))
}

// foldFrom implements spec §4.7's FROM rule: collapses to the common
// literal only when every edge is literal and bit-identical.
func foldFrom(n *ir.Node) *ir.Node {
	if len(n.Inputs) == 0 {
		return nil
	}
	first := n.Inputs[0]
	if !isLiteral(first) {
		return nil
	}
	for _, e := range n.Inputs[1:] {
		if !isLiteral(e) || e.Type != first.Type || e.Value.Bits() != first.Value.Bits() {
			return nil
		}
	}
	return first
}

// foldSelect implements spec §4.7's SELECT rule: a literal condition
// picks an arm outright; identical literal arms collapse regardless of
// the condition.
func foldSelect(n *ir.Node) *ir.Node {
	if len(n.Inputs) != 3 {
		return nil
	}
	cond, onTrue, onFalse := n.Inputs[0], n.Inputs[1], n.Inputs[2]
	if isLiteral(cond) {
		v, err := cond.Value.AsBool()
		if err == nil {
			if v {
				return onTrue
			}
			return onFalse
		}
	}
	if isLiteral(onTrue) && isLiteral(onFalse) && onTrue.Type == onFalse.Type && onTrue.Value.Bits() == onFalse.Value.Bits() {
		return onTrue
	}
	return nil
}

// foldBranch implements spec §4.7's BRANCH rule: a literal BOOL
// condition replaces the two-way branch with an unconditional JUMP to
// the selected ENTRY.
func foldBranch(n *ir.Node, markModified func(*ir.Region), push func(*ir.Node)) {
	if len(n.Inputs) != 3 || !isLiteral(n.Inputs[0]) {
		return
	}
	cond, thenEntry, elseEntry := n.Inputs[0], n.Inputs[1], n.Inputs[2]
	v, err := cond.Value.AsBool()
	if err != nil {
		return
	}
	target := elseEntry
	if v {
		target = thenEntry
	}

	jump := ir.NewNode(ir.OpJump, ir.KindVoid, ir.Default(), target)
	region := n.Parent
	region.InsertBefore(n, jump)
	region.RemoveNode(n)
	markModified(region)
	push(jump)
}

func asFloat64(n *ir.Node) (float64, error) {
	if n.Type.IsFloat() {
		if n.Type == ir.KindFloat32 {
			v, err := n.Value.AsFloat32()
			return float64(v), err
		}
		return n.Value.AsFloat64()
	}
	v, err := n.Value.AsInt64()
	return float64(v), err
}

func floatLiteral(kind ir.TypeKind, v float64) *ir.Node {
	if kind == ir.KindFloat32 {
		return ir.NewNode(ir.OpLiteral, kind, ir.NewFloat32(float32(v)))
	}
	return ir.NewNode(ir.OpLiteral, kind, ir.NewFloat64(v))
}
