package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
)

// TestBuilderConstructsStraightLineFunction exercises the front-end
// construction surface spec §6 describes: alloc, store, load, cast,
// arithmetic and ret all wire their operands into a single,
// bidirectionally-consistent node graph.
func TestBuilderConstructsStraightLineFunction(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("straight", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("straight", ir.KindInt32, ir.TraitNone)

	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	lit := b.Int(ir.KindInt32, 7)
	_, err = b.Store(lit, alloc)
	require.NoError(t, err)
	load, err := b.Load(alloc, ir.KindInt32)
	require.NoError(t, err)
	two := b.Int(ir.KindInt32, 2)
	sum, err := b.Add(load, two)
	require.NoError(t, err)
	ret := b.Ret(sum)

	require.Equal(t, ir.KindInt32, ret.Type, "Ret(value) takes value's own type")
	require.True(t, body.IsTerminated())
	require.Same(t, ret, body.Terminator())

	// spec §8's def-use invariant: for every node n and every u in
	// n.Users(), n must appear in u.Inputs, and vice versa.
	for _, n := range body.Nodes {
		for _, u := range n.Users() {
			require.Contains(t, u.Inputs, n)
		}
		for _, in := range n.Inputs {
			if in == nil {
				continue
			}
			require.Contains(t, in.Users(), n)
		}
	}
}

// TestBuilderRejectsInvalidOperands covers spec §6's construction
// error contract: null operands, operand-type mismatches and empty
// vector builds all fail with ErrInvalidOperand.
func TestBuilderRejectsInvalidOperands(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("invalid", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)

	_, err = b.Store(nil, b.Int(ir.KindInt32, 0))
	require.ErrorIs(t, err, ir.ErrInvalidOperand)

	notAPointer := b.Int(ir.KindInt32, 1)
	_, err = b.PtrLoad(notAPointer, ir.KindInt32)
	require.ErrorIs(t, err, ir.ErrInvalidOperand)

	_, err = b.VectorBuild(ir.KindFloat32)
	require.ErrorIs(t, err, ir.ErrInvalidOperand)
}

// TestRegionDominatesAndDepth covers spec §3's structural-dominance
// tree: a child region is dominated by every ancestor and its own
// depth counts the edges back to root.
func TestRegionDominatesAndDepth(t *testing.T) {
	m := ir.NewModule("test")
	outer := m.NewChildRegion("outer", m.Root)
	inner := m.NewChildRegion("inner", outer)

	require.True(t, m.Root.Dominates(outer))
	require.True(t, outer.Dominates(inner))
	require.True(t, m.Root.Dominates(inner))
	require.False(t, inner.Dominates(outer))

	require.Equal(t, 0, m.Root.Depth())
	require.Equal(t, 1, outer.Depth())
	require.Equal(t, 2, inner.Depth())
}

// TestReplaceAllUsesWithMaintainsInvariant covers the substitution
// primitive every transform in this tree builds on (spec §9): after
// redirecting add1's users to add2, add1 must have no users left and
// every former user must now list add2 among its inputs.
func TestReplaceAllUsesWithMaintainsInvariant(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("replace", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("replace", ir.KindInt32, ir.TraitNone)

	p1 := b.Param("p1", ir.KindInt32)
	p2 := b.Param("p2", ir.KindInt32)
	add1, err := b.Add(p1, p2)
	require.NoError(t, err)
	add2, err := b.Add(p2, p1)
	require.NoError(t, err)
	mul, err := b.Mul(add1, add1)
	require.NoError(t, err)
	b.Ret(mul)

	add1.ReplaceAllUsesWith(add2)

	require.Empty(t, add1.Users())
	require.Equal(t, []*ir.Node{add2, add2}, mul.Inputs)
	require.Len(t, add2.Users(), 2)
}
