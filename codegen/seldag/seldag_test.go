package seldag_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/codegen/seldag"
	"github.com/arclang/arc/ir"
)

// TestBuildTranslatesArithmeticAndWiresOperands covers the simple
// VALUE/IMMEDIATE shapes with no chain involvement.
func TestBuildTranslatesArithmeticAndWiresOperands(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("arith", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("arith", ir.KindInt32, ir.TraitNone)

	lhs := b.Int(ir.KindInt32, 7)
	rhs := b.Int(ir.KindInt32, 35)
	sum, err := b.Add(lhs, rhs)
	require.NoError(t, err)
	b.Ret(sum)

	dag, err := seldag.Build(body)
	require.NoError(t, err)

	dLhs := dag.ByIR(lhs)
	require.NotNil(t, dLhs)
	require.Equal(t, seldag.KindImmediate, dLhs.Kind)
	require.EqualValues(t, 7, dLhs.Imm)

	dSum := dag.ByIR(sum)
	require.NotNil(t, dSum)
	require.Equal(t, seldag.KindValue, dSum.Kind)
	require.Equal(t, []*seldag.Node{dLhs, dag.ByIR(rhs)}, dSum.Operands)

	dRet := dag.ByIR(body.Nodes[len(body.Nodes)-1])
	require.Equal(t, seldag.KindChain, dRet.Kind, "RET has side effects per ir.Opcode.HasSideEffects")
	require.Contains(t, dRet.Operands, dSum)
	require.Contains(t, dRet.Operands, dag.ChainRoot, "RET must thread the region's chain")
}

// TestBuildThreadsChainThroughStores verifies two sequential stores to
// an ALLOC chain through one another rather than both reading the
// synthetic chain root directly.
func TestBuildThreadsChainThroughStores(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("stores", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("stores", ir.KindVoid, ir.TraitNone)

	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	one := b.Int(ir.KindInt32, 1)
	two := b.Int(ir.KindInt32, 2)
	firstStore, err := b.Store(one, alloc)
	require.NoError(t, err)
	secondStore, err := b.Store(two, alloc)
	require.NoError(t, err)
	b.Ret(nil)

	dag, err := seldag.Build(body)
	require.NoError(t, err)

	dFirst := dag.ByIR(firstStore)
	dSecond := dag.ByIR(secondStore)
	require.Equal(t, seldag.KindChain, dFirst.Kind)
	require.Equal(t, seldag.KindChain, dSecond.Kind)
	require.Contains(t, dFirst.Operands, dag.ChainRoot)
	require.Contains(t, dSecond.Operands, dFirst, "the second store must chain off the first, not the root")
	require.NotContains(t, dSecond.Operands, dag.ChainRoot)
}

// TestLinearizeAssignsTopologicalOrder checks every operand receives a
// strictly lower ValueID than each of its users.
func TestLinearizeAssignsTopologicalOrder(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("topo", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("topo", ir.KindInt32, ir.TraitNone)

	a := b.Int(ir.KindInt32, 3)
	c := b.Int(ir.KindInt32, 4)
	sum, err := b.Add(a, c)
	require.NoError(t, err)
	doubled, err := b.Mul(sum, b.Int(ir.KindInt32, 2))
	require.NoError(t, err)
	b.Ret(doubled)

	dag, err := seldag.Build(body)
	require.NoError(t, err)
	order := dag.Linearize()
	require.Len(t, order, len(dag.Nodes))

	for _, n := range order {
		for _, operand := range n.Operands {
			require.Less(t, operand.ValueID, n.ValueID)
		}
	}
}
