package constfold_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/transform/constfold"
)

// TestConstFoldArithmeticChain exercises spec §8.1: a function
// returning (10+20)*(50-15) folds in one pass to the literal 1050.
func TestConstFoldArithmeticChain(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	b.Function("arith", ir.KindInt32, ir.TraitNone)
	body := m.NewChildRegion("arith", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)

	ten := b.Int(ir.KindInt32, 10)
	twenty := b.Int(ir.KindInt32, 20)
	add, err := b.Add(ten, twenty)
	require.NoError(t, err)

	fifty := b.Int(ir.KindInt32, 50)
	fifteen := b.Int(ir.KindInt32, 15)
	sub, err := b.Sub(fifty, fifteen)
	require.NoError(t, err)

	mul, err := b.Mul(add, sub)
	require.NoError(t, err)
	b.Ret(mul)

	mgr := pass.NewManager()
	mgr.Add(constfold.New())
	require.NoError(t, mgr.Sequential(m))

	ret := body.Nodes[len(body.Nodes)-1]
	require.Equal(t, ir.OpRet, ret.Op)
	require.Len(t, ret.Inputs, 1)
	require.Equal(t, ir.OpLiteral, ret.Inputs[0].Op)
	v, err := ret.Inputs[0].Value.AsInt64()
	require.NoError(t, err)
	require.Equal(t, int64(1050), v)

	for _, n := range body.Nodes {
		switch n.Op {
		case ir.OpAdd, ir.OpSub, ir.OpMul:
			t.Fatalf("arithmetic node %v survived folding", n.Op)
		}
	}
}

// TestConstFoldBranchToJump exercises spec §4.7's BRANCH rule: a
// literal BOOL condition collapses the branch to an unconditional jump
// at the selected target.
func TestConstFoldBranchToJump(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	b.Function("cond", ir.KindVoid, ir.TraitNone)

	entryR := m.NewChildRegion("cond", m.Root)
	thenR := m.NewChildRegion("cond.then", entryR)
	elseR := m.NewChildRegion("cond.else", entryR)

	b.SetInsertPoint(thenR)
	thenEntry, err := b.Entry()
	require.NoError(t, err)
	b.Ret(nil)

	b.SetInsertPoint(elseR)
	elseEntry, err := b.Entry()
	require.NoError(t, err)
	b.Ret(nil)

	b.SetInsertPoint(entryR)
	_, err = b.Entry()
	require.NoError(t, err)
	cond := b.Bool(true)
	_, err = b.Branch(cond, thenEntry, elseEntry)
	require.NoError(t, err)

	mgr := pass.NewManager()
	mgr.Add(constfold.New())
	require.NoError(t, mgr.Sequential(m))

	term := entryR.Nodes[len(entryR.Nodes)-1]
	require.Equal(t, ir.OpJump, term.Op)
	require.Len(t, term.Inputs, 1)
	require.Same(t, thenEntry, term.Inputs[0])
}

// TestConstFoldDivByZeroUnfolded exercises spec §4.7's DIV-by-zero
// exception: a literal/literal division is left alone when the
// divisor is zero.
func TestConstFoldDivByZeroUnfolded(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	b.Function("divzero", ir.KindInt32, ir.TraitNone)
	body := m.NewChildRegion("divzero", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	ten := b.Int(ir.KindInt32, 10)
	zero := b.Int(ir.KindInt32, 0)
	div, err := b.Div(ten, zero)
	require.NoError(t, err)
	b.Ret(div)

	mgr := pass.NewManager()
	mgr.Add(constfold.New())
	require.NoError(t, mgr.Sequential(m))

	var sawDiv bool
	for _, n := range body.Nodes {
		if n.Op == ir.OpDiv {
			sawDiv = true
		}
	}
	require.True(t, sawDiv, "division by literal zero must survive folding")
}
