package dce_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/transform/dce"
)

// TestDCERemovesUnreferencedChain builds a + b that nothing reads,
// alongside a literal that does feed the return; the unused chain
// (and, once it is gone, its own now-unreferenced operands) should be
// swept away in successive rounds.
func TestDCERemovesUnreferencedChain(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("dead_chain", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("dead_chain", ir.KindInt32, ir.TraitNone)

	a := b.Int(ir.KindInt32, 1)
	c := b.Int(ir.KindInt32, 2)
	unused, err := b.Add(a, c)
	require.NoError(t, err)
	keep := b.Int(ir.KindInt32, 5)
	b.Ret(keep)

	mgr := pass.NewManager()
	mgr.Add(dce.New())
	require.NoError(t, mgr.Sequential(m))

	require.Nil(t, unused.Parent)
	require.Nil(t, a.Parent)
	require.Nil(t, c.Parent)
	require.NotNil(t, keep.Parent, "the literal feeding the return must survive")

	require.Len(t, body.Nodes, 3, "entry, keep literal, and ret should remain")
}

// TestDCEKeepsSideEffectingNodes builds an unused ALLOC; DCE must
// leave it alone since ALLOC is side-effecting and the pass only
// removes pure, unreferenced expressions.
func TestDCEKeepsSideEffectingNodes(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("keep_alloc", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("keep_alloc", ir.KindVoid, ir.TraitNone)
	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	b.Ret(nil)

	mgr := pass.NewManager()
	mgr.Add(dce.New())
	require.NoError(t, mgr.Sequential(m))

	require.NotNil(t, alloc.Parent, "an unreferenced ALLOC is still side-effecting and must survive")
}
