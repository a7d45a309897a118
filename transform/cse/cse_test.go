package cse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
	"github.com/arclang/arc/transform/cse"
)

// TestCSEIdempotentAdds builds two identical add(param1, param2) nodes
// multiplied together (spec §8.4): CSE must leave the multiplication's
// two operands pointing at the same node.
func TestCSEIdempotentAdds(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	body := m.NewChildRegion("dup_add", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)

	p1 := b.Param("p1", ir.KindInt32)
	p2 := b.Param("p2", ir.KindInt32)
	b.Function("dup_add", ir.KindInt32, ir.TraitNone, p1, p2)

	add1, err := b.Add(p1, p2)
	require.NoError(t, err)
	add2, err := b.Add(p1, p2)
	require.NoError(t, err)
	mul, err := b.Mul(add1, add2)
	require.NoError(t, err)
	b.Ret(mul)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(cse.New())
	require.NoError(t, mgr.Sequential(m))

	require.Len(t, mul.Inputs, 2)
	require.Same(t, mul.Inputs[0], mul.Inputs[1])
}

// TestCSESecondRunIsNoop exercises the round-trip idempotence law
// (spec §8: running CSE twice back-to-back has no effect the second
// time on an unchanged module).
func TestCSESecondRunIsNoop(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("dup_add", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)
	p1 := b.Param("p1", ir.KindInt32)
	p2 := b.Param("p2", ir.KindInt32)
	b.Function("dup_add", ir.KindInt32, ir.TraitNone, p1, p2)
	add1, err := b.Add(p1, p2)
	require.NoError(t, err)
	add2, err := b.Add(p1, p2)
	require.NoError(t, err)
	mul, err := b.Mul(add1, add2)
	require.NoError(t, err)
	b.Ret(mul)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(cse.New())
	require.NoError(t, mgr.Sequential(m))

	before := append([]*ir.Node(nil), body.Nodes...)

	mgr2 := pass.NewManager()
	mgr2.Add(tbaa.New())
	mgr2.Add(cse.New())
	require.NoError(t, mgr2.Sequential(m))

	require.Equal(t, before, body.Nodes)
}
