package lowering_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/lowering"
	"github.com/arclang/arc/pass"
)

// TestLoweringRewritesStructFieldAccess builds an ALLOC of a two-field
// struct and an ACCESS into its second (4-byte-offset) field; spec
// §4.14 requires this to become a PTR_ADD with a literal offset, with
// the ACCESS's user rewired onto it and the ACCESS node itself gone.
func TestLoweringRewritesStructFieldAccess(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("lower_struct", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("lower_struct", ir.KindVoid, ir.TraitNone)

	sd := ir.StructDesc{Name: "Point", Fields: []ir.StructField{
		{Name: "x", Kind: ir.KindInt32},
		{Name: "y", Kind: ir.KindFloat32},
	}}
	alloc := b.Alloc(ir.KindStruct, ir.NewStruct(sd), ir.TraitNone)
	idx := b.Int(ir.KindInt32, 1)
	access, err := b.Access(alloc, idx)
	require.NoError(t, err)
	user, err := b.Cast(access, ir.KindPointer)
	require.NoError(t, err)
	b.Ret(nil)

	mgr := pass.NewManager()
	mgr.Add(lowering.New())
	require.NoError(t, mgr.Sequential(m))

	require.Nil(t, access.Parent, "the ACCESS node must be gone after lowering")
	require.Len(t, user.Inputs, 1)
	ptrAdd := user.Inputs[0]
	require.Equal(t, ir.OpPtrAdd, ptrAdd.Op)
	require.Equal(t, alloc, ptrAdd.Inputs[0], "container is already a pointer, ADDR_OF must be omitted")

	offset := ptrAdd.Inputs[1]
	require.Equal(t, ir.OpLiteral, offset.Op)
	v, err := offset.Value.AsInt64()
	require.NoError(t, err)
	require.EqualValues(t, 4, v, "field y follows one 4-byte int32 field")

	for _, n := range body.Nodes {
		require.NotEqual(t, ir.OpAccess, n.Op, "no ACCESS node should remain anywhere in the region")
	}
}

// TestLoweringRewritesArrayLiteralIndex builds an array ALLOC accessed
// at a literal index; the offset must be index * element size with no
// ADDR_OF needed.
func TestLoweringRewritesArrayLiteralIndex(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("lower_array", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("lower_array", ir.KindVoid, ir.TraitNone)

	alloc := b.ArrayAlloc(ir.KindInt32, 10, ir.TraitNone)
	idx := b.Int(ir.KindInt32, 3)
	access, err := b.Access(alloc, idx)
	require.NoError(t, err)
	user, err := b.Cast(access, ir.KindPointer)
	require.NoError(t, err)
	b.Ret(nil)

	mgr := pass.NewManager()
	mgr.Add(lowering.New())
	require.NoError(t, mgr.Sequential(m))

	ptrAdd := user.Inputs[0]
	require.Equal(t, ir.OpPtrAdd, ptrAdd.Op)
	offset := ptrAdd.Inputs[1]
	v, err := offset.Value.AsInt64()
	require.NoError(t, err)
	require.EqualValues(t, 12, v, "index 3 * 4-byte int32 elements")
}
