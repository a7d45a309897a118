package sroa_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
	"github.com/arclang/arc/transform/sroa"
)

// TestSROAFullPromotion builds {x: i32, y: f32} with only direct
// field loads/stores (spec §8.3): after SROA no ACCESS node remains
// and two scalar allocations exist in its place.
func TestSROAFullPromotion(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	b.Function("point", ir.KindInt32, ir.TraitNone)
	body := m.NewChildRegion("point", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)

	structTD := b.StructType("Point", []ir.StructField{
		{Name: "x", Kind: ir.KindInt32},
		{Name: "y", Kind: ir.KindFloat32},
	}, 4, true)
	alloc := b.Alloc(ir.KindStruct, structTD, ir.TraitNone)

	idx0 := b.Int(ir.KindInt32, 0)
	idx1 := b.Int(ir.KindInt32, 1)
	accX, err := b.Access(alloc, idx0)
	require.NoError(t, err)
	accY, err := b.Access(alloc, idx1)
	require.NoError(t, err)

	lit42 := b.Int(ir.KindInt32, 42)
	_, err = b.Store(lit42, accX)
	require.NoError(t, err)
	loadX, err := b.Load(accX, ir.KindInt32)
	require.NoError(t, err)

	litF := b.Float32(1.5)
	_, err = b.Store(litF, accY)
	require.NoError(t, err)
	loadY, err := b.Load(accY, ir.KindFloat32)
	require.NoError(t, err)

	_ = loadY
	b.Ret(loadX)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(sroa.New())
	require.NoError(t, mgr.Sequential(m))

	allocCount := 0
	for _, n := range body.Nodes {
		require.NotEqual(t, ir.OpAccess, n.Op)
		if n.Op == ir.OpAlloc {
			allocCount++
		}
	}
	require.Equal(t, 2, allocCount)
}
