package hoistexpr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
	"github.com/arclang/arc/transform/hoistexpr"
)

// TestHoistExprMovesLoopInvariantMul builds a self-looping body region
// whose exit condition recomputes mul(p1, p2) every iteration even
// though neither operand changes in the loop; spec §4.9 requires this
// to move to the loop's parent region ahead of its terminator.
func TestHoistExprMovesLoopInvariantMul(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	outer := m.NewChildRegion("loopy", m.Root)
	b.SetInsertPoint(outer)
	_, err := b.Entry()
	require.NoError(t, err)
	p1 := b.Param("p1", ir.KindInt32)
	p2 := b.Param("p2", ir.KindInt32)
	b.Function("loopy", ir.KindInt32, ir.TraitNone, p1, p2)

	body := m.NewChildRegion("loopy.body", outer)
	exit := m.NewChildRegion("loopy.exit", outer)

	b.SetInsertPoint(body)
	bodyEntry, err := b.Entry()
	require.NoError(t, err)
	mul, err := b.Mul(p1, p2)
	require.NoError(t, err)
	limit := b.Int(ir.KindInt32, 100)
	cond, err := b.Lt(mul, limit)
	require.NoError(t, err)

	b.SetInsertPoint(exit)
	exitEntry, err := b.Entry()
	require.NoError(t, err)
	b.Ret(b.Int(ir.KindInt32, 0))

	b.SetInsertPoint(body)
	_, err = b.Branch(cond, bodyEntry, exitEntry)
	require.NoError(t, err)

	b.SetInsertPoint(outer)
	_, err = b.Jump(bodyEntry)
	require.NoError(t, err)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(hoistexpr.New())
	require.NoError(t, mgr.Sequential(m))

	require.Equal(t, outer, mul.Parent, "loop-invariant mul should move to the loop's parent region")

	foundInBody := false
	for _, n := range body.Nodes {
		if n == mul {
			foundInBody = true
		}
	}
	require.False(t, foundInBody, "mul must no longer sit in the loop body")

	jumpIdx, mulIdx := -1, -1
	for i, n := range outer.Nodes {
		if n.Op == ir.OpJump {
			jumpIdx = i
		}
		if n == mul {
			mulIdx = i
		}
	}
	require.GreaterOrEqual(t, jumpIdx, 0)
	require.GreaterOrEqual(t, mulIdx, 0)
	require.Less(t, mulIdx, jumpIdx, "hoisted node must land before the parent's terminator")
}

// TestHoistExprSkipsVolatileLoad builds a loop reading a volatile
// location every iteration; spec §4.9 forbids hoisting it even though
// its address operand is loop-external.
func TestHoistExprSkipsVolatileLoad(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	outer := m.NewChildRegion("spins", m.Root)
	b.SetInsertPoint(outer)
	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("spins", ir.KindVoid, ir.TraitNone)
	addr := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)

	body := m.NewChildRegion("spins.body", outer)
	exit := m.NewChildRegion("spins.exit", outer)

	b.SetInsertPoint(body)
	bodyEntry, err := b.Entry()
	require.NoError(t, err)
	load, err := b.Load(addr, ir.KindInt32)
	require.NoError(t, err)
	load.Traits |= ir.TraitVolatile
	zero := b.Int(ir.KindInt32, 0)
	cond, err := b.Eq(load, zero)
	require.NoError(t, err)

	b.SetInsertPoint(exit)
	exitEntry, err := b.Entry()
	require.NoError(t, err)
	b.Ret(nil)

	b.SetInsertPoint(body)
	_, err = b.Branch(cond, bodyEntry, exitEntry)
	require.NoError(t, err)

	b.SetInsertPoint(outer)
	_, err = b.Jump(bodyEntry)
	require.NoError(t, err)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(hoistexpr.New())
	require.NoError(t, mgr.Sequential(m))

	require.Equal(t, body, load.Parent, "volatile load must never be hoisted")
}
