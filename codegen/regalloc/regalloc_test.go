package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/codegen/regalloc"
	"github.com/arclang/arc/codegen/seldag"
	"github.com/arclang/arc/codegen/target"
	"github.com/arclang/arc/codegen/testtarget"
	"github.com/arclang/arc/ir"
)

// buildChain constructs a straight-line function body with n
// sequential integer adds interleaved with n sequential float adds,
// mirroring spec §8 scenario 5's "20-long computation chain".
func buildChain(t *testing.T, n int) *ir.Region {
	t.Helper()
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("chain", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("chain", ir.KindInt32, ir.TraitNone)

	intAcc := b.Int(ir.KindInt32, 0)
	floatAcc := b.Float32(0)
	for i := 0; i < n; i++ {
		lit := b.Int(ir.KindInt32, int64(i))
		intAcc, err = b.Add(intAcc, lit)
		require.NoError(t, err)
		flit := b.Float32(float32(i))
		floatAcc, err = b.Add(floatAcc, flit)
		require.NoError(t, err)
	}
	sum, err := b.Cast(floatAcc, ir.KindInt32)
	require.NoError(t, err)
	total, err := b.Add(intAcc, sum)
	require.NoError(t, err)
	b.Ret(total)
	return body
}

// TestHierarchicalAllocationMobileTarget covers spec §8 scenario 5: on
// a target with 13 GP and 16 vector registers, a 20-long computation
// chain completes with spill ratio < 0.5 and non-zero allocation in
// both classes.
func TestHierarchicalAllocationMobileTarget(t *testing.T) {
	region := buildChain(t, 20)
	arch := testtarget.New() // 13 GP / 16 vector, per New's documented default
	a := regalloc.New(arch)

	err := a.Allocate(region, regalloc.RootBudget(arch))
	require.NoError(t, err)

	ratio := a.SpillRatio(region)
	require.Lessf(t, ratio, 0.5, "spill ratio %.2f should stay under 0.5", ratio)

	require.Greater(t, a.AllocatedInClass(region, target.GeneralPurpose), 0)
	require.Greater(t, a.AllocatedInClass(region, target.Vector), 0)
}

// TestAllocateNodeCacheHitIgnoresLaterRequest covers spec §4.13's
// per-node allocation contract: a cache hit returns the earlier
// result regardless of what a later, differing request asks for.
func TestAllocateNodeCacheHitIgnoresLaterRequest(t *testing.T) {
	region := buildChain(t, 1)
	arch := testtarget.New()
	a := regalloc.New(arch)
	require.NoError(t, a.Allocate(region, regalloc.RootBudget(arch)))

	dag := a.DAG(region)
	require.NotNil(t, dag)

	synthetic := dag.NewInstruction(0, nil)
	synthetic.Type = ir.KindInt32

	req := regalloc.Request{Class: target.GeneralPurpose, HasHint: true, Hint: target.Register(0), AllowSpill: true}
	res1 := a.AllocateNode(region, synthetic, req)
	require.True(t, res1.Allocated)

	res2 := a.AllocateNode(region, synthetic, regalloc.Request{Class: target.Vector, AllowSpill: true})
	require.Equal(t, res1, res2, "a cache hit must ignore the second request's differing class")
}

// TestFromNodeReusesOperandRegister covers spec §4.13's FROM-node
// specialisation: a FROM-shaped node whose operand already holds a
// register reuses it instead of taking a fresh one.
func TestFromNodeReusesOperandRegister(t *testing.T) {
	region := buildChain(t, 1)
	arch := testtarget.New()
	a := regalloc.New(arch)
	require.NoError(t, a.Allocate(region, regalloc.RootBudget(arch)))

	dag := a.DAG(region)
	require.NotNil(t, dag)

	var source *seldag.Node
	for _, n := range dag.Nodes {
		if n.Kind != seldag.KindValue && n.Kind != seldag.KindInstruction {
			continue
		}
		if n.Type != ir.KindInt32 {
			continue
		}
		res := a.AllocateNode(region, n, regalloc.Request{Class: target.GeneralPurpose, AllowSpill: true})
		if res.Allocated {
			source = n
			break
		}
	}
	require.NotNil(t, source, "the one-iteration chain must allocate at least one GP value")

	from := dag.NewInstruction(0, []*seldag.Node{source})
	from.Type = ir.KindInt32

	res := a.AllocateFrom(region, from)
	require.True(t, res.Allocated)
	sourceResult := a.AllocateNode(region, source, regalloc.Request{Class: target.GeneralPurpose, AllowSpill: true})
	require.Equal(t, sourceResult.Reg, res.Reg, "FROM must reuse its source operand's register")
}
