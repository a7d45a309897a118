package inliner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/transform/inliner"
)

// buildAddOne wires a two-function module: add_one(p) = p + 1, called
// once from main() with a literal argument. A single literal call
// argument and a tiny body push benefit well past the default
// threshold (spec §4.10), so the call should be replaced by the
// cloned addition.
func buildAddOne(t *testing.T) (*ir.Module, *ir.Node, *ir.Region) {
	t.Helper()
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	calleeBody := m.NewChildRegion("add_one", m.Root)
	b.SetInsertPoint(calleeBody)
	_, err := b.Entry()
	require.NoError(t, err)
	p := b.Param("p", ir.KindInt32)
	calleeFn := b.Function("add_one", ir.KindInt32, ir.TraitNone, p)
	one := b.Int(ir.KindInt32, 1)
	sum, err := b.Add(p, one)
	require.NoError(t, err)
	b.Ret(sum)

	callerBody := m.NewChildRegion("main", m.Root)
	b.SetInsertPoint(callerBody)
	_, err = b.Entry()
	require.NoError(t, err)
	b.Function("main", ir.KindInt32, ir.TraitNone)
	five := b.Int(ir.KindInt32, 5)
	call, err := b.Call(calleeFn, five)
	require.NoError(t, err)
	b.Ret(call)

	return m, call, callerBody
}

func TestInlinerReplacesSingleCallSite(t *testing.T) {
	m, call, callerBody := buildAddOne(t)

	mgr := pass.NewManager()
	mgr.Add(inliner.New())
	require.NoError(t, mgr.Sequential(m))

	require.Nil(t, call.Parent, "the call site should be removed after inlining")

	var adds []*ir.Node
	for _, n := range callerBody.Nodes {
		if n.Op == ir.OpAdd {
			adds = append(adds, n)
		}
	}
	require.Len(t, adds, 1, "the callee's add should be cloned into the caller")

	ret := callerBody.Terminator()
	require.NotNil(t, ret)
	require.Equal(t, ir.OpRet, ret.Op)
	require.Equal(t, adds[0], ret.Inputs[0], "the call's users should now read the cloned add")

	for _, in := range adds[0].Inputs {
		require.NotEqual(t, ir.OpParam, in.Op, "the cloned add must reference the argument, not the original param")
	}
}

// TestInlinerSkipsMultiRegionBody builds a callee whose body has a
// child region (an if/else), which spec §4.10 excludes from
// inlinability outright regardless of cost/benefit.
func TestInlinerSkipsMultiRegionBody(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	calleeBody := m.NewChildRegion("branchy", m.Root)
	b.SetInsertPoint(calleeBody)
	_, err := b.Entry()
	require.NoError(t, err)
	p := b.Param("p", ir.KindInt32)
	calleeFn := b.Function("branchy", ir.KindInt32, ir.TraitNone, p)

	thenRegion := m.NewChildRegion("branchy.then", calleeBody)
	b.SetInsertPoint(thenRegion)
	thenEntry, err := b.Entry()
	require.NoError(t, err)
	b.Ret(p)

	b.SetInsertPoint(calleeBody)
	zero := b.Int(ir.KindInt32, 0)
	cond, err := b.Eq(p, zero)
	require.NoError(t, err)
	_, err = b.Branch(cond, thenEntry, thenEntry)
	require.NoError(t, err)

	callerBody := m.NewChildRegion("main2", m.Root)
	b.SetInsertPoint(callerBody)
	_, err = b.Entry()
	require.NoError(t, err)
	b.Function("main2", ir.KindInt32, ir.TraitNone)
	arg := b.Int(ir.KindInt32, 3)
	call, err := b.Call(calleeFn, arg)
	require.NoError(t, err)
	b.Ret(call)

	mgr := pass.NewManager()
	mgr.Add(inliner.New())
	require.NoError(t, mgr.Sequential(m))

	require.NotNil(t, call.Parent, "a callee with child regions must never be inlined")
}
