package dse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
	"github.com/arclang/arc/transform/dse"
)

// TestDSERemovesOverwrittenStore builds alloc; store 1 -> x; store 2 ->
// x; return load x: the first store is dead (spec §4.8) since the
// second must-aliases it and nothing observes the first value in
// between.
func TestDSERemovesOverwrittenStore(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	b.Function("dead_store", ir.KindInt32, ir.TraitNone)
	body := m.NewChildRegion("dead_store", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)

	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	one := b.Int(ir.KindInt32, 1)
	firstStore, err := b.Store(one, alloc)
	require.NoError(t, err)
	two := b.Int(ir.KindInt32, 2)
	_, err = b.Store(two, alloc)
	require.NoError(t, err)
	load, err := b.Load(alloc, ir.KindInt32)
	require.NoError(t, err)
	b.Ret(load)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(dse.New())
	require.NoError(t, mgr.Sequential(m))

	require.Nil(t, firstStore.Parent, "overwritten store should be removed")

	storeCount := 0
	for _, n := range body.Nodes {
		if n.Op == ir.OpStore {
			storeCount++
		}
	}
	require.Equal(t, 1, storeCount)
}

// TestDSEKeepsStoreObservedByLoad builds alloc; store 1 -> x; load x;
// store 2 -> x; return load x: the first store is live because the
// intervening load observes it.
func TestDSEKeepsStoreObservedByLoad(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	b.Function("live_store", ir.KindInt32, ir.TraitNone)
	body := m.NewChildRegion("live_store", m.Root)
	b.SetInsertPoint(body)

	_, err := b.Entry()
	require.NoError(t, err)

	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	one := b.Int(ir.KindInt32, 1)
	firstStore, err := b.Store(one, alloc)
	require.NoError(t, err)
	_, err = b.Load(alloc, ir.KindInt32)
	require.NoError(t, err)
	two := b.Int(ir.KindInt32, 2)
	_, err = b.Store(two, alloc)
	require.NoError(t, err)
	load2, err := b.Load(alloc, ir.KindInt32)
	require.NoError(t, err)
	b.Ret(load2)

	mgr := pass.NewManager()
	mgr.Add(tbaa.New())
	mgr.Add(dse.New())
	require.NoError(t, mgr.Sequential(m))

	require.NotNil(t, firstStore.Parent, "store observed by an intervening load must survive")
}
