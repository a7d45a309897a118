package tbaa_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/tbaa"
)

// buildTwoAllocs builds fn() i32 { a := alloc i32; b := alloc i32;
// la := load a; lb := load b; return la }, neither allocation ever
// escaping.
func buildTwoAllocs(t *testing.T) (*ir.Module, *ir.Node, *ir.Node) {
	t.Helper()
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("two_allocs", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("two_allocs", ir.KindInt32, ir.TraitNone)

	allocA := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	allocB := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	loadA, err := b.Load(allocA, ir.KindInt32)
	require.NoError(t, err)
	loadB, err := b.Load(allocB, ir.KindInt32)
	require.NoError(t, err)
	b.Ret(loadA)
	return m, loadA, loadB
}

// TestAliasDistinctNonEscapedAllocsIsNoAlias covers spec §4.2's
// "distinct, non-escaped ALLOC sites never alias" rule.
func TestAliasDistinctNonEscapedAllocsIsNoAlias(t *testing.T) {
	m, loadA, loadB := buildTwoAllocs(t)
	a := tbaa.Build(m)
	require.Equal(t, tbaa.NoAlias, a.Alias(loadA, loadB))
}

// TestAliasSameSiteSameOffsetIsMustAlias covers the "identical
// (site, offset, size, type) is always the same storage" rule.
func TestAliasSameSiteSameOffsetIsMustAlias(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("reload", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("reload", ir.KindInt32, ir.TraitNone)

	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	load1, err := b.Load(alloc, ir.KindInt32)
	require.NoError(t, err)
	load2, err := b.Load(alloc, ir.KindInt32)
	require.NoError(t, err)
	b.Ret(load1)

	a := tbaa.Build(m)
	require.Equal(t, tbaa.MustAlias, a.Alias(load1, load2))
}

// TestEscapedReturnedAllocation covers spec §4.2's escape detection:
// an allocation whose pointer value is itself returned has escaped.
func TestEscapedReturnedAllocation(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("escapes", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)
	b.Function("escapes", ir.KindPointer, ir.TraitNone)

	alloc := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	b.Ret(alloc)

	a := tbaa.Build(m)
	require.True(t, a.Escaped(alloc))
}

// TestAliasRestrictQualifiedNeverAliasesDistinctSite covers spec
// §4.2's restrict-qualifier fast path: a restrict-qualified pointer
// never aliases a load through a distinct site, regardless of escape
// state.
func TestAliasRestrictQualifiedNeverAliasesDistinctSite(t *testing.T) {
	m := ir.NewModule("test")
	b := ir.NewBuilder(m)
	body := m.NewChildRegion("restrict_fn", m.Root)
	b.SetInsertPoint(body)
	_, err := b.Entry()
	require.NoError(t, err)

	restrictParam := ir.NewNode(ir.OpParam, ir.KindPointer,
		ir.NewPointer(ir.PointerDesc{Qualifiers: ir.QualRestrict}))
	restrictParam.StrID = m.Interner.Intern("rp")
	require.NoError(t, body.AddNode(restrictParam))
	b.Function("restrict_fn", ir.KindInt32, ir.TraitNone, restrictParam)

	other := b.Alloc(ir.KindInt32, ir.Default(), ir.TraitNone)
	loadRestrict, err := b.Load(restrictParam, ir.KindInt32)
	require.NoError(t, err)
	loadOther, err := b.Load(other, ir.KindInt32)
	require.NoError(t, err)
	b.Ret(loadRestrict)

	a := tbaa.Build(m)
	require.Equal(t, tbaa.NoAlias, a.Alias(loadRestrict, loadOther))
}
