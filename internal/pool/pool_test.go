package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/internal/pool"
)

// TestResetDropsTrackedReferencesAndAdvancesGeneration covers spec
// §5's local-pool contract: Reset drops every item tracked since the
// last Reset and advances the generation counter.
func TestResetDropsTrackedReferencesAndAdvancesGeneration(t *testing.T) {
	p := pool.New()
	require.Equal(t, 0, p.Generation())

	pool.Put(p, "a")
	pool.Put(p, "b")
	require.Equal(t, 2, p.Len())

	p.Reset()
	require.Equal(t, 0, p.Len())
	require.Equal(t, 1, p.Generation())

	pool.Put(p, "c")
	require.Equal(t, 1, p.Len())
}

// TestPutReturnsValueUnchanged covers the wrap-at-construction call
// pattern pool.Put is designed for.
func TestPutReturnsValueUnchanged(t *testing.T) {
	p := pool.New()
	got := pool.Put(p, 42)
	require.Equal(t, 42, got)
}
