package pass_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
)

// countResult is a trivial pass.Result: it caches how many regions the
// module had when the analysis ran, and always claims stability.
type countResult struct{ regions int }

func (r *countResult) Name() string                     { return "count" }
func (r *countResult) Update(modified []*ir.Region) bool { return true }

// countAnalysis is a minimal pass.Analysis used to exercise the
// Manager's registration, dependency-validation and caching contract
// (spec §4.1) without pulling in a real transform.
type countAnalysis struct{ requires []string }

func (a *countAnalysis) Name() string       { return "count_pass" }
func (a *countAnalysis) Requires() []string { return a.requires }
func (a *countAnalysis) Run(m *ir.Module, mgr *pass.Manager) (pass.Result, error) {
	return &countResult{regions: len(m.Regions())}, nil
}

// touchTransform is a minimal pass.Transform that reports every region
// it was handed as modified and declares a set of analyses it
// invalidates (spec §4.1, "Invalidation").
type touchTransform struct {
	name        string
	requires    []string
	invalidates []string
	touch       []*ir.Region
}

func (t *touchTransform) Name() string         { return t.name }
func (t *touchTransform) Requires() []string   { return t.requires }
func (t *touchTransform) Invalidates() []string { return t.invalidates }
func (t *touchTransform) Run(m *ir.Module, mgr *pass.Manager) ([]*ir.Region, error) {
	return t.touch, nil
}

func TestSequentialRunsAnalysesAndCachesResult(t *testing.T) {
	m := ir.NewModule("test")
	m.NewChildRegion("a", m.Root)

	mgr := pass.NewManager()
	mgr.Add(&countAnalysis{})
	require.NoError(t, mgr.Sequential(m))

	res, err := mgr.Get("count")
	require.NoError(t, err)
	cr, ok := res.(*countResult)
	require.True(t, ok)
	require.Equal(t, len(m.Regions()), cr.regions)
}

func TestGetMissingAnalysisReturnsErrMissingAnalysis(t *testing.T) {
	mgr := pass.NewManager()
	_, err := mgr.Get("never_ran")
	require.ErrorIs(t, err, pass.ErrMissingAnalysis)
}

func TestSequentialReportsMissingDependency(t *testing.T) {
	mgr := pass.NewManager()
	mgr.Add(&countAnalysis{requires: []string{"nonexistent"}})
	err := mgr.Sequential(ir.NewModule("test"))
	require.ErrorIs(t, err, pass.ErrMissingDependency)
}

// TestTransformInvalidationDropsCachedResult covers spec §4.1's
// invalidation rule: a Transform that invalidates "drop_on_update",
// whose cached result's Update callback returns false, must cause a
// subsequent Get to see that analysis as no longer computed, while
// "count" (not invalidated) stays cached.
func TestTransformInvalidationDropsCachedResult(t *testing.T) {
	m := ir.NewModule("test")

	mgr := pass.NewManager()
	mgr.Add(&countAnalysis{})
	mgr.Add(&dropOnUpdateAnalysis{})
	mgr.Add(&touchTransform{name: "touch", invalidates: []string{"drop_on_update"}})
	require.NoError(t, mgr.Sequential(m))

	_, err := mgr.Get("drop_on_update")
	require.ErrorIs(t, err, pass.ErrMissingAnalysis)

	// "count" was never named in Invalidates(), so it must still be cached.
	_, err = mgr.Get("count")
	require.NoError(t, err)
}

// dropOnUpdateAnalysis always claims instability, the counterpart
// fixture to countResult's "always stable" behaviour.
type dropOnUpdateAnalysis struct{}

func (dropOnUpdateAnalysis) Name() string       { return "drop_on_update" }
func (dropOnUpdateAnalysis) Requires() []string { return nil }
func (dropOnUpdateAnalysis) Run(m *ir.Module, mgr *pass.Manager) (pass.Result, error) {
	return dropOnUpdateResult{}, nil
}

type dropOnUpdateResult struct{}

func (dropOnUpdateResult) Name() string                     { return "drop_on_update" }
func (dropOnUpdateResult) Update(modified []*ir.Region) bool { return false }

// TestTaskGraphRunsIndependentBatchThenDependent covers spec §4.1
// mode 2: two analyses with no Requires() of each other land in the
// same batch, and a third pass depending on both only runs after.
func TestTaskGraphRunsIndependentBatchThenDependent(t *testing.T) {
	m := ir.NewModule("test")

	mgr := pass.NewManager()
	mgr.Add(&countAnalysis{})
	mgr.Add(&dropOnUpdateAnalysis{})
	mgr.Add(&touchTransform{name: "joins_both", requires: []string{"count_pass", "drop_on_update"}})

	g := pass.NewTaskGraph(mgr)
	require.NoError(t, g.Run(m))

	_, err := mgr.Get("count")
	require.NoError(t, err)
	_, err = mgr.Get("drop_on_update")
	require.NoError(t, err)
}

// TestTaskGraphDetectsCycle covers spec §4.1's "dependency graph
// contains a cycle" error path.
func TestTaskGraphDetectsCycle(t *testing.T) {
	mgr := pass.NewManager()
	mgr.Add(&countAnalysis{requires: []string{"b"}})
	// A second pass named "b" that requires the first, closing the cycle.
	mgr.Add(&cyclicPass{name: "b", requires: []string{"count_pass"}})

	g := pass.NewTaskGraph(mgr)
	err := g.Run(ir.NewModule("test"))
	require.ErrorIs(t, err, pass.ErrCycle)
}

type cyclicPass struct {
	name     string
	requires []string
}

func (c *cyclicPass) Name() string       { return c.name }
func (c *cyclicPass) Requires() []string { return c.requires }
func (c *cyclicPass) Run(m *ir.Module, mgr *pass.Manager) (pass.Result, error) {
	return &countResult{}, nil
}
