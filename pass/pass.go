// Package pass implements Arc's pass framework (spec §4.1, §5, §7.2):
// Analyses and Transforms registered against a Manager, run either
// sequentially or as a dependency-ordered, batch-parallel TaskGraph,
// with an analysis-result cache that Transforms invalidate explicitly.
//
// The batching/joining model is the teacher's closest external
// analogue for concurrent phase execution outside pure SSA
// construction; golang.org/x/sync/errgroup supplies exactly the
// "dispatch workers, join, propagate first error" contract the spec
// describes, so batches are implemented on top of it rather than
// hand-rolled WaitGroup/channel plumbing.
package pass

import (
	"github.com/arclang/arc/ir"
)

// Result is the opaque value an Analysis caches (spec §4.1, §6).
// name() is the cache key; Update is the incremental-invalidation hook
// a Transform's declared invalidation triggers.
type Result interface {
	Name() string
	// Update is called with the set of regions a Transform modified.
	// Returning true means the cached result is still valid structurally
	// (the analysis "claims stability"); false means the manager must
	// drop the cache entry so the next Get recomputes it.
	Update(modified []*ir.Region) bool
}

// Pass is the common supertype of Analysis and Transform (spec §4.1).
// A Pass declares its name, the passes it requires to already be
// registered/computed, and (for Transforms) which analyses it
// invalidates.
type Pass interface {
	Name() string
	Requires() []string
}

// Analysis produces a cached Result by inspecting (never mutating) the
// module.
type Analysis interface {
	Pass
	Run(m *ir.Module, mgr *Manager) (Result, error)
}

// Transform mutates the IR and reports which regions it touched so the
// Manager can invalidate dependent analyses.
type Transform interface {
	Pass
	Invalidates() []string
	Run(m *ir.Module, mgr *Manager) ([]*ir.Region, error)
}
