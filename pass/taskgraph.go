package pass

import (
	"context"

	"github.com/arclang/arc/ir"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// TaskGraph is the batched-execution construction mode of spec §4.1,
// mode 2: a dependency graph of pass names, validated and topologically
// layered into execution batches; passes in one batch are mutually
// independent and may run concurrently.
type TaskGraph struct {
	mgr   *Manager
	edges map[string][]string // pass name -> explicit extra dependencies
	nodes []string            // passes included in the graph, insertion order
}

// NewTaskGraph builds a graph over every pass currently registered
// with mgr, using each pass's own Requires() as its graph edges.
// AddEdge may be used to declare additional ordering the Requires()
// set does not already encode (e.g. ordering two Transforms with no
// direct data dependency).
func NewTaskGraph(mgr *Manager) *TaskGraph {
	g := &TaskGraph{mgr: mgr, edges: make(map[string][]string)}
	for _, name := range mgr.order {
		g.nodes = append(g.nodes, name)
		g.edges[name] = append([]string(nil), mgr.passes[name].Requires()...)
	}
	return g
}

// AddEdge declares that `after` must run in a batch strictly later
// than `before`.
func (g *TaskGraph) AddEdge(after, before string) {
	g.edges[after] = append(g.edges[after], before)
}

// layers topologically sorts the graph into batches via Kahn's
// algorithm: each batch holds every node whose remaining in-degree is
// zero, computed in lockstep so batch N's members have no edge to any
// node still outside batch <= N.
func (g *TaskGraph) layers() ([][]string, error) {
	indeg := make(map[string]int, len(g.nodes))
	present := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		present[n] = true
	}
	for _, n := range g.nodes {
		for _, dep := range g.edges[n] {
			if present[dep] {
				indeg[n]++
			}
		}
	}

	remaining := len(g.nodes)
	var batches [][]string
	done := make(map[string]bool, len(g.nodes))
	for remaining > 0 {
		var batch []string
		for _, n := range g.nodes {
			if done[n] {
				continue
			}
			if indeg[n] == 0 {
				batch = append(batch, n)
			}
		}
		if len(batch) == 0 {
			return nil, ErrCycle
		}
		for _, n := range batch {
			done[n] = true
			remaining--
		}
		// Recompute in-degrees for the next round against what remains.
		for _, n := range g.nodes {
			if done[n] {
				continue
			}
			indeg[n] = 0
			for _, dep := range g.edges[n] {
				if present[dep] && !done[dep] {
					indeg[n]++
				}
			}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// Run validates and executes the graph: batches run one after another
// (a join-then-fork barrier between them, per spec §5); within a
// batch, passes are dispatched onto an errgroup.Group so an error
// (or panic recovered into an error) from any worker is captured and
// the first one is returned once every worker in the batch has
// joined (spec §5, "Cancellation and timeouts").
func (g *TaskGraph) Run(mod *ir.Module) error {
	for _, name := range g.nodes {
		if err := g.mgr.checkDeps(g.mgr.passes[name]); err != nil {
			return err
		}
	}
	batches, err := g.layers()
	if err != nil {
		return err
	}
	for _, batch := range batches {
		if err := g.runBatch(mod, batch); err != nil {
			return err
		}
	}
	return nil
}

func (g *TaskGraph) runBatch(mod *ir.Module, names []string) error {
	if len(names) == 1 {
		return g.mgr.runOne(mod, g.mgr.passes[names[0]])
	}
	eg, _ := errgroup.WithContext(context.Background())
	if g.mgr.workers > 0 {
		eg.SetLimit(g.mgr.workers)
	}
	for _, name := range names {
		name := name
		eg.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = xerrors.Errorf("pass %q panicked: %v", name, r)
				}
			}()
			return g.mgr.runOne(mod, g.mgr.passes[name])
		})
	}
	return eg.Wait()
}
