// Package inliner implements function inlining (spec §4.10):
// inlinability and cost/benefit tests over a direct call site, body
// cloning, argument substitution, and splicing the callee's
// computation directly into the caller's region in place of the call.
//
// The clone-then-rewire shape is grounded on `ssa/lift.go`'s own
// referrer-rewiring idiom (the teacher never inlines, but every
// substitution here funnels through `Node.ReplaceAllUsesWith`, the
// same primitive mem2reg/CSE/SROA already use to redirect a value's
// users onto its replacement); the call-graph-aware cost/benefit
// bonuses and the escaping-parameter veto are the spec's own
// contribution, since the teacher has no inlining heuristic at all.
package inliner

import (
	"github.com/arclang/arc/callgraph"
	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
)

// Config holds the tunable thresholds spec §4.10 names.
type Config struct {
	MaxSize    int
	MinBenefit float64
}

// DefaultConfig matches spec §4.10's stated defaults.
func DefaultConfig() Config { return Config{MaxSize: 30, MinBenefit: 2.0} }

// Transform implements pass.Transform for inlining (spec §4.10).
type Transform struct {
	cfg Config
}

// New constructs the Inliner transform with the default thresholds.
func New() *Transform { return &Transform{cfg: DefaultConfig()} }

// NewWithConfig constructs the Inliner transform with custom
// max_size/min_benefit thresholds.
func NewWithConfig(cfg Config) *Transform { return &Transform{cfg: cfg} }

func (t *Transform) Name() string { return "inliner" }

// Requires is empty: a call graph sharpens the recursion guard, the
// escaping-parameter veto and three of the benefit terms, but spec
// §4.10 only requires it "if available" — Run degrades to the
// conservative name-walk recursion check when no callgraph analysis
// is registered.
func (t *Transform) Requires() []string { return nil }

// Invalidates both tbaa (cloning duplicates ALLOC nodes, minting new
// allocation sites the cached analysis never traced) and callgraph
// (call sites move and disappear).
func (t *Transform) Invalidates() []string { return []string{"tbaa", "callgraph"} }

// Run implements pass.Transform.
func (t *Transform) Run(m *ir.Module, mgr *pass.Manager) ([]*ir.Region, error) {
	var cg *callgraph.Analysis
	if res, err := mgr.Get("callgraph"); err == nil {
		cg, _ = res.(*callgraph.Analysis)
	}

	modifiedSet := make(map[*ir.Region]bool)
	var modified []*ir.Region
	markModified := func(r *ir.Region) {
		if r != nil && !modifiedSet[r] {
			modifiedSet[r] = true
			modified = append(modified, r)
		}
	}

	var queue []*ir.Node
	ir.Walk(m.Root, func(r *ir.Region) {
		for _, n := range r.Nodes {
			if n.Op == ir.OpCall || n.Op == ir.OpInvoke {
				queue = append(queue, n)
			}
		}
	})

	for len(queue) > 0 {
		site := queue[0]
		queue = queue[1:]
		if site.Parent == nil {
			continue // already removed by an earlier inline (e.g. a duplicate queue entry)
		}

		callee := directCallee(site)
		if callee == nil {
			continue
		}
		body := bodyRegion(m, callee)
		if !inlinable(callee, body, site, cg) {
			continue
		}
		if !meetsCostBenefit(callee, body, site, cg, t.cfg) {
			continue
		}

		caller := site.Parent
		inserted := inlineCallSite(callee, body, site)
		markModified(caller)

		for _, c := range inserted {
			if c.Op == ir.OpCall || c.Op == ir.OpInvoke {
				queue = append(queue, c)
			}
		}
	}

	return modified, nil
}

func bodyRegion(m *ir.Module, fn *ir.Node) *ir.Region {
	var found *ir.Region
	ir.Walk(m.Root, func(r *ir.Region) {
		if r.Name == fn.StrID {
			found = r
		}
	})
	return found
}

// directCallee returns site's statically known FUNCTION target, or nil
// for an indirect call (inlining never guesses a dynamic callee).
func directCallee(site *ir.Node) *ir.Node {
	if len(site.Inputs) == 0 {
		return nil
	}
	callee := site.Inputs[0]
	if callee.Op != ir.OpFunction {
		return nil
	}
	return callee
}

// argsOf returns a call site's argument operands, honoring spec §9's
// open-question decision that INVOKE's three leading operands
// (callee, normal entry, exception entry) are never arguments.
func argsOf(site *ir.Node) []*ir.Node {
	start := 1
	if site.Op == ir.OpInvoke {
		start = 3
	}
	if start >= len(site.Inputs) {
		return nil
	}
	return site.Inputs[start:]
}

// inlinable implements spec §4.10's "Inlinability" paragraph.
func inlinable(callee *ir.Node, body *ir.Region, site *ir.Node, cg *callgraph.Analysis) bool {
	if body == nil || len(body.Children) != 0 {
		return false
	}
	retCount := 0
	for _, n := range body.Nodes {
		if n.Op == ir.OpRet {
			retCount++
		}
	}
	if retCount != 1 {
		return false
	}

	if cg != nil {
		if cg.Recursive(callee) {
			return false
		}
		for i := range callee.Inputs {
			if cg.Escapes(callee, i) {
				return false
			}
		}
	} else if isSelfRecursiveByName(callee, site) {
		return false
	}

	return true
}

// isSelfRecursiveByName is the name-walk fallback spec §4.10 calls for
// when no call-graph result is available: walk the call site's region
// ancestry looking for a region whose name matches the callee's own
// body-region name (the convention `ir.Builder` uses to name a
// function's body region after the function itself), meaning the call
// site already sits somewhere inside the callee it is calling.
func isSelfRecursiveByName(callee *ir.Node, site *ir.Node) bool {
	for r := site.Parent; r != nil; r = r.Parent {
		if r.Name == callee.StrID {
			return true
		}
	}
	return false
}

// cost implements spec §4.10's "count of non-structural body nodes":
// ENTRY/EXIT/PARAM are scaffolding every function pays regardless of
// size, and the single RET is dropped rather than duplicated by the
// transformation itself, so none of the four count toward cost.
func cost(body *ir.Region) int {
	n := 0
	for _, node := range body.Nodes {
		switch node.Op {
		case ir.OpEntry, ir.OpExit, ir.OpParam, ir.OpRet:
			continue
		}
		n++
	}
	return n
}

func hasLiteralArg(site *ir.Node) bool {
	for _, a := range argsOf(site) {
		if a.Op == ir.OpLiteral {
			return true
		}
	}
	return false
}

// benefit implements spec §4.10's benefit formula.
func benefit(callee *ir.Node, c int, site *ir.Node, cg *callgraph.Analysis) float64 {
	b := 2.0
	if hasLiteralArg(site) {
		b += 5.0
	}
	if c <= 5 {
		b += 3.0
	}
	if c > 15 {
		b -= 2.0
	}
	if cg != nil {
		callers := len(cg.Callers(callee))
		if callers == 1 {
			b += 3.0
		}
		if callers > 10 {
			b -= 2.0
		}
		if cg.Pure(callee) {
			b += 2.0
		}
	}
	return b
}

func meetsCostBenefit(callee *ir.Node, body *ir.Region, site *ir.Node, cg *callgraph.Analysis, cfg Config) bool {
	c := cost(body)
	if c > cfg.MaxSize {
		return false
	}
	return benefit(callee, c, site, cg) >= cfg.MinBenefit
}

// inlineCallSite performs spec §4.10's five-step transformation and
// returns the clones it spliced into the caller, so Run can scan them
// for newly-exposed call sites.
func inlineCallSite(callee *ir.Node, body *ir.Region, site *ir.Node) []*ir.Node {
	subst := make(map[*ir.Node]*ir.Node) // step 3: param -> argument
	args := argsOf(site)
	for i, p := range callee.Inputs {
		if i < len(args) {
			subst[p] = args[i]
		}
	}

	clones := make(map[*ir.Node]*ir.Node) // step 1: original -> clone
	var order []*ir.Node
	var retOrig *ir.Node
	for _, n := range body.Nodes {
		switch n.Op {
		case ir.OpEntry, ir.OpExit, ir.OpParam:
			continue
		case ir.OpRet:
			retOrig = n
		default:
			c := ir.NewNode(n.Op, n.Type, n.Value)
			c.Traits = n.Traits
			clones[n] = c
			order = append(order, n)
		}
	}

	// Step 2: rebuild every clone's input list from the map; an input
	// with no clone and no substitution is external to the callee body
	// (a global, another function, or a value captured by closure-like
	// convention) and is wired through unchanged.
	resolve := func(orig *ir.Node) *ir.Node {
		if repl, ok := subst[orig]; ok {
			return repl
		}
		if c, ok := clones[orig]; ok {
			return c
		}
		return orig
	}
	for _, orig := range order {
		clone := clones[orig]
		for _, in := range orig.Inputs {
			clone.AddInput(resolve(in))
		}
	}

	// Step 4: the single RET's input becomes the call site's
	// replacement value.
	var retValue *ir.Node
	if retOrig != nil && len(retOrig.Inputs) > 0 {
		retValue = resolve(retOrig.Inputs[0])
	}

	// Step 5: splice every clone into the caller immediately before the
	// call site, in program order (sequential InsertBefore calls against
	// the same target land each new clone right before it, so processing
	// `order` front-to-back reproduces the callee's own node order).
	caller := site.Parent
	for _, orig := range order {
		caller.InsertBefore(site, clones[orig])
	}

	if retValue != nil {
		site.ReplaceAllUsesWith(retValue)
	}
	caller.RemoveNode(site)

	inserted := make([]*ir.Node, len(order))
	for i, orig := range order {
		inserted[i] = clones[orig]
	}
	return inserted
}
