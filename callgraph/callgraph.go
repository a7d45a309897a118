// Package callgraph implements Arc's call-graph analysis (spec §4.3):
// direct/indirect edges, SCC membership, per-parameter escape and
// purity, built in a single pass over the module.
//
// The indirect-call chase (resolveIndirect) is grounded on the
// teacher's pointer package constraint-generation walk
// (pointer/gen.go's genInstr, which descends through loads, stores,
// phis and casts to resolve a dynamic callee) adapted from a
// points-to constraint system to a direct recursive def-use chase,
// since Arc's spec defines indirect resolution as bounded recursive
// pattern matching rather than a fixed-point solve.
package callgraph

import (
	"sort"

	"github.com/arclang/arc/ir"
)

// CallEdge is one caller -> callee relationship (spec §4.3).
type CallEdge struct {
	Caller    *ir.Node // FUNCTION node
	CallSite  *ir.Node // CALL or INVOKE node
	Callee    *ir.Node // FUNCTION node, or nil if unresolved
	Indirect  bool
	Confidence float64
}

// Analysis is the cached call-graph result.
type Analysis struct {
	edges []CallEdge

	callSitesOf map[*ir.Node][]*ir.Node // function -> its call sites
	containing  map[*ir.Node]*ir.Node   // call site -> containing function
	callees     map[*ir.Node]map[*ir.Node]bool
	callers     map[*ir.Node]map[*ir.Node]bool

	sccOf map[*ir.Node]int
	sccs  [][]*ir.Node

	escapes map[*ir.Node]map[int]bool // function -> param index -> escapes
	pure    map[*ir.Node]bool
	extern  map[*ir.Node]bool
	export  map[*ir.Node]bool

	funcByRegion map[string]*ir.Node
	bodyRegions  map[*ir.Node]*ir.Region
}

func (a *Analysis) Name() string { return "callgraph" }

// Update is pessimistic: any IR change near a call site can add or
// remove edges, so the manager should recompute rather than trust a
// stale call graph (spec §4.1: "Analyses may choose to be
// pessimistic").
func (a *Analysis) Update(modified []*ir.Region) bool { return false }

// Build performs the single-pass construction described in spec §4.3.
func Build(m *ir.Module) *Analysis {
	a := &Analysis{
		callSitesOf:  make(map[*ir.Node][]*ir.Node),
		containing:   make(map[*ir.Node]*ir.Node),
		callees:      make(map[*ir.Node]map[*ir.Node]bool),
		callers:      make(map[*ir.Node]map[*ir.Node]bool),
		sccOf:        make(map[*ir.Node]int),
		escapes:      make(map[*ir.Node]map[int]bool),
		pure:         make(map[*ir.Node]bool),
		extern:       make(map[*ir.Node]bool),
		export:       make(map[*ir.Node]bool),
		funcByRegion: make(map[string]*ir.Node),
		bodyRegions:  make(map[*ir.Node]*ir.Region),
	}

	for _, fn := range m.Functions {
		a.callees[fn] = make(map[*ir.Node]bool)
		a.callers[fn] = make(map[*ir.Node]bool)
		a.escapes[fn] = make(map[int]bool)
		a.funcByRegion[fn.StrID] = fn
		a.bodyRegions[fn] = a.bodyRegion(m, fn)
		if fn.Traits.Has(ir.TraitExtern) {
			a.extern[fn] = true
		}
		if fn.Traits.Has(ir.TraitExport) {
			a.export[fn] = true
		}
	}

	// 1 & 2: classify functions, walk bodies for call sites.
	for _, fn := range m.Functions {
		region := a.bodyRegions[fn]
		if region == nil {
			continue
		}
		ir.Walk(region, func(r *ir.Region) {
			for _, n := range r.Nodes {
				if n.Op != ir.OpCall && n.Op != ir.OpInvoke {
					continue
				}
				a.callSitesOf[fn] = append(a.callSitesOf[fn], n)
				a.containing[n] = fn
				a.genCallEdges(fn, n)
			}
		})
	}

	a.computeSCC()
	a.computeEscapes()
	a.computePurity()
	return a
}

func (a *Analysis) bodyRegion(m *ir.Module, fn *ir.Node) *ir.Region {
	var found *ir.Region
	ir.Walk(m.Root, func(r *ir.Region) {
		if r.Name == fn.StrID {
			found = r
		}
	})
	return found
}

func (a *Analysis) addEdge(e CallEdge) {
	a.edges = append(a.edges, e)
	if e.Callee != nil {
		a.callees[e.Caller][e.Callee] = true
		if a.callers[e.Callee] == nil {
			a.callers[e.Callee] = make(map[*ir.Node]bool)
		}
		a.callers[e.Callee][e.Caller] = true
	}
}

// genCallEdges resolves the callee of a single call site (spec §4.3
// step 2-3).
func (a *Analysis) genCallEdges(caller *ir.Node, site *ir.Node) {
	calleeOperand := site.Inputs[0]
	if calleeOperand.Op == ir.OpFunction {
		a.addEdge(CallEdge{Caller: caller, CallSite: site, Callee: calleeOperand, Indirect: false, Confidence: 1.0})
		return
	}
	targets := a.resolveIndirect(calleeOperand, make(map[*ir.Node]bool))
	if len(targets) == 0 {
		a.addEdge(CallEdge{Caller: caller, CallSite: site, Callee: nil, Indirect: true, Confidence: 0})
		return
	}
	for _, t := range targets {
		a.addEdge(CallEdge{Caller: caller, CallSite: site, Callee: t, Indirect: true, Confidence: 0.8})
	}
}

// resolveIndirect chases a function-pointer value's definition with a
// cycle guard, per spec §4.3 step 3.
func (a *Analysis) resolveIndirect(ptr *ir.Node, seen map[*ir.Node]bool) []*ir.Node {
	if ptr == nil || seen[ptr] {
		return nil
	}
	seen[ptr] = true

	if pd, err := ptr.Value.Pointer(); err == nil {
		restrictConst := pd.Qualifiers.Has(ir.QualRestrict) && pd.Qualifiers.Has(ir.QualConst)
		if restrictConst && pd.Pointee != nil && pd.Pointee.Op == ir.OpFunction {
			return []*ir.Node{pd.Pointee}
		}
		if pd.Qualifiers.Has(ir.QualRestrict) {
			return a.followStoresInto(ptr, seen)
		}
	}

	switch ptr.Op {
	case ir.OpFunction:
		return []*ir.Node{ptr}
	case ir.OpAddrOf:
		if len(ptr.Inputs) > 0 && ptr.Inputs[0].Op == ir.OpFunction {
			return []*ir.Node{ptr.Inputs[0]}
		}
	case ir.OpLoad, ir.OpPtrLoad:
		return a.followStoresInto(ptr.Inputs[0], seen)
	case ir.OpParam:
		return a.followCallerArgs(ptr, seen)
	case ir.OpFrom:
		var out []*ir.Node
		for _, in := range ptr.Inputs {
			out = append(out, a.resolveIndirect(in, seen)...)
		}
		return dedupeNodes(out)
	case ir.OpCast:
		if len(ptr.Inputs) > 0 {
			return a.resolveIndirect(ptr.Inputs[0], seen)
		}
	}
	return nil
}

// followStoresInto descends into every STORE/PTR_STORE writing to the
// same address location and chases its stored value.
func (a *Analysis) followStoresInto(addr *ir.Node, seen map[*ir.Node]bool) []*ir.Node {
	var out []*ir.Node
	for _, u := range addr.Users() {
		if (u.Op == ir.OpStore || u.Op == ir.OpPtrStore) && len(u.Inputs) > 1 && u.Inputs[1] == addr {
			out = append(out, a.resolveIndirect(u.Inputs[0], seen)...)
		}
	}
	return dedupeNodes(out)
}

// followCallerArgs descends into every caller's matching argument for
// a PARAM node.
func (a *Analysis) followCallerArgs(param *ir.Node, seen map[*ir.Node]bool) []*ir.Node {
	fn := param.Parent
	if fn == nil {
		return nil
	}
	owner, ok := a.funcByRegion[fn.Name]
	if !ok {
		return nil
	}
	idx := -1
	for i, p := range owner.Inputs {
		if p == param {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	var out []*ir.Node
	for _, e := range a.edges {
		if e.Callee == owner {
			argPos := idx + 1
			if e.CallSite.Op == ir.OpInvoke {
				argPos = idx + 3
			}
			if argPos < len(e.CallSite.Inputs) {
				out = append(out, a.resolveIndirect(e.CallSite.Inputs[argPos], seen)...)
			}
		}
	}
	return dedupeNodes(out)
}

func dedupeNodes(nodes []*ir.Node) []*ir.Node {
	seen := make(map[*ir.Node]bool)
	var out []*ir.Node
	for _, n := range nodes {
		if n != nil && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// --- Queries (spec §4.3, "Query contracts") ---

func (a *Analysis) Callee(site *ir.Node) *ir.Node {
	for _, e := range a.edges {
		if e.CallSite == site && e.Callee != nil {
			return e.Callee
		}
	}
	return nil
}

func (a *Analysis) Targets(site *ir.Node) []*ir.Node {
	var out []*ir.Node
	for _, e := range a.edges {
		if e.CallSite == site && e.Callee != nil {
			out = append(out, e.Callee)
		}
	}
	return out
}

// Calls reports BFS reachability from a to b over the callee graph.
func (a *Analysis) Calls(from, to *ir.Node) bool {
	if from == to {
		return true
	}
	visited := map[*ir.Node]bool{from: true}
	queue := []*ir.Node{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for callee := range a.callees[cur] {
			if callee == to {
				return true
			}
			if !visited[callee] {
				visited[callee] = true
				queue = append(queue, callee)
			}
		}
	}
	return false
}

func (a *Analysis) Callees(fn *ir.Node) []*ir.Node {
	var out []*ir.Node
	for c := range a.callees[fn] {
		out = append(out, c)
	}
	sortNodesByName(out)
	return out
}

func (a *Analysis) Callers(fn *ir.Node) []*ir.Node {
	var out []*ir.Node
	for c := range a.callers[fn] {
		out = append(out, c)
	}
	sortNodesByName(out)
	return out
}

// Recursive reports whether fn's SCC has size > 1 or it calls itself
// directly (spec §4.3 step 4).
func (a *Analysis) Recursive(fn *ir.Node) bool {
	if a.callees[fn][fn] {
		return true
	}
	id, ok := a.sccOf[fn]
	if !ok {
		return false
	}
	return len(a.sccs[id]) > 1
}

// Escapes reports whether parameter i of fn escapes (spec §4.3 step
// 5); EXTERN functions are conservatively true.
func (a *Analysis) Escapes(fn *ir.Node, i int) bool {
	if a.extern[fn] {
		return true
	}
	return a.escapes[fn][i]
}

func (a *Analysis) Pure(fn *ir.Node) bool { return a.pure[fn] }

func (a *Analysis) CallSites(fn *ir.Node) []*ir.Node { return a.callSitesOf[fn] }

func (a *Analysis) ContainingFn(site *ir.Node) *ir.Node { return a.containing[site] }

func (a *Analysis) Edges() []CallEdge { return a.edges }

func sortNodesByName(nodes []*ir.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name() < nodes[j].Name() })
}
