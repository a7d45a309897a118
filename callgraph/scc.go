package callgraph

import "github.com/arclang/arc/ir"

// tarjanState holds the working state of the standard
// strongly-connected-components algorithm (Tarjan's), applied over the
// callee map per spec §4.3 step 4.
type tarjanState struct {
	index   map[*ir.Node]int
	low     map[*ir.Node]int
	onStack map[*ir.Node]bool
	stack   []*ir.Node
	counter int
	sccs    [][]*ir.Node
}

func (a *Analysis) computeSCC() {
	st := &tarjanState{
		index:   make(map[*ir.Node]int),
		low:     make(map[*ir.Node]int),
		onStack: make(map[*ir.Node]bool),
	}
	for fn := range a.callees {
		if _, visited := st.index[fn]; !visited {
			st.strongconnect(a, fn)
		}
	}
	a.sccs = st.sccs
	for i, scc := range a.sccs {
		for _, fn := range scc {
			a.sccOf[fn] = i
		}
	}
}

func (st *tarjanState) strongconnect(a *Analysis, v *ir.Node) {
	st.index[v] = st.counter
	st.low[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for w := range a.callees[v] {
		if _, visited := st.index[w]; !visited {
			st.strongconnect(a, w)
			if st.low[w] < st.low[v] {
				st.low[v] = st.low[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.low[v] {
				st.low[v] = st.index[w]
			}
		}
	}

	if st.low[v] == st.index[v] {
		var scc []*ir.Node
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, scc)
	}
}

// computeEscapes implements spec §4.3 step 5.
func (a *Analysis) computeEscapes() {
	for fn := range a.callees {
		for i, p := range fn.Inputs {
			if paramEscapes(a, p) {
				a.escapes[fn][i] = true
			}
		}
	}
}

func paramEscapes(a *Analysis, p *ir.Node) bool {
	isPointer := p.Type == ir.KindPointer
	var constQual bool
	if isPointer {
		if pd, err := p.Value.Pointer(); err == nil {
			constQual = pd.Qualifiers.Has(ir.QualConst)
		}
	}
	if !isPointer {
		// Scalars can only escape via return.
		for _, u := range p.Users() {
			if u.Op == ir.OpRet {
				return true
			}
		}
		return false
	}
	if constQual {
		for _, u := range p.Users() {
			if u.Op == ir.OpRet {
				return true
			}
		}
		return false
	}
	for _, u := range p.Users() {
		switch u.Op {
		case ir.OpRet:
			return true
		case ir.OpStore, ir.OpPtrStore:
			if len(u.Inputs) > 0 && u.Inputs[0] == p {
				return true
			}
		case ir.OpCall, ir.OpInvoke:
			argStart := 1
			if u.Op == ir.OpInvoke {
				argStart = 3
			}
			for i := argStart; i < len(u.Inputs); i++ {
				if u.Inputs[i] == p {
					return true
				}
			}
		case ir.OpAddrOf:
			return true
		}
	}
	return false
}

// computePurity implements spec §4.3 step 6, run after the call graph
// exists so recursion through mutual callees terminates via
// memoization.
func (a *Analysis) computePurity() {
	memo := make(map[*ir.Node]bool)
	var visit func(fn *ir.Node, stack map[*ir.Node]bool) bool
	visit = func(fn *ir.Node, stack map[*ir.Node]bool) bool {
		if v, ok := memo[fn]; ok {
			return v
		}
		if a.extern[fn] {
			memo[fn] = false
			return false
		}
		if stack[fn] {
			// Recursive cycle: assume pure until proven otherwise by a
			// sibling in the SCC; the final fixed point is taken from
			// the last completed visit.
			return true
		}
		stack[fn] = true
		defer delete(stack, fn)

		region := a.bodyRegions[fn]
		pureBody := true
		if region != nil {
			ir.Walk(region, func(r *ir.Region) {
				for _, n := range r.Nodes {
					switch n.Op {
					case ir.OpStore, ir.OpPtrStore:
						if !isConstTarget(n) {
							pureBody = false
						}
					case ir.OpAtomicLoad, ir.OpAtomicStore, ir.OpAtomicCAS:
						pureBody = false
					}
				}
			})
		}
		if !pureBody {
			memo[fn] = false
			return false
		}
		for callee := range a.callees[fn] {
			if !visit(callee, stack) {
				memo[fn] = false
				return false
			}
		}
		memo[fn] = true
		return true
	}
	for fn := range a.callees {
		a.pure[fn] = visit(fn, make(map[*ir.Node]bool))
	}
}

func isConstTarget(store *ir.Node) bool {
	if len(store.Inputs) < 2 {
		return false
	}
	target := store.Inputs[1]
	if pd, err := target.Value.Pointer(); err == nil {
		return pd.Qualifiers.Has(ir.QualConst)
	}
	return false
}
