package ir

import "golang.org/x/xerrors"

// ErrMultipleEntry is raised when a second ENTRY node would be inserted
// into a Region that already has one (spec §3 invariant).
var ErrMultipleEntry = xerrors.New("ir: region already has an ENTRY node")

// Region is a structured control-flow scope (spec §3). Regions form a
// tree per Module; parent-to-child containment is the *structural
// dominance* relation, weakened by unstructured jumps which is why
// CanReach below walks the derived successor graph rather than trusting
// tree containment alone.
type Region struct {
	Name     string
	Module   *Module
	Parent   *Region
	Children []*Region
	Nodes    []*Node
}

// NewRegion creates a region named by an interned string and wires it
// into the module's region tree under parent (nil for the root).
func NewRegion(m *Module, name string, parent *Region) *Region {
	r := &Region{Name: name, Module: m}
	if parent != nil {
		r.Parent = parent
		parent.Children = append(parent.Children, r)
	}
	return r
}

// Entry returns the region's ENTRY node, or nil if it has none yet.
func (r *Region) Entry() *Node {
	if len(r.Nodes) > 0 && r.Nodes[0].Op == OpEntry {
		return r.Nodes[0]
	}
	return nil
}

// AddNode appends n to the region's node list, setting n.Parent. An
// ENTRY node may only be added as the very first node (spec §3).
func (r *Region) AddNode(n *Node) error {
	if n.Op == OpEntry {
		if len(r.Nodes) != 0 {
			return ErrMultipleEntry
		}
	}
	n.Parent = r
	r.Nodes = append(r.Nodes, n)
	return nil
}

// InsertAfterEntry inserts n immediately after the ENTRY node, the
// slot the spec reserves for FROM nodes (spec §3, §4.4).
func (r *Region) InsertAfterEntry(n *Node) {
	n.Parent = r
	pos := 0
	if r.Entry() != nil {
		pos = 1
	}
	r.Nodes = append(r.Nodes, nil)
	copy(r.Nodes[pos+1:], r.Nodes[pos:])
	r.Nodes[pos] = n
}

// InsertBefore inserts n immediately before target in the node list.
func (r *Region) InsertBefore(target, n *Node) {
	for i, x := range r.Nodes {
		if x == target {
			r.Nodes = append(r.Nodes, nil)
			copy(r.Nodes[i+1:], r.Nodes[i:])
			r.Nodes[i] = n
			n.Parent = r
			return
		}
	}
	r.AddNode(n)
}

// RemoveNode detaches n from the region's node list and from its
// operands' user bags. It does not touch n's own users: callers must
// have already redirected them (e.g. via ReplaceAllUsesWith).
func (r *Region) RemoveNode(n *Node) {
	for i, x := range r.Nodes {
		if x == n {
			r.Nodes = append(r.Nodes[:i], r.Nodes[i+1:]...)
			break
		}
	}
	n.RemoveAllInputs()
	n.Parent = nil
}

// IsTerminated reports whether the region's last node is a terminator
// (spec §3).
func (r *Region) IsTerminated() bool {
	if len(r.Nodes) == 0 {
		return false
	}
	return r.Nodes[len(r.Nodes)-1].Op.IsTerminator()
}

// Terminator returns the region's terminating node, or nil.
func (r *Region) Terminator() *Node {
	if !r.IsTerminated() {
		return nil
	}
	return r.Nodes[len(r.Nodes)-1]
}

// targetRegions returns the regions a terminator node transfers control
// to, by following its ENTRY-node operands.
func targetRegions(term *Node) []*Region {
	var targets []*Region
	switch term.Op {
	case OpJump:
		if len(term.Inputs) >= 1 && term.Inputs[0] != nil {
			targets = append(targets, term.Inputs[0].Parent)
		}
	case OpBranch:
		for _, i := range []int{1, 2} {
			if len(term.Inputs) > i && term.Inputs[i] != nil {
				targets = append(targets, term.Inputs[i].Parent)
			}
		}
	case OpInvoke:
		for _, i := range []int{1, 2} {
			if len(term.Inputs) > i && term.Inputs[i] != nil {
				targets = append(targets, term.Inputs[i].Parent)
			}
		}
	}
	return targets
}

// Succs returns the regions reachable in a single control-flow
// transfer from r, derived from r's terminator (or nil if r is not
// terminated).
func (r *Region) Succs() []*Region {
	term := r.Terminator()
	if term == nil {
		return nil
	}
	return targetRegions(term)
}

// CanReach reports whether target is reachable from r by following
// terminator-derived control-flow edges, a BFS over the region graph
// rather than tree containment (spec §4.4 step 5, "Phi wiring").
func (r *Region) CanReach(target *Region) bool {
	if r == target {
		return true
	}
	visited := map[*Region]bool{r: true}
	queue := []*Region{r}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range cur.Succs() {
			if s == target {
				return true
			}
			if !visited[s] {
				visited[s] = true
				queue = append(queue, s)
			}
		}
	}
	return false
}

// Dominates reports structural (tree) dominance of r over other: r is
// an ancestor of other in the region tree (spec §3).
func (r *Region) Dominates(other *Region) bool {
	for cur := other; cur != nil; cur = cur.Parent {
		if cur == r {
			return true
		}
	}
	return false
}

// Depth returns the region's nesting depth within the region tree
// (root = 0), used by loop-depth-scaled cost models (spec §4.9, §4.13).
func (r *Region) Depth() int {
	d := 0
	for cur := r.Parent; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}
