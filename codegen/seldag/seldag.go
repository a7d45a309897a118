// Package seldag builds the per-region selection DAG spec §4.11
// describes: a translation of a Region's IR nodes into a DAG whose
// shape the instruction selector (codegen/selector) then rewrites in
// place, and whose linearised value ids the register allocator
// (codegen/regalloc) numbers live ranges from.
//
// The teacher's SSA has nothing resembling a selection DAG (its
// lowest level is still the typed Value graph), so the translation
// table and chain-threading below are built directly from spec §4.11
// rather than adapted from teacher source; the graph shape itself
// (bidirectional Operands/Users, a mutable State, Region-scoped
// construction) mirrors `ir.Node`/`ir.Region` so the rest of this
// codebase's editing idioms (ReplaceAllUsesWith-style rewiring,
// InsertBefore-style splicing) carry over unchanged into the selector.
package seldag

import (
	"github.com/arclang/arc/internal/pool"
	"github.com/arclang/arc/ir"
	"golang.org/x/xerrors"
)

// NodeKind is the selection DAG node taxonomy (spec §4.11).
type NodeKind int

const (
	KindInstruction NodeKind = iota
	KindValue
	KindRegister
	KindImmediate
	KindMemory
	KindChain
	KindEntry
	KindRegionBoundary
)

var nodeKindNames = [...]string{
	"instruction", "value", "register", "immediate",
	"memory", "chain", "entry", "region_boundary",
}

func (k NodeKind) String() string {
	if int(k) >= 0 && int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return "invalid_kind"
}

// State is a DAG node's selection/scheduling progress (spec §4.11).
type State int

const (
	StateUnselected State = iota
	StateSelected
	StateScheduled
)

// Node is one selection DAG node. It carries the source IR node (nil
// for synthetic operands the selector or the chain-root synthesizes),
// an opcode slot (the source IR opcode, left unchanged when the
// selector rewrites the node into instruction form; the target opcode
// goes into TargetOp),
// ordered operands/users, a value identity assigned by Linearize, a
// data type, and a selection state.
type Node struct {
	Kind  NodeKind
	Op    ir.Opcode
	State State

	Source *ir.Node
	Type   ir.TypeKind

	Operands []*Node
	users    []*Node

	// ValueID is the contiguous topological-order id Linearize
	// assigns; the register allocator's live-range numbering depends
	// on it (spec §4.11, "Sort").
	ValueID int

	// Imm is the 64-bit payload an IMMEDIATE node carries.
	Imm uint64
	// Reg is the payload a REGISTER node carries (set by the register
	// allocator, not by Build).
	Reg int
	// Addr is the address operand a MEMORY node was synthesized from
	// (set by the selector's make_mem helper).
	Addr *Node
	// TargetOp is the target-specific opcode a KindInstruction node
	// carries once the selector rewrites it into instruction form.
	// Op keeps the source IR opcode for provenance; TargetOp is opaque
	// to this package —
	// only the Target implementation a pattern was written against
	// assigns it meaning.
	TargetOp int
}

// Users returns the bag of nodes referencing n via their Operands. The
// returned slice must not be mutated; it is the live backing array.
func (n *Node) Users() []*Node { return n.users }

func (n *Node) addUser(u *Node) { n.users = append(n.users, u) }

func (n *Node) removeUser(u *Node) {
	for i, x := range n.users {
		if x == u {
			n.users = append(n.users[:i], n.users[i+1:]...)
			return
		}
	}
}

// AddOperand appends operand to n.Operands, mirroring the edge into
// operand.users symmetrically (spec §4.11's "the user list is
// maintained symmetrically", echoing ir.Node.AddInput).
func (n *Node) AddOperand(operand *Node) {
	n.Operands = append(n.Operands, operand)
	if operand != nil {
		operand.addUser(n)
	}
}

// ReplaceAllUsesWith redirects every user of n to use replacement
// instead, the same substitution primitive ir.Node exposes, reused
// here so selector patterns can rewrite a VALUE node into an
// INSTRUCTION node in place without hand-walking every user.
func (n *Node) ReplaceAllUsesWith(replacement *Node) {
	users := append([]*Node(nil), n.users...)
	for _, u := range users {
		for i, o := range u.Operands {
			if o == n {
				u.Operands[i] = replacement
				if replacement != nil {
					replacement.addUser(u)
				}
			}
		}
	}
	n.users = nil
}

// DAG is the selection DAG built from a single Region.
type DAG struct {
	Region    *ir.Region
	ChainRoot *Node
	Nodes     []*Node // build order; Linearize does not reorder this slice, only ValueID

	byIR map[*ir.Node]*Node
	pool *pool.Pool
}

// ByIR returns the DAG node translated from src, or nil if src was not
// part of the region Build walked (e.g. it belongs to a different
// region, or it is itself a synthetic DAG-only node).
func (d *DAG) ByIR(src *ir.Node) *Node { return d.byIR[src] }

func (d *DAG) newNode(kind NodeKind, op ir.Opcode, src *ir.Node, typ ir.TypeKind) *Node {
	n := &Node{Kind: kind, Op: op, Source: src, Type: typ, State: StateUnselected}
	pool.Put(d.pool, n)
	d.Nodes = append(d.Nodes, n)
	return n
}

// chainDependent reports whether op is one of the memory/call/control-
// flow opcodes that thread the region's implicit chain operand (spec
// §4.11, "Build").
func chainDependent(op ir.Opcode) bool {
	switch op {
	case ir.OpLoad, ir.OpStore, ir.OpPtrLoad, ir.OpPtrStore,
		ir.OpAtomicLoad, ir.OpAtomicStore, ir.OpAtomicCAS,
		ir.OpCall, ir.OpInvoke, ir.OpRet, ir.OpBranch, ir.OpJump:
		return true
	}
	return false
}

// Build translates region's nodes into a selection DAG per the
// mapping spec §4.11 defines. A FUNCTION opcode found inside the
// region is a structural-invariant violation (spec §7, kind 4) and is
// reported rather than silently skipped.
func Build(region *ir.Region) (*DAG, error) {
	d := &DAG{Region: region, byIR: make(map[*ir.Node]*Node), pool: pool.New()}
	d.ChainRoot = d.newNode(KindEntry, ir.OpInvalid, nil, ir.KindVoid)

	for _, n := range region.Nodes {
		if n.Op == ir.OpFunction {
			return nil, xerrors.Errorf("seldag: FUNCTION node found inside region %q", region.Name)
		}
		d.byIR[n] = d.shapeFor(n)
	}

	// Rebuild operand edges from IR use-def edges, then thread the
	// chain last so it always appears as the trailing operand (spec
	// §4.11: "takes that chain as an extra operand").
	chain := d.ChainRoot
	for _, n := range region.Nodes {
		dn := d.byIR[n]
		for _, in := range n.Inputs {
			if din, ok := d.byIR[in]; ok {
				dn.AddOperand(din)
			}
		}
		if chainDependent(n.Op) {
			dn.AddOperand(chain)
			if n.Op.HasSideEffects() {
				chain = dn
			}
		}
	}

	return d, nil
}

// shapeFor constructs the (unwired) DAG node for one IR node per the
// translation table in spec §4.11.
func (d *DAG) shapeFor(n *ir.Node) *Node {
	switch n.Op {
	case ir.OpLiteral:
		dn := d.newNode(KindImmediate, n.Op, n, n.Type)
		dn.Imm = n.Value.Bits()
		return dn

	case ir.OpAlloc, ir.OpAddrOf, ir.OpPtrAdd:
		return d.newNode(KindValue, n.Op, n, ir.KindPointer)

	case ir.OpCast:
		return d.newNode(KindValue, n.Op, n, n.Type)

	case ir.OpEntry, ir.OpExit:
		return d.newNode(KindRegionBoundary, n.Op, n, ir.KindVoid)

	case ir.OpLoad, ir.OpStore, ir.OpPtrLoad, ir.OpPtrStore,
		ir.OpAtomicLoad, ir.OpAtomicStore, ir.OpAtomicCAS,
		ir.OpCall, ir.OpInvoke, ir.OpRet, ir.OpBranch, ir.OpJump:
		kind := KindValue
		if n.Op.HasSideEffects() {
			kind = KindChain
		}
		return d.newNode(kind, n.Op, n, n.Type)

	default:
		// Arithmetic/comparison/bitwise, FROM, PARAM, SELECT and the
		// vector family all translate to a plain VALUE node (spec
		// §4.11); FROM's cross-region operands arrive through the
		// same use-def rewiring loop as everything else since its IR
		// Inputs already hold them.
		return d.newNode(KindValue, n.Op, n, n.Type)
	}
}

// NewInstruction synthesizes a KindInstruction node carrying targetOp,
// wired to operands in order, and tracks it in d.Nodes/d.pool like any
// Build-produced node so a later Linearize numbers it too. This is the
// make_instruction helper spec §4.12 says the selector exposes to its
// patterns.
func (d *DAG) NewInstruction(targetOp int, operands []*Node) *Node {
	n := d.newNode(KindInstruction, ir.OpInvalid, nil, ir.KindVoid)
	n.TargetOp = targetOp
	for _, o := range operands {
		n.AddOperand(o)
	}
	return n
}

// NewRegister synthesizes a KindRegister node bound to physical
// register id (the make_reg helper, spec §4.12).
func (d *DAG) NewRegister(id int, typ ir.TypeKind) *Node {
	n := d.newNode(KindRegister, ir.OpInvalid, nil, typ)
	n.Reg = id
	return n
}

// NewImmediate synthesizes a KindImmediate node carrying a raw 64-bit
// payload (the make_imm helper, spec §4.12), independent of any source
// IR literal node.
func (d *DAG) NewImmediate(v uint64, typ ir.TypeKind) *Node {
	n := d.newNode(KindImmediate, ir.OpInvalid, nil, typ)
	n.Imm = v
	return n
}

// NewMemory synthesizes a KindMemory node over an address operand (the
// make_mem helper, spec §4.12).
func (d *DAG) NewMemory(addr *Node, typ ir.TypeKind) *Node {
	n := d.newNode(KindMemory, ir.OpInvalid, nil, typ)
	n.Addr = addr
	if addr != nil {
		n.AddOperand(addr)
	}
	return n
}

// Linearize implements Kahn's topological sort over the operand graph
// (spec §4.11, "Sort"), assigning every node a contiguous ValueID in
// topological order. The register allocator's live-range numbering
// depends on this ordering.
func (d *DAG) Linearize() []*Node {
	// d.Nodes already contains ChainRoot: every Node, including the
	// synthetic chain-root ENTRY, is appended to it by newNode.
	all := d.Nodes
	indegree := make(map[*Node]int, len(all))
	for _, n := range all {
		if _, ok := indegree[n]; !ok {
			indegree[n] = 0
		}
	}
	for _, n := range all {
		for range n.Operands {
			// operand -> n is the dependency edge (n depends on its
			// operand existing first); n's indegree counts operands
			// not yet visited.
			indegree[n]++
		}
	}

	var queue []*Node
	for _, n := range all {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]*Node, 0, len(all))
	visited := make(map[*Node]bool, len(all))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		order = append(order, n)
		for _, u := range n.users {
			indegree[u]--
			if indegree[u] == 0 {
				queue = append(queue, u)
			}
		}
	}

	for id, n := range order {
		n.ValueID = id
	}
	return order
}
