package ir

// Traits is the node-level bitset of cross-cutting attributes (spec §3).
type Traits uint8

const (
	TraitNone     Traits = 0
	TraitExport   Traits = 1 << iota
	TraitDriver
	TraitExtern
	TraitVolatile
)

func (t Traits) Has(bit Traits) bool { return t&bit != 0 }

// Node is the unit of the SSA value graph (spec §3). Inputs/Users form
// a bidirectional reference edge set that every mutation helper here
// keeps consistent: this is the single most important invariant in
// the whole IR (spec §8, "For every node n and every u in n.users,
// n is in u.inputs; and vice versa").
type Node struct {
	Op     Opcode
	Type   TypeKind
	Value  TypedData
	Inputs []*Node
	Parent *Region
	Traits Traits
	StrID  string // interned name: functions, parameters, regions

	users []*Node

	// index is a scratch field used by mem2reg to number promotable
	// allocations densely (spec §4.4); -1 means "not a promotion
	// candidate" or "not yet numbered".
	index int
}

// NewNode constructs a detached node (not yet inserted into a Region).
// Inputs are wired via AddInput so users stay consistent from the
// start.
func NewNode(op Opcode, typ TypeKind, value TypedData, inputs ...*Node) *Node {
	n := &Node{Op: op, Type: typ, Value: value, index: -1}
	for _, in := range inputs {
		n.AddInput(in)
	}
	return n
}

// Users returns the bag of nodes referencing n via their Inputs. The
// returned slice must not be mutated by callers; it is the live
// backing array.
func (n *Node) Users() []*Node { return n.users }

// addUser appends u to n's user bag. Duplicates are permitted: a
// single user may reference n through more than one input position.
func (n *Node) addUser(u *Node) {
	n.users = append(n.users, u)
}

// removeUser purges a single occurrence of u from n's user bag.
func (n *Node) removeUser(u *Node) {
	for i, x := range n.users {
		if x == u {
			n.users = append(n.users[:i], n.users[i+1:]...)
			return
		}
	}
}

// AddInput appends operand to n.Inputs and mirrors the edge into
// operand.users.
func (n *Node) AddInput(operand *Node) {
	n.Inputs = append(n.Inputs, operand)
	if operand != nil {
		operand.addUser(n)
	}
}

// SetInput overwrites n.Inputs[i], mirroring the removal from the old
// operand's users and the addition to the new one's. This is the
// "single mutation primitive" the spec's design notes (§9) call for:
// every other helper that rewires an edge should funnel through this.
func (n *Node) SetInput(i int, operand *Node) {
	old := n.Inputs[i]
	if old == operand {
		return
	}
	if old != nil {
		old.removeUser(n)
	}
	n.Inputs[i] = operand
	if operand != nil {
		operand.addUser(n)
	}
}

// ReplaceInput rewires every occurrence of old in n.Inputs to new.
func (n *Node) ReplaceInput(old, new *Node) {
	for i, operand := range n.Inputs {
		if operand == old {
			n.SetInput(i, new)
		}
	}
}

// ReplaceAllUsesWith redirects every user of n to use replacement
// instead, leaving n with an empty user bag. This is the primitive
// mem2reg, CSE, SROA and the inliner all build substitution on.
func (n *Node) ReplaceAllUsesWith(replacement *Node) {
	users := append([]*Node(nil), n.users...) // snapshot: mutated during iteration
	for _, u := range users {
		u.ReplaceInput(n, replacement)
	}
	n.users = nil
}

// RemoveAllInputs detaches n from every one of its operands, mirroring
// the removal into each operand's users. Used when a node is deleted
// from its region.
func (n *Node) RemoveAllInputs() {
	for _, operand := range n.Inputs {
		if operand != nil {
			operand.removeUser(n)
		}
	}
	n.Inputs = nil
}

// Name returns the node's interned name if it has one, else a
// synthetic placeholder suitable for dumps.
func (n *Node) Name() string {
	if n.StrID != "" {
		return n.StrID
	}
	return "%" + n.Op.String()
}

// IsEntry reports whether n is the unique ENTRY node of its region.
func (n *Node) IsEntry() bool { return n.Op == OpEntry }
