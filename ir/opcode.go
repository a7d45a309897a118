// Package ir defines Arc's typed SSA value graph: Module, Region and
// Node, the structural invariants that bind them, and the Builder that
// front-ends use to construct them.
package ir

// Opcode identifies the operation a Node performs (the spec's
// "ir_type"). Opcodes are grouped by family below purely for
// readability; nothing in the type depends on the grouping.
type Opcode int

const (
	OpInvalid Opcode = iota

	// Structural
	OpEntry
	OpExit
	OpFrom // SSA merge ("phi")
	OpFunction

	// Memory
	OpAlloc
	OpLoad
	OpStore
	OpPtrLoad
	OpPtrStore
	OpAtomicLoad
	OpAtomicStore
	OpAtomicCAS
	OpAddrOf
	OpPtrAdd
	OpAccess // lowered away before codegen

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod

	// Comparison
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte

	// Bitwise
	OpBAnd
	OpBOr
	OpBXor
	OpBShl
	OpBShr
	OpBNot

	// Control flow
	OpCall
	OpInvoke
	OpRet
	OpBranch
	OpJump

	// Values
	OpLiteral
	OpParam
	OpCast
	OpSelect

	// Vector
	OpVectorBuild
	OpVectorExtract
	OpVectorSplat
)

var opcodeNames = map[Opcode]string{
	OpInvalid:       "invalid",
	OpEntry:         "entry",
	OpExit:          "exit",
	OpFrom:          "from",
	OpFunction:      "function",
	OpAlloc:         "alloc",
	OpLoad:          "load",
	OpStore:         "store",
	OpPtrLoad:       "ptr_load",
	OpPtrStore:      "ptr_store",
	OpAtomicLoad:    "atomic_load",
	OpAtomicStore:   "atomic_store",
	OpAtomicCAS:     "atomic_cas",
	OpAddrOf:        "addr_of",
	OpPtrAdd:        "ptr_add",
	OpAccess:        "access",
	OpAdd:           "add",
	OpSub:           "sub",
	OpMul:           "mul",
	OpDiv:           "div",
	OpMod:           "mod",
	OpEq:            "eq",
	OpNeq:           "neq",
	OpLt:            "lt",
	OpLte:           "lte",
	OpGt:            "gt",
	OpGte:           "gte",
	OpBAnd:          "band",
	OpBOr:           "bor",
	OpBXor:          "bxor",
	OpBShl:          "bshl",
	OpBShr:          "bshr",
	OpBNot:          "bnot",
	OpCall:          "call",
	OpInvoke:        "invoke",
	OpRet:           "ret",
	OpBranch:        "branch",
	OpJump:          "jump",
	OpLiteral:       "lit",
	OpParam:         "param",
	OpCast:          "cast",
	OpSelect:        "select",
	OpVectorBuild:   "vector_build",
	OpVectorExtract: "vector_extract",
	OpVectorSplat:   "vector_splat",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "unknown_op"
}

// IsMemoryAccess reports whether op reads or writes through an address,
// i.e. whether it is a candidate for a TBAA MemoryLocation (spec §4.2).
func (op Opcode) IsMemoryAccess() bool {
	switch op {
	case OpLoad, OpStore, OpPtrLoad, OpPtrStore, OpAtomicLoad, OpAtomicStore:
		return true
	}
	return false
}

// IsTerminator reports whether op can be the last node of a region
// (spec §3, Region invariants).
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpRet, OpJump, OpBranch, OpInvoke:
		return true
	}
	return false
}

// HasSideEffects reports whether op must never be removed or reordered
// purely on value-numbering grounds (spec §4.6 CSE exclusions).
func (op Opcode) HasSideEffects() bool {
	switch op {
	case OpEntry, OpExit, OpFunction, OpRet, OpCall, OpInvoke,
		OpStore, OpPtrStore, OpAtomicStore, OpAtomicCAS, OpAlloc, OpBranch, OpJump:
		return true
	}
	return false
}

// IsCommutative reports whether swapping operand order does not change
// the result, used by CSE's value numbering (spec §4.6).
func (op Opcode) IsCommutative() bool {
	switch op {
	case OpAdd, OpMul, OpBAnd, OpBOr, OpBXor, OpEq, OpNeq:
		return true
	}
	return false
}
