package ir

import "golang.org/x/xerrors"

// ErrInvalidOperand is the sentinel construction error (spec §6, §7.1):
// raised for null operands, operand-type mismatches, and empty vector
// builds.
var ErrInvalidOperand = xerrors.New("ir: invalid operand")

func invalidOperand(reason string) error {
	return xerrors.Errorf("%s: %w", reason, ErrInvalidOperand)
}

// Builder is the front-end construction API (spec §6). It tracks a
// Module and a current insertion Region; every construction primitive
// appends to that region and returns the new Node, or an error if the
// operands violate a construction invariant.
type Builder struct {
	Module *Module
	cur    *Region
}

// NewBuilder opens a builder against m with no insertion point set;
// callers must call SetInsertPoint before emitting nodes.
func NewBuilder(m *Module) *Builder {
	return &Builder{Module: m}
}

// SetInsertPoint selects the region subsequent construction calls
// append to.
func (b *Builder) SetInsertPoint(r *Region) { b.cur = r }

// InsertPoint returns the current insertion region.
func (b *Builder) InsertPoint() *Region { return b.cur }

func (b *Builder) emit(n *Node) *Node {
	b.cur.AddNode(n)
	return n
}

// NewTypeNode creates a detached node used only as a type-descriptor
// anchor (e.g. a pointer payload's Pointee), per spec §3's "type
// payloads embedded in value may reference other nodes". It is never
// inserted into a region's node list.
func NewTypeNode(typ TypeKind, value TypedData) *Node {
	return &Node{Op: OpLiteral, Type: typ, Value: value, index: -1}
}

// --- Structural ---

// Entry emits the region's ENTRY node. Fails if the region already has
// any node, since an ENTRY must be the first node of its region.
func (b *Builder) Entry() (*Node, error) {
	n := &Node{Op: OpEntry, Type: KindVoid, index: -1}
	if err := b.cur.AddNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// From emits an SSA-merge node over edges, one value per incoming
// control path (spec §3, §4.4). It is inserted immediately after the
// region's ENTRY.
func (b *Builder) From(typ TypeKind, edges ...*Node) (*Node, error) {
	for _, e := range edges {
		if e == nil {
			return nil, invalidOperand("from: nil edge")
		}
	}
	n := NewNode(OpFrom, typ, Default(), edges...)
	b.cur.InsertAfterEntry(n)
	return n, nil
}

// --- Literals & parameters ---

func (b *Builder) Bool(v bool) *Node       { return b.emit(NewNode(OpLiteral, KindBool, NewBool(v))) }
func (b *Builder) Int(k TypeKind, v int64) *Node {
	return b.emit(NewNode(OpLiteral, k, NewInt(k, v)))
}
func (b *Builder) Uint(k TypeKind, v uint64) *Node {
	return b.emit(NewNode(OpLiteral, k, NewUint(k, v)))
}
func (b *Builder) Float32(v float32) *Node {
	return b.emit(NewNode(OpLiteral, KindFloat32, NewFloat32(v)))
}
func (b *Builder) Float64(v float64) *Node {
	return b.emit(NewNode(OpLiteral, KindFloat64, NewFloat64(v)))
}

// Param declares a function parameter value.
func (b *Builder) Param(name string, k TypeKind) *Node {
	n := NewNode(OpParam, k, Default())
	n.StrID = b.Module.Interner.Intern(name)
	return b.emit(n)
}

// Function declares a FUNCTION node with the given name, parameters
// and return kind (spec §6).
func (b *Builder) Function(name string, returnKind TypeKind, traits Traits, params ...*Node) *Node {
	paramKinds := make([]TypeKind, len(params))
	for i, p := range params {
		paramKinds[i] = p.Type
	}
	desc := FuncDesc{ReturnKind: returnKind, ParamKinds: paramKinds}
	n := NewNode(OpFunction, KindFunction, NewFunction(desc), params...)
	n.StrID = b.Module.Interner.Intern(name)
	n.Traits = traits
	b.Module.AddFunction(n)
	return n
}

// --- Memory ---

// Alloc emits an allocation of a scalar or aggregate type, returning a
// POINTER-typed node whose pointee type is typ (spec §3, §4.2's
// "allocation sites are ALLOC nodes").
func (b *Builder) Alloc(typ TypeKind, typeDesc TypedData, traits Traits) *Node {
	pointee := NewTypeNode(typ, typeDesc)
	n := NewNode(OpAlloc, KindPointer, NewPointer(PointerDesc{Pointee: pointee}))
	n.Traits = traits
	return b.emit(n)
}

// ArrayAlloc emits an allocation of an array type of count elements,
// an explicit construction primitive distinct from a bare scalar Alloc
// (spec §6, "array allocation").
func (b *Builder) ArrayAlloc(elem TypeKind, count uint64, traits Traits) *Node {
	desc := NewArray(ArrayDesc{ElemKind: elem, Count: count})
	return b.Alloc(KindArray, desc, traits)
}

// AllocType returns the pointee type kind recorded at alloc's creation,
// or KindVoid if alloc is not an ALLOC/ADDR_OF-style pointer node.
func AllocType(alloc *Node) TypeKind {
	pd, err := alloc.Value.Pointer()
	if err != nil || pd.Pointee == nil {
		return KindVoid
	}
	return pd.Pointee.Type
}

func requirePointer(n *Node, who string) error {
	if n == nil {
		return invalidOperand(who + ": nil operand")
	}
	if n.Type != KindPointer {
		return invalidOperand(who + ": operand is not a pointer")
	}
	return nil
}

// Load emits a named (non-pointer-indirect) memory read: inputs[0] is
// the address (spec §3).
func (b *Builder) Load(addr *Node, k TypeKind) (*Node, error) {
	if err := requirePointer(addr, "load"); err != nil {
		return nil, err
	}
	return b.emit(NewNode(OpLoad, k, Default(), addr)), nil
}

// Store emits inputs[0]=value, inputs[1]=location (spec §3).
func (b *Builder) Store(value, location *Node) (*Node, error) {
	if value == nil {
		return nil, invalidOperand("store: nil value")
	}
	if err := requirePointer(location, "store"); err != nil {
		return nil, err
	}
	return b.emit(NewNode(OpStore, KindVoid, Default(), value, location)), nil
}

// PtrLoad is the pointer-indirect load form (spec §3).
func (b *Builder) PtrLoad(addr *Node, k TypeKind) (*Node, error) {
	if err := requirePointer(addr, "ptr_load"); err != nil {
		return nil, err
	}
	return b.emit(NewNode(OpPtrLoad, k, Default(), addr)), nil
}

// PtrStore is the pointer-indirect store form: inputs[0]=value, inputs[1]=ptr.
func (b *Builder) PtrStore(value, ptr *Node) (*Node, error) {
	if value == nil {
		return nil, invalidOperand("ptr_store: nil value")
	}
	if err := requirePointer(ptr, "ptr_store"); err != nil {
		return nil, err
	}
	return b.emit(NewNode(OpPtrStore, KindVoid, Default(), value, ptr)), nil
}

// AddrOf takes the address of a location, forwarding TBAA tracing to
// its source (spec §4.2).
func (b *Builder) AddrOf(of *Node) (*Node, error) {
	if of == nil {
		return nil, invalidOperand("addr_of: nil operand")
	}
	pointee := NewTypeNode(of.Type, of.Value)
	return b.emit(NewNode(OpAddrOf, KindPointer, NewPointer(PointerDesc{Pointee: pointee}), of)), nil
}

// PtrAdd emits pointer arithmetic with a literal or dynamic byte offset.
func (b *Builder) PtrAdd(base, offset *Node) (*Node, error) {
	if err := requirePointer(base, "ptr_add"); err != nil {
		return nil, err
	}
	if offset == nil {
		return nil, invalidOperand("ptr_add: nil offset")
	}
	return b.emit(NewNode(OpPtrAdd, KindPointer, base.Value, base, offset)), nil
}

// Access emits a semantic field/array access node: inputs[0]=container,
// inputs[1]=literal index (spec §3). It must be lowered before codegen
// (spec §4.14).
func (b *Builder) Access(container, index *Node) (*Node, error) {
	if container == nil {
		return nil, invalidOperand("access: nil container")
	}
	if index == nil || index.Op != OpLiteral || !index.Type.IsInteger() {
		return nil, invalidOperand("access: index must be an integer literal")
	}
	return b.emit(NewNode(OpAccess, KindVoid, Default(), container, index)), nil
}

// --- Arithmetic / comparison / bitwise ---

func (b *Builder) binary(op Opcode, resultKind TypeKind, lhs, rhs *Node) (*Node, error) {
	if lhs == nil || rhs == nil {
		return nil, invalidOperand(op.String() + ": nil operand")
	}
	return b.emit(NewNode(op, resultKind, Default(), lhs, rhs)), nil
}

// operandKind returns n's result type, or KindVoid if n is nil: used to
// compute a binary op's result kind before binary's own nil check has
// run, so a nil operand reports ErrInvalidOperand instead of panicking
// on a nil dereference.
func operandKind(n *Node) TypeKind {
	if n == nil {
		return KindVoid
	}
	return n.Type
}

func (b *Builder) Add(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpAdd, operandKind(lhs), lhs, rhs)
}
func (b *Builder) Sub(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpSub, operandKind(lhs), lhs, rhs)
}
func (b *Builder) Mul(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpMul, operandKind(lhs), lhs, rhs)
}
func (b *Builder) Div(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpDiv, operandKind(lhs), lhs, rhs)
}
func (b *Builder) Mod(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpMod, operandKind(lhs), lhs, rhs)
}

func (b *Builder) Eq(lhs, rhs *Node) (*Node, error)  { return b.binary(OpEq, KindBool, lhs, rhs) }
func (b *Builder) Neq(lhs, rhs *Node) (*Node, error) { return b.binary(OpNeq, KindBool, lhs, rhs) }
func (b *Builder) Lt(lhs, rhs *Node) (*Node, error)  { return b.binary(OpLt, KindBool, lhs, rhs) }
func (b *Builder) Lte(lhs, rhs *Node) (*Node, error) { return b.binary(OpLte, KindBool, lhs, rhs) }
func (b *Builder) Gt(lhs, rhs *Node) (*Node, error)  { return b.binary(OpGt, KindBool, lhs, rhs) }
func (b *Builder) Gte(lhs, rhs *Node) (*Node, error) { return b.binary(OpGte, KindBool, lhs, rhs) }

func (b *Builder) BAnd(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpBAnd, operandKind(lhs), lhs, rhs)
}
func (b *Builder) BOr(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpBOr, operandKind(lhs), lhs, rhs)
}
func (b *Builder) BXor(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpBXor, operandKind(lhs), lhs, rhs)
}
func (b *Builder) BShl(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpBShl, operandKind(lhs), lhs, rhs)
}
func (b *Builder) BShr(lhs, rhs *Node) (*Node, error) {
	return b.binary(OpBShr, operandKind(lhs), lhs, rhs)
}

func (b *Builder) BNot(x *Node) (*Node, error) {
	if x == nil {
		return nil, invalidOperand("bnot: nil operand")
	}
	return b.emit(NewNode(OpBNot, x.Type, Default(), x)), nil
}

func (b *Builder) Cast(x *Node, to TypeKind) (*Node, error) {
	if x == nil {
		return nil, invalidOperand("cast: nil operand")
	}
	return b.emit(NewNode(OpCast, to, Default(), x)), nil
}

func (b *Builder) Select(cond, onTrue, onFalse *Node) (*Node, error) {
	if cond == nil || onTrue == nil || onFalse == nil {
		return nil, invalidOperand("select: nil operand")
	}
	return b.emit(NewNode(OpSelect, onTrue.Type, Default(), cond, onTrue, onFalse)), nil
}

// --- Control flow ---

func (b *Builder) Branch(cond, thenEntry, elseEntry *Node) (*Node, error) {
	if cond == nil || thenEntry == nil || elseEntry == nil {
		return nil, invalidOperand("branch: nil operand")
	}
	if thenEntry.Op != OpEntry || elseEntry.Op != OpEntry {
		return nil, invalidOperand("branch: targets must be ENTRY nodes")
	}
	return b.emit(NewNode(OpBranch, KindVoid, Default(), cond, thenEntry, elseEntry)), nil
}

func (b *Builder) Jump(target *Node) (*Node, error) {
	if target == nil || target.Op != OpEntry {
		return nil, invalidOperand("jump: target must be an ENTRY node")
	}
	return b.emit(NewNode(OpJump, KindVoid, Default(), target)), nil
}

func (b *Builder) Ret(value *Node) *Node {
	if value == nil {
		return b.emit(NewNode(OpRet, KindVoid, Default()))
	}
	return b.emit(NewNode(OpRet, value.Type, Default(), value))
}

func (b *Builder) Call(callee *Node, args ...*Node) (*Node, error) {
	if callee == nil {
		return nil, invalidOperand("call: nil callee")
	}
	inputs := append([]*Node{callee}, args...)
	resultKind := KindVoid
	if fd, err := callee.Value.Function(); err == nil {
		resultKind = fd.ReturnKind
	}
	return b.emit(NewNode(OpCall, resultKind, Default(), inputs...)), nil
}

func (b *Builder) Invoke(callee, normal, exception *Node, args ...*Node) (*Node, error) {
	if callee == nil {
		return nil, invalidOperand("invoke: nil callee")
	}
	if normal == nil || normal.Op != OpEntry || exception == nil || exception.Op != OpEntry {
		return nil, invalidOperand("invoke: targets must be ENTRY nodes")
	}
	inputs := append([]*Node{callee, normal, exception}, args...)
	resultKind := KindVoid
	if fd, err := callee.Value.Function(); err == nil {
		resultKind = fd.ReturnKind
	}
	return b.emit(NewNode(OpInvoke, resultKind, Default(), inputs...)), nil
}

// --- Vector ---

func (b *Builder) VectorBuild(elem TypeKind, lanes ...*Node) (*Node, error) {
	if len(lanes) == 0 {
		return nil, invalidOperand("vector_build: empty lane list")
	}
	desc := NewVector(VectorDesc{ElemKind: elem, Lanes: uint32(len(lanes))})
	return b.emit(NewNode(OpVectorBuild, KindVector, desc, lanes...)), nil
}

func (b *Builder) VectorExtract(vec, index *Node) (*Node, error) {
	if err := func() error {
		if vec == nil || vec.Type != KindVector {
			return invalidOperand("vector_extract: operand is not a vector")
		}
		return nil
	}(); err != nil {
		return nil, err
	}
	vd, _ := vec.Value.Vector()
	return b.emit(NewNode(OpVectorExtract, vd.ElemKind, Default(), vec, index)), nil
}

func (b *Builder) VectorSplat(value *Node, lanes uint32) (*Node, error) {
	if value == nil {
		return nil, invalidOperand("vector_splat: nil operand")
	}
	desc := NewVector(VectorDesc{ElemKind: value.Type, Lanes: lanes})
	return b.emit(NewNode(OpVectorSplat, KindVector, desc, value)), nil
}

// --- Struct type construction ---

// StructType builds a STRUCT type payload from ordered fields,
// optionally packed (no alignment padding inserted automatically: the
// front-end supplies explicit "__pad"-prefixed fields when it wants
// padding represented, per spec §4.5).
func (b *Builder) StructType(name string, fields []StructField, align uint32, packed bool) TypedData {
	name = b.Module.Interner.Intern(name)
	desc := StructDesc{Name: name, Fields: fields, Align: align, Packed: packed}
	t := NewStruct(desc)
	b.Module.DefineType(name, t)
	return t
}

// SelfPointerField builds a StructField suitable for a self-referential
// pointer member (e.g. a linked-list "next"), recorded per spec §3 as
// Pointee == nil plus the enclosing struct's interned name.
func SelfPointerField(name, structName string, qual PointerQualifier) StructField {
	pd := PointerDesc{Pointee: nil, PointeeName: structName, Qualifiers: qual}
	return StructField{Name: name, Kind: KindPointer, Nested: ptrTD(pd)}
}

func ptrTD(pd PointerDesc) *TypedData {
	t := NewPointer(pd)
	return &t
}
