package ir

import (
	"math"

	"golang.org/x/xerrors"
)

// ErrTypeMismatch is returned by TypedData accessors when the request
// kind does not match the stored discriminant (spec §7.3).
var ErrTypeMismatch = xerrors.New("ir: typed data kind mismatch")

// PointerQualifier is the bitset of pointer-type qualifiers (spec §3).
type PointerQualifier uint8

const (
	QualNone       PointerQualifier = 0
	QualConst      PointerQualifier = 1 << iota
	QualRestrict
	QualWriteonly
	QualNomutable
)

func (q PointerQualifier) Has(bit PointerQualifier) bool { return q&bit != 0 }

// PointerDesc describes a POINTER-typed value or type payload.
//
// Self-referential pointers (e.g. a linked-list "next" field) are
// expressed with Pointee == nil and PointeeName set to the enclosing
// struct's interned name; resolution is by name lookup against the
// owning Module (spec §3, "Ownership rules").
type PointerDesc struct {
	Pointee      *Node
	PointeeName  string
	AddressSpace uint32
	Qualifiers   PointerQualifier
}

// ArrayDesc describes an ARRAY-typed value or type payload.
type ArrayDesc struct {
	ElemKind TypeKind
	ElemDesc *TypedData // non-nil only if ElemKind is itself aggregate
	Count    uint64
	Elements []*Node // populated for array literal construction
}

// StructField is one (interned-name, field-type, nested-payload) triple.
// Padding fields carry the "__pad" name prefix (spec §4.5).
type StructField struct {
	Name   string
	Kind   TypeKind
	Nested *TypedData
}

func (f StructField) IsPadding() bool {
	return len(f.Name) >= 5 && f.Name[:5] == "__pad"
}

// StructDesc describes a STRUCT-typed value or type payload.
type StructDesc struct {
	Name    string
	Fields  []StructField
	Align   uint32
	Packed  bool
}

// FieldSize returns the byte size of field i's type, honoring nested
// aggregate descriptors where present, else the scalar size.
func (d *StructDesc) FieldSize(i int) uint32 {
	f := d.Fields[i]
	if f.Nested != nil {
		return f.Nested.SizeOf()
	}
	return f.Kind.sizeOf()
}

// OffsetOf returns the sum of non-padding field sizes preceding index
// i, the offset-computation rule used by TBAA and lowering (spec
// §4.2, §4.14). Padding fields preceding i add nothing to the offset.
func (d *StructDesc) OffsetOf(index int) uint64 {
	var off uint64
	for i := 0; i < index; i++ {
		if d.Fields[i].IsPadding() {
			continue
		}
		off += uint64(d.FieldSize(i))
	}
	return off
}

// LogicalFieldIndex maps a logical (non-padding) field number to its
// physical index in Fields, per SROA's padding-skip rule (spec §4.5).
func (d *StructDesc) LogicalFieldIndex(logical int) (int, bool) {
	n := 0
	for i, f := range d.Fields {
		if f.IsPadding() {
			continue
		}
		if n == logical {
			return i, true
		}
		n++
	}
	return 0, false
}

// VectorDesc describes a VECTOR-typed value or type payload.
type VectorDesc struct {
	ElemKind TypeKind
	Lanes    uint32
}

// FuncDesc describes a FUNCTION-typed value or type payload.
type FuncDesc struct {
	ReturnKind TypeKind
	ReturnDesc *TypedData
	ParamKinds []TypeKind
}

// TypedData is Arc's type-erased value carrier (spec §3, §9). It plays
// the role the reference implementation gives a fixed 20-byte inline
// buffer indexed by discriminant; Go has no equivalent space
// constraint that matters for correctness, so the invariant we
// preserve is the *contract*, not the layout: exactly one of the
// scalar bit-pattern or one aggregate descriptor is live, and it is
// always selected by Kind, never by which struct field happens to be
// non-zero.
type TypedData struct {
	Kind TypeKind

	bits uint64 // literal payload, reinterpreted per Kind

	ptr   *PointerDesc
	array *ArrayDesc
	strct *StructDesc
	vec   *VectorDesc
	fn    *FuncDesc
}

// Default constructs the VOID default value (spec §3).
func Default() TypedData { return TypedData{Kind: KindVoid} }

func NewBool(v bool) TypedData {
	var b uint64
	if v {
		b = 1
	}
	return TypedData{Kind: KindBool, bits: b}
}

func NewInt(kind TypeKind, v int64) TypedData {
	return TypedData{Kind: kind, bits: uint64(v)}
}

func NewUint(kind TypeKind, v uint64) TypedData {
	return TypedData{Kind: kind, bits: v}
}

func NewFloat32(v float32) TypedData {
	return TypedData{Kind: KindFloat32, bits: uint64(math.Float32bits(v))}
}

func NewFloat64(v float64) TypedData {
	return TypedData{Kind: KindFloat64, bits: math.Float64bits(v)}
}

func NewPointer(d PointerDesc) TypedData {
	return TypedData{Kind: KindPointer, ptr: &d}
}

func NewArray(d ArrayDesc) TypedData {
	return TypedData{Kind: KindArray, array: &d}
}

func NewStruct(d StructDesc) TypedData {
	return TypedData{Kind: KindStruct, strct: &d}
}

func NewVector(d VectorDesc) TypedData {
	return TypedData{Kind: KindVector, vec: &d}
}

func NewFunction(d FuncDesc) TypedData {
	return TypedData{Kind: KindFunction, fn: &d}
}

func (t TypedData) IsVoid() bool { return t.Kind == KindVoid }

func (t TypedData) AsBool() (bool, error) {
	if t.Kind != KindBool {
		return false, xerrors.Errorf("AsBool on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.bits != 0, nil
}

// AsInt64 returns the literal's bit pattern sign-extended as an int64.
// Valid for any signed or unsigned integer kind.
func (t TypedData) AsInt64() (int64, error) {
	if !t.Kind.IsInteger() {
		return 0, xerrors.Errorf("AsInt64 on %s: %w", t.Kind, ErrTypeMismatch)
	}
	switch t.Kind {
	case KindInt8:
		return int64(int8(t.bits)), nil
	case KindInt16:
		return int64(int16(t.bits)), nil
	case KindInt32:
		return int64(int32(t.bits)), nil
	case KindInt64:
		return int64(t.bits), nil
	default:
		return int64(t.bits), nil
	}
}

func (t TypedData) AsUint64() (uint64, error) {
	if !t.Kind.IsInteger() {
		return 0, xerrors.Errorf("AsUint64 on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.bits, nil
}

func (t TypedData) AsFloat32() (float32, error) {
	if t.Kind != KindFloat32 {
		return 0, xerrors.Errorf("AsFloat32 on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return math.Float32frombits(uint32(t.bits)), nil
}

func (t TypedData) AsFloat64() (float64, error) {
	if t.Kind != KindFloat64 {
		return 0, xerrors.Errorf("AsFloat64 on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return math.Float64frombits(t.bits), nil
}

// Bits exposes the raw literal bit pattern, used by CSE's bit-identical
// literal hashing (spec §4.6) so +0.0 and -0.0 hash distinctly.
func (t TypedData) Bits() uint64 { return t.bits }

func (t TypedData) Pointer() (*PointerDesc, error) {
	if t.Kind != KindPointer || t.ptr == nil {
		return nil, xerrors.Errorf("Pointer on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.ptr, nil
}

func (t TypedData) Array() (*ArrayDesc, error) {
	if t.Kind != KindArray || t.array == nil {
		return nil, xerrors.Errorf("Array on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.array, nil
}

func (t TypedData) Struct() (*StructDesc, error) {
	if t.Kind != KindStruct || t.strct == nil {
		return nil, xerrors.Errorf("Struct on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.strct, nil
}

func (t TypedData) Vector() (*VectorDesc, error) {
	if t.Kind != KindVector || t.vec == nil {
		return nil, xerrors.Errorf("Vector on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.vec, nil
}

func (t TypedData) Function() (*FuncDesc, error) {
	if t.Kind != KindFunction || t.fn == nil {
		return nil, xerrors.Errorf("Function on %s: %w", t.Kind, ErrTypeMismatch)
	}
	return t.fn, nil
}

// SizeOf returns the byte size of the value this payload describes,
// used by TBAA offset tracking and SROA field splitting.
func (t TypedData) SizeOf() uint32 {
	switch t.Kind {
	case KindArray:
		if t.array == nil {
			return 0
		}
		elem := t.array.ElemKind.sizeOf()
		if t.array.ElemDesc != nil {
			elem = t.array.ElemDesc.SizeOf()
		}
		return elem * uint32(t.array.Count)
	case KindStruct:
		if t.strct == nil {
			return 0
		}
		var sz uint32
		for i := range t.strct.Fields {
			sz += t.strct.FieldSize(i)
		}
		return sz
	case KindVector:
		if t.vec == nil {
			return 0
		}
		return t.vec.ElemKind.sizeOf() * t.vec.Lanes
	default:
		return t.Kind.sizeOf()
	}
}
