package ir

// TypeKind is the semantic data type of a Node's result (spec §3's
// "type_kind"). The active variant of TypedData is always indexed by
// TypeKind, never by the discriminant of the payload alone.
type TypeKind int

const (
	KindVoid TypeKind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindPointer
	KindArray
	KindStruct
	KindFunction
	KindVector
)

var typeKindNames = [...]string{
	"void", "bool",
	"i8", "i16", "i32", "i64",
	"u8", "u16", "u32", "u64",
	"f32", "f64",
	"ptr", "array", "struct", "function", "vector",
}

func (k TypeKind) String() string {
	if int(k) >= 0 && int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return "invalid_kind"
}

// IsInteger reports whether k is one of the fixed-width signed or
// unsigned integer kinds.
func (k TypeKind) IsInteger() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64,
		KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	}
	return false
}

// IsSignedInteger reports whether k is a signed fixed-width integer kind.
func (k TypeKind) IsSignedInteger() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsFloat reports whether k is FLOAT32 or FLOAT64.
func (k TypeKind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsNumeric reports whether k participates in arithmetic/comparison
// folding (spec §4.7).
func (k TypeKind) IsNumeric() bool {
	return k.IsInteger() || k.IsFloat() || k == KindBool
}

// ByteSize returns the natural size in bytes of a scalar kind.
// Aggregate kinds (ARRAY/STRUCT/VECTOR) must be measured from their
// descriptor via TypedData.SizeOf instead.
func (k TypeKind) ByteSize() uint32 { return k.sizeOf() }

// sizeOf returns the natural size in bytes of a scalar kind. Aggregate
// kinds (ARRAY/STRUCT/VECTOR) must be measured from their descriptor.
func (k TypeKind) sizeOf() uint32 {
	switch k {
	case KindBool, KindInt8, KindUint8:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64, KindPointer:
		return 8
	}
	return 0
}

// promote implements the numeric-promotion function referenced by
// TBAA type compatibility (spec §4.2) and constant folding (spec
// §4.7): it returns the common kind two numeric kinds would be
// promoted to for an arithmetic/comparison operation, or KindVoid
// (with ok=false) if the pair cannot be promoted (the "non-void"
// return referenced by the spec).
func promote(a, b TypeKind) (TypeKind, bool) {
	if a == b {
		return a, true
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return KindVoid, false
	}
	if a.IsFloat() || b.IsFloat() {
		if a == KindFloat64 || b == KindFloat64 {
			return KindFloat64, true
		}
		return KindFloat32, true
	}
	// Wider integer wins; on equal width the left operand's kind is
	// returned. Bool counts as 1 byte wide (its sizeOf).
	wa, wb := a.sizeOf(), b.sizeOf()
	if wa == 0 {
		wa = 4 // not reached: every numeric kind has a non-zero sizeOf
	}
	if wb == 0 {
		wb = 4
	}
	if wa >= wb {
		return a, true
	}
	return b, true
}

// TypesCompatible implements the "type compatibility" relation used
// by TBAA (spec §4.2): reflexive, plus any pair promote() accepts.
func TypesCompatible(a, b TypeKind) bool {
	if a == b {
		return true
	}
	_, ok := promote(a, b)
	return ok
}

// Promote exposes the numeric-promotion function to other packages
// (spec §4.7's "numeric promotion applied" for arithmetic/comparison
// folding).
func Promote(a, b TypeKind) (TypeKind, bool) { return promote(a, b) }
