package ir

// This file implements the String() methods used by the advisory
// textual dump surface (spec §6): padding fields are elided and
// pointer types show their pointee name. Struct fields carry no
// escape marking in this dump.
// It mirrors the teacher's ssa/print.go, which is likewise "provided
// only for debugging" and never round-tripped.

import (
	"fmt"
	"strings"
)

func (k TypeKind) dumpString(payload *TypedData) string {
	if payload == nil {
		return k.String()
	}
	switch k {
	case KindPointer:
		if pd, err := payload.Pointer(); err == nil {
			name := pd.PointeeName
			if pd.Pointee != nil {
				name = pd.Pointee.Type.String()
			}
			return "ptr<" + name + ">"
		}
	case KindArray:
		if ad, err := payload.Array(); err == nil {
			return fmt.Sprintf("array<%s x %d>", ad.ElemKind, ad.Count)
		}
	case KindStruct:
		if sd, err := payload.Struct(); err == nil {
			var b strings.Builder
			b.WriteString("struct ")
			b.WriteString(sd.Name)
			b.WriteString(" { ")
			first := true
			for _, f := range sd.Fields {
				if f.IsPadding() {
					continue // padding fields are elided from the dump
				}
				if !first {
					b.WriteString(", ")
				}
				first = false
				b.WriteString(f.Name)
				b.WriteString(": ")
				b.WriteString(f.Kind.String())
			}
			b.WriteString(" }")
			return b.String()
		}
	case KindVector:
		if vd, err := payload.Vector(); err == nil {
			return fmt.Sprintf("vector<%s x %d>", vd.ElemKind, vd.Lanes)
		}
	}
	return k.String()
}

// String renders n as a single dump line, e.g. "%add = add i32 x, y"
// for an unnamed add of parameters named x and y (an unnamed node is
// shown as "%" plus its opcode name).
func (n *Node) String() string {
	var b strings.Builder
	if n.Type != KindVoid {
		fmt.Fprintf(&b, "%s = ", n.Name())
	}
	b.WriteString(n.Op.String())
	if n.Op == OpLiteral {
		b.WriteString(" ")
		b.WriteString(n.Type.dumpString(&n.Value))
	} else if n.Type != KindVoid {
		b.WriteString(" ")
		b.WriteString(n.Type.dumpString(&n.Value))
	}
	for i, in := range n.Inputs {
		if i == 0 && n.Op != OpLiteral {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		if in == nil {
			b.WriteString("<nil>")
			continue
		}
		b.WriteString(in.Name())
	}
	if n.Traits != TraitNone {
		b.WriteString(" ")
		b.WriteString(traitsString(n.Traits))
	}
	return b.String()
}

func traitsString(t Traits) string {
	var parts []string
	if t.Has(TraitExport) {
		parts = append(parts, "export")
	}
	if t.Has(TraitDriver) {
		parts = append(parts, "driver")
	}
	if t.Has(TraitExtern) {
		parts = append(parts, "extern")
	}
	if t.Has(TraitVolatile) {
		parts = append(parts, "volatile")
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// String renders r's full node list, indented one level under its name.
func (r *Region) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "region %s:\n", r.Name)
	for _, n := range r.Nodes {
		fmt.Fprintf(&b, "  %s\n", n)
	}
	return b.String()
}

// String renders every region in m's tree, pre-order.
func (m *Module) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n", m.Name)
	Walk(m.Root, func(r *Region) {
		b.WriteString(r.String())
	})
	return b.String()
}
