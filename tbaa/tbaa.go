// Package tbaa implements Arc's type-based alias analysis (spec
// §4.2): allocation-site and offset-based alias queries over memory
// accesses, with escape tracking feeding the NO_ALIAS fast paths.
//
// The node/object modelling here is grounded on the teacher's
// pointer package (code.google.com/p/go.tools/pointer), which answers
// a structurally identical question — "can these two memory
// references be the same storage?" — via allocation-site identity
// (pointer.object) plus type compatibility, rather than by tracking a
// full points-to solution; Arc's TBAA narrows that further to
// statically-traceable offsets, which is why locations are built by a
// single recursive trace (trace) instead of a fixed-point
// constraint solve.
package tbaa

import (
	"github.com/arclang/arc/ir"
)

// OffsetUnknown marks a MemoryLocation whose byte offset from its base
// could not be determined statically (spec §4.2: "offset = UNKNOWN
// forces conservative behavior").
const OffsetUnknown int64 = -1

// MemoryLocation is the (allocation-site, offset, size, type) triple
// spec §4.2 defines.
type MemoryLocation struct {
	Site   *ir.Node
	Offset int64
	Size   uint32
	Kind   ir.TypeKind
}

// AliasResult is the outcome of an Alias query (spec §4.2).
type AliasResult int

const (
	NoAlias AliasResult = iota
	MustAlias
	MayAlias
	PartialAlias
)

func (r AliasResult) String() string {
	switch r {
	case NoAlias:
		return "no-alias"
	case MustAlias:
		return "must-alias"
	case MayAlias:
		return "may-alias"
	case PartialAlias:
		return "partial-alias"
	default:
		return "unknown-alias"
	}
}

// Analysis is the cached TBAA result (spec §4.1's Result, §4.2).
type Analysis struct {
	locations map[*ir.Node]MemoryLocation
	escaped   map[*ir.Node]bool
	sites     []*ir.Node
}

// Name implements pass.Result.
func (a *Analysis) Name() string { return "tbaa" }

// Update implements pass.Result: TBAA is anchored on allocation-site
// identity and the types transforms do not normally mutate, so by
// default it claims stability (spec §4.2, "Incremental update").
// Passes that structurally alter allocations (SROA, lowering) declare
// "tbaa" in their Invalidates() list instead of relying on this.
func (a *Analysis) Update(modified []*ir.Region) bool { return true }

// Build walks every function region in m and constructs the
// MemoryLocation for each memory-access node (spec §4.2, "Building
// the map"), then computes the escape set (spec §4.2, "Escape
// detection").
func Build(m *ir.Module) *Analysis {
	a := &Analysis{
		locations: make(map[*ir.Node]MemoryLocation),
		escaped:   make(map[*ir.Node]bool),
	}
	siteSeen := make(map[*ir.Node]bool)
	registerSite := func(n *ir.Node) {
		if n != nil && !siteSeen[n] {
			siteSeen[n] = true
			a.sites = append(a.sites, n)
		}
	}

	for _, fn := range m.Functions {
		for _, p := range fnParams(fn) {
			if p.Type == ir.KindPointer {
				registerSite(p)
			}
		}
		region := fnRegion(fn, m)
		if region == nil {
			continue
		}
		ir.Walk(region, func(r *ir.Region) {
			for _, n := range r.Nodes {
				if n.Op == ir.OpCall && n.Type == ir.KindPointer {
					registerSite(n)
				}
				if n.Op == ir.OpAlloc {
					registerSite(n)
				}
				if !n.Op.IsMemoryAccess() {
					continue
				}
				addr := memoryAddr(n)
				if addr == nil {
					continue
				}
				loc := a.trace(addr)
				loc.Kind = accessedKind(n)
				loc.Size = loc.Kind.ByteSize()
				a.locations[n] = loc
				if loc.Site != nil {
					registerSite(loc.Site)
				}
			}
		})
	}

	a.computeEscapes()
	return a
}

// fnRegion returns the region the FUNCTION node's body lives in. Arc
// represents a function body as a region owned by (but not a field
// of) the FUNCTION node; by convention the body region's name matches
// the function's interned name one-for-one, which is how the Builder
// wires bodies up.
func fnRegion(fn *ir.Node, m *ir.Module) *ir.Region {
	var found *ir.Region
	ir.Walk(m.Root, func(r *ir.Region) {
		if r.Name == fn.StrID {
			found = r
		}
	})
	return found
}

func fnParams(fn *ir.Node) []*ir.Node {
	return fn.Inputs
}

// accessedKind returns the type of the value a memory-access node
// reads or writes: the node's own result type for a load (LOAD/
// PTR_LOAD/ATOMIC_LOAD produce the loaded value), or the value
// operand's type for a store (STORE/PTR_STORE/ATOMIC_STORE themselves
// produce VOID per spec §3's operand convention).
func accessedKind(n *ir.Node) ir.TypeKind {
	switch n.Op {
	case ir.OpStore, ir.OpPtrStore, ir.OpAtomicStore:
		if len(n.Inputs) > 0 && n.Inputs[0] != nil {
			return n.Inputs[0].Type
		}
		return ir.KindVoid
	default:
		return n.Type
	}
}

// memoryAddr returns the address operand of a memory-access node (spec
// §3's operand convention: load/ptr_load/atomic_load take the address
// as their only operand; store/ptr_store/atomic_store take value then
// address).
func memoryAddr(n *ir.Node) *ir.Node {
	switch n.Op {
	case ir.OpLoad, ir.OpPtrLoad, ir.OpAtomicLoad:
		if len(n.Inputs) < 1 {
			return nil
		}
		return n.Inputs[0]
	case ir.OpStore, ir.OpPtrStore, ir.OpAtomicStore:
		if len(n.Inputs) < 2 {
			return nil
		}
		return n.Inputs[1]
	default:
		return nil
	}
}

// aggregateDescOf resolves the struct-or-array descriptor an ACCESS
// node's container indexes into. Per `ir.Builder.Alloc`, an
// allocation's own result type is always POINTER with the aggregate
// type carried on its Pointee type node, which is the common case here
// (ACCESS's container is almost always an ALLOC or another PTR_ADD);
// a container that is itself directly STRUCT/ARRAY-typed is also
// accepted for completeness. Exactly one of the two returns is
// non-nil when ok is true.
func aggregateDescOf(container *ir.Node) (sd *ir.StructDesc, ad *ir.ArrayDesc, ok bool) {
	switch container.Type {
	case ir.KindStruct:
		if d, err := container.Value.Struct(); err == nil {
			return d, nil, true
		}
	case ir.KindArray:
		if d, err := container.Value.Array(); err == nil {
			return nil, d, true
		}
	case ir.KindPointer:
		pd, err := container.Value.Pointer()
		if err != nil || pd.Pointee == nil {
			return nil, nil, false
		}
		pointee := pd.Pointee
		switch pointee.Type {
		case ir.KindStruct:
			if d, err := pointee.Value.Struct(); err == nil {
				return d, nil, true
			}
		case ir.KindArray:
			if d, err := pointee.Value.Array(); err == nil {
				return nil, d, true
			}
		}
	}
	return nil, nil, false
}

// trace implements the address-tracing rules of spec §4.2's "Building
// the map" paragraph.
func (a *Analysis) trace(addr *ir.Node) MemoryLocation {
	switch addr.Op {
	case ir.OpAlloc:
		return MemoryLocation{Site: addr, Offset: 0}
	case ir.OpAddrOf:
		return a.trace(addr.Inputs[0])
	case ir.OpPtrAdd:
		base := a.trace(addr.Inputs[0])
		if base.Offset == OffsetUnknown {
			return base
		}
		offsetNode := addr.Inputs[1]
		if offsetNode.Op != ir.OpLiteral {
			base.Offset = OffsetUnknown
			return base
		}
		lit, err := offsetNode.Value.AsInt64()
		if err != nil {
			base.Offset = OffsetUnknown
			return base
		}
		base.Offset += lit
		return base
	case ir.OpAccess:
		base := a.trace(addr.Inputs[0])
		if base.Offset == OffsetUnknown {
			return base
		}
		idxNode := addr.Inputs[1]
		idx, err := idxNode.Value.AsInt64()
		if err != nil {
			base.Offset = OffsetUnknown
			return base
		}
		sd, ad, ok := aggregateDescOf(addr.Inputs[0])
		if !ok {
			base.Offset = OffsetUnknown
			return base
		}
		if sd != nil {
			base.Offset += int64(sd.OffsetOf(int(idx)))
			return base
		}
		elemSize := ad.ElemKind.ByteSize()
		if ad.ElemDesc != nil {
			elemSize = ad.ElemDesc.SizeOf()
		}
		base.Offset += idx * int64(elemSize)
		return base
	case ir.OpCast:
		return a.trace(addr.Inputs[0])
	case ir.OpParam:
		return MemoryLocation{Site: addr, Offset: 0}
	case ir.OpCall:
		return MemoryLocation{Site: addr, Offset: 0}
	default:
		return MemoryLocation{Site: nil, Offset: OffsetUnknown}
	}
}

// Location returns the previously traced location for a memory-access
// node, if any.
func (a *Analysis) Location(n *ir.Node) (MemoryLocation, bool) {
	loc, ok := a.locations[n]
	return loc, ok
}

// Sites returns every allocation site discovered during Build.
func (a *Analysis) Sites() []*ir.Node { return a.sites }

// Escaped reports whether site has escaped (spec §4.2).
func (a *Analysis) Escaped(site *ir.Node) bool { return a.escaped[site] }

func isConstQualified(n *ir.Node) bool {
	if n == nil || n.Type != ir.KindPointer {
		return false
	}
	pd, err := n.Value.Pointer()
	if err != nil {
		return false
	}
	return pd.Qualifiers.Has(ir.QualConst)
}

func isRestrictQualified(n *ir.Node) bool {
	if n == nil || n.Type != ir.KindPointer {
		return false
	}
	pd, err := n.Value.Pointer()
	if err != nil {
		return false
	}
	return pd.Qualifiers.Has(ir.QualRestrict)
}

// computeEscapes implements spec §4.2's "Escape detection": a site
// escapes when its base appears as a CALL/INVOKE argument (unless
// const-qualified), is returned, is stored into another pointer, or
// has its address taken and stored outside.
func (a *Analysis) computeEscapes() {
	for _, site := range a.sites {
		if a.siteEscapes(site) {
			a.escaped[site] = true
		}
	}
}

func (a *Analysis) siteEscapes(site *ir.Node) bool {
	if isConstQualified(site) {
		return a.escapesViaReturnOnly(site)
	}
	for _, u := range site.Users() {
		switch u.Op {
		case ir.OpCall, ir.OpInvoke:
			argStart := 1
			if u.Op == ir.OpInvoke {
				argStart = 3
			}
			for i := argStart; i < len(u.Inputs); i++ {
				if u.Inputs[i] == site {
					return true
				}
			}
		case ir.OpRet:
			for _, in := range u.Inputs {
				if in == site {
					return true
				}
			}
		case ir.OpStore, ir.OpPtrStore:
			if len(u.Inputs) > 0 && u.Inputs[0] == site {
				return true // the pointer value itself is stored as data
			}
		case ir.OpAddrOf:
			if a.siteEscapes(u) {
				return true
			}
		}
	}
	return false
}

func (a *Analysis) escapesViaReturnOnly(site *ir.Node) bool {
	for _, u := range site.Users() {
		if u.Op == ir.OpRet {
			for _, in := range u.Inputs {
				if in == site {
					return true
				}
			}
		}
	}
	return false
}

// Alias resolves the alias relationship between two memory-access
// nodes whose locations were computed by Build (spec §4.2, "Alias
// query").
func (a *Analysis) Alias(x, y *ir.Node) AliasResult {
	if x == y {
		return MustAlias
	}
	lx, okx := a.locations[x]
	ly, oky := a.locations[y]
	if !okx || !oky || lx.Site == nil || ly.Site == nil {
		return MayAlias
	}
	if (isRestrictQualified(lx.Site) || isRestrictQualified(ly.Site)) && lx.Site != ly.Site {
		return NoAlias
	}
	if lx.Site != ly.Site {
		nonEscapedDistinctLocals := lx.Site.Op == ir.OpAlloc && ly.Site.Op == ir.OpAlloc &&
			!a.Escaped(lx.Site) && !a.Escaped(ly.Site)
		if nonEscapedDistinctLocals {
			return NoAlias
		}
		if !ir.TypesCompatible(lx.Kind, ly.Kind) {
			return NoAlias
		}
		return MayAlias
	}
	// Same base site: overlap rule.
	if lx.Offset == OffsetUnknown || ly.Offset == OffsetUnknown {
		return MayAlias
	}
	if !overlaps(lx, ly) {
		return NoAlias
	}
	if lx.Offset == ly.Offset && lx.Size == ly.Size {
		if lx.Kind == ly.Kind {
			return MustAlias
		}
		if !ir.TypesCompatible(lx.Kind, ly.Kind) {
			return NoAlias
		}
	}
	return PartialAlias
}

func overlaps(a, b MemoryLocation) bool {
	aEnd := a.Offset + int64(a.Size)
	bEnd := b.Offset + int64(b.Size)
	return a.Offset < bEnd && b.Offset < aEnd
}
