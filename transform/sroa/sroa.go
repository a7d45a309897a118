// Package sroa implements scalar replacement of aggregates (spec
// §4.5): a STRUCT allocation whose fields are only ever reached
// through literal-indexed ACCESS nodes is split into one scalar ALLOC
// per field, eliminating the ACCESS indirection entirely when no
// field escapes, or partially when some do.
//
// The per-field bookkeeping here is grounded on the same teacher
// source as mem2reg (ssa/lift.go's "lift one alloc, record its
// referrers, decide liftability" shape) generalized one level: instead
// of classifying a whole allocation's users, SROA first groups users
// by which field ACCESS they flow through, then applies mem2reg's
// liftability test per field.
package sroa

import (
	"fmt"

	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
	"github.com/arclang/arc/tbaa"
)

// Transform implements pass.Transform for SROA (spec §4.5).
type Transform struct {
	reducedCounter int
}

// New constructs the SROA transform.
func New() *Transform { return &Transform{} }

func (t *Transform) Name() string         { return "sroa" }
func (t *Transform) Requires() []string   { return []string{"tbaa"} }
func (t *Transform) Invalidates() []string { return []string{"tbaa", "callgraph"} }

func (t *Transform) Run(m *ir.Module, mgr *pass.Manager) ([]*ir.Region, error) {
	res, err := mgr.Get("tbaa")
	if err != nil {
		return nil, err
	}
	ta := res.(*tbaa.Analysis)

	modifiedSet := make(map[*ir.Region]bool)
	var modified []*ir.Region
	markModified := func(r *ir.Region) {
		if r != nil && !modifiedSet[r] {
			modifiedSet[r] = true
			modified = append(modified, r)
		}
	}

	for _, site := range append([]*ir.Node(nil), ta.Sites()...) {
		if site.Op != ir.OpAlloc || site.Type != ir.KindPointer {
			continue
		}
		pointee := ir.AllocType(site)
		if pointee != ir.KindStruct {
			continue
		}
		if !candidate(site, ta) {
			continue
		}
		t.transformSite(m, site, markModified)
	}
	return modified, nil
}

// candidate implements spec §4.5's scope test.
func candidate(site *ir.Node, ta *tbaa.Analysis) bool {
	if ta.Escaped(site) {
		return false
	}
	if site.Traits.Has(ir.TraitVolatile) {
		return false
	}
	for _, u := range site.Users() {
		if u.Op == ir.OpAddrOf {
			return false
		}
		if u.Op != ir.OpAccess {
			return false
		}
	}
	return true
}

// fieldUse groups one struct field's ACCESS nodes together with
// whether any downstream use forces the field to stay escaped.
type fieldUse struct {
	accesses []*ir.Node
	escaped  bool
}

func (t *Transform) transformSite(m *ir.Module, site *ir.Node, markModified func(*ir.Region)) {
	pd, err := site.Value.Pointer()
	if err != nil || pd.Pointee == nil {
		return
	}
	sd, err := pd.Pointee.Value.Struct()
	if err != nil {
		return
	}

	fields := make(map[int]*fieldUse)
	for _, u := range site.Users() {
		if u.Op != ir.OpAccess || len(u.Inputs) < 2 {
			continue
		}
		idx, err := u.Inputs[1].Value.AsInt64()
		if err != nil {
			continue
		}
		i := int(idx)
		fu := fields[i]
		if fu == nil {
			fu = &fieldUse{}
			fields[i] = fu
		}
		fu.accesses = append(fu.accesses, u)
		for _, du := range u.Users() {
			switch du.Op {
			case ir.OpCall, ir.OpInvoke, ir.OpRet, ir.OpAddrOf:
				fu.escaped = true
			}
		}
	}

	anyEscaped := false
	anyPromotable := false
	for i, fu := range fields {
		if sd.Fields[i].IsPadding() {
			continue
		}
		if fu.escaped {
			anyEscaped = true
		} else {
			anyPromotable = true
		}
	}
	if !anyPromotable {
		return
	}

	region := site.Parent
	if region == nil {
		return
	}

	if anyEscaped {
		t.partialPromote(m, region, site, sd, fields, markModified)
	} else {
		t.fullPromote(region, site, sd, fields, markModified)
	}
}

// fullPromote implements spec §4.5's full-promotion branch: every
// non-padding field becomes its own scalar ALLOC.
func (t *Transform) fullPromote(region *ir.Region, site *ir.Node, sd *ir.StructDesc, fields map[int]*fieldUse, markModified func(*ir.Region)) {
	scalarFor := make(map[int]*ir.Node)
	for i, f := range sd.Fields {
		if f.IsPadding() {
			continue
		}
		scalar := newScalarAlloc(region, f)
		scalarFor[i] = scalar
		markModified(region)
		if fu := fields[i]; fu != nil {
			redirectAccess(region, fu.accesses, scalar, markModified)
		}
	}
	region.RemoveNode(site)
	markModified(region)
}

// partialPromote implements spec §4.5's partial-promotion branch: a
// reduced struct type keeps the escaped (and padding) fields in
// place, while promotable fields still become scalar allocations.
func (t *Transform) partialPromote(m *ir.Module, region *ir.Region, site *ir.Node, sd *ir.StructDesc, fields map[int]*fieldUse, markModified func(*ir.Region)) {
	var reducedFields []*ir.StructField
	keptIndex := make(map[int]int) // original index -> reduced index
	for i, f := range sd.Fields {
		fu := fields[i]
		keepInReduced := f.IsPadding() || (fu != nil && fu.escaped)
		if !keepInReduced {
			continue
		}
		keptIndex[i] = len(reducedFields)
		cp := f
		reducedFields = append(reducedFields, &cp)
	}
	flat := make([]ir.StructField, len(reducedFields))
	for i, f := range reducedFields {
		flat[i] = *f
	}

	t.reducedCounter++
	name := fmt.Sprintf("__sroa_reduced_%d", t.reducedCounter)
	reducedType := m.Interner.Intern(name)
	reducedDesc := ir.StructDesc{Name: reducedType, Fields: flat, Align: sd.Align, Packed: sd.Packed}
	reducedTD := ir.NewStruct(reducedDesc)
	m.DefineType(reducedType, reducedTD)

	newPointee := ir.NewTypeNode(ir.KindStruct, reducedTD)
	pd, _ := site.Value.Pointer()
	site.Value = ir.NewPointer(ir.PointerDesc{
		Pointee:      newPointee,
		PointeeName:  pd.PointeeName,
		AddressSpace: pd.AddressSpace,
		Qualifiers:   pd.Qualifiers,
	})
	markModified(region)

	for i, fu := range fields {
		if sd.Fields[i].IsPadding() || fu.escaped {
			// Stays accessed through the original (now reduced)
			// struct layout; re-point its index literal at the
			// reduced type's field position.
			if ri, ok := keptIndex[i]; ok {
				for _, acc := range fu.accesses {
					acc.SetInput(1, ir.NewNode(ir.OpLiteral, acc.Inputs[1].Type, ir.NewInt(acc.Inputs[1].Type, int64(ri))))
				}
			}
			continue
		}
		scalar := newScalarAlloc(region, sd.Fields[i])
		markModified(region)
		redirectAccess(region, fu.accesses, scalar, markModified)
	}
}

func newScalarAlloc(region *ir.Region, field ir.StructField) *ir.Node {
	var desc ir.TypedData
	if field.Nested != nil {
		desc = *field.Nested
	} else {
		desc = ir.Default()
	}
	pointee := ir.NewTypeNode(field.Kind, desc)
	n := ir.NewNode(ir.OpAlloc, ir.KindPointer, ir.NewPointer(ir.PointerDesc{Pointee: pointee}))
	region.InsertAfterEntry(n)
	return n
}

// redirectAccess points every direct user of each ACCESS node at the
// scalar allocation instead, then removes the ACCESS node itself.
func redirectAccess(region *ir.Region, accesses []*ir.Node, scalar *ir.Node, markModified func(*ir.Region)) {
	for _, acc := range accesses {
		acc.ReplaceAllUsesWith(scalar)
		if acc.Parent != nil {
			acc.Parent.RemoveNode(acc)
			markModified(acc.Parent)
		}
	}
}
