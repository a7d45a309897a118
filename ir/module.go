package ir

// Module is the top-level owning container of a compilation unit
// (spec §3). It exclusively owns the string table, the root region,
// the rodata region and the transitively reachable region tree;
// Inputs/Users edges are references, never owning.
type Module struct {
	Name string

	Interner *Interner
	Root     *Region
	RData    *Region // module-scope constants

	Functions  []*Node
	NamedTypes map[string]TypedData

	allRegions []*Region
}

// NewModule creates an empty module with a root and rodata region
// already wired into the region tree.
func NewModule(name string) *Module {
	m := &Module{
		Name:       name,
		Interner:   NewInterner(),
		NamedTypes: make(map[string]TypedData),
	}
	m.Root = NewRegion(m, m.Interner.Intern("root"), nil)
	m.RData = NewRegion(m, m.Interner.Intern("rodata"), nil)
	m.allRegions = []*Region{m.Root, m.RData}
	return m
}

// NewChildRegion creates a region under parent and registers it with
// the module's region tree (spec §3, "Regions form a tree per module").
func (m *Module) NewChildRegion(name string, parent *Region) *Region {
	r := NewRegion(m, m.Interner.Intern(name), parent)
	m.allRegions = append(m.allRegions, r)
	return r
}

// Regions returns every region owned by the module, in creation order.
func (m *Module) Regions() []*Region {
	return m.allRegions
}

// AddFunction registers fn (an OpFunction node) with the module.
func (m *Module) AddFunction(fn *Node) {
	m.Functions = append(m.Functions, fn)
}

// DefineType registers a named aggregate type, e.g. for SROA's
// synthesized reduced-struct types (spec §4.5) or front-end struct
// declarations (spec §6).
func (m *Module) DefineType(name string, t TypedData) {
	name = m.Interner.Intern(name)
	m.NamedTypes[name] = t
}

// LookupType resolves a named type, used to resolve self-referential
// pointer payloads by name (spec §3, §9).
func (m *Module) LookupType(name string) (TypedData, bool) {
	t, ok := m.NamedTypes[name]
	return t, ok
}

// Walk invokes fn for every region reachable from r (inclusive), in
// pre-order. Every traversal over the region tree in this codebase
// goes through here so a future non-tree extension only needs one
// update site.
func Walk(r *Region, fn func(*Region)) {
	fn(r)
	for _, c := range r.Children {
		Walk(c, fn)
	}
}
