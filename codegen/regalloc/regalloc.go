// Package regalloc implements the hierarchical region-tree register
// allocator spec §4.13 describes: per-region pressure/complexity
// constraints computed bottom-up, complexity-proportional budget
// distribution top-down, a linear-scan live-range sweep with reuse
// and spill marking, and the FROM-node register-reuse specialisation
// the instruction selector calls into directly.
//
// The teacher performs no register allocation of its own (its SSA
// targets an interpreter, not physical registers), so this package has
// no direct teacher analogue; its shape — Budget/Constraints computed
// per scope, live-range sweep over a linearised order, a results cache
// keyed by node identity — is grounded on the reference
// implementation's own include/arc/codegen/regalloc.hpp (see
// original_source/), adapted from its interference-graph-avoiding
// region-structured approach into Go without templates: the Arch
// contract lives in codegen/target, and RegisterClass/Register are
// that package's types re-exported here for caller convenience.
package regalloc

import (
	"sort"

	"github.com/arclang/arc/codegen/seldag"
	"github.com/arclang/arc/codegen/target"
	"github.com/arclang/arc/ir"
	"github.com/sirupsen/logrus"
)

// Class and Register re-export the codegen boundary types (spec §6)
// so callers that only need the allocator do not also need to import
// codegen/target for these two names.
type (
	Class    = target.RegisterClass
	Register = target.Register
)

var allClasses = []Class{target.GeneralPurpose, target.Vector, target.Predicate}

// Constraints is the per-region register pressure/complexity summary
// spec §4.13 step 1 computes and step 2 merges bottom-up.
type Constraints struct {
	MinRequired     map[Class]uint32
	MaxSimultaneous map[Class]uint32
	Complexity      map[Class]float64
}

func newConstraints() *Constraints {
	return &Constraints{
		MinRequired:     make(map[Class]uint32, len(allClasses)),
		MaxSimultaneous: make(map[Class]uint32, len(allClasses)),
		Complexity:      make(map[Class]float64, len(allClasses)),
	}
}

func (c *Constraints) clone() *Constraints {
	out := newConstraints()
	for k, v := range c.MinRequired {
		out.MinRequired[k] = v
	}
	for k, v := range c.MaxSimultaneous {
		out.MaxSimultaneous[k] = v
	}
	for k, v := range c.Complexity {
		out.Complexity[k] = v
	}
	return out
}

// NeedsSpill reports whether any class's MinRequired exceeds what
// available offers (spec §4.13 step 4).
func (c *Constraints) NeedsSpill(available map[Class]uint32) bool {
	for cls, need := range c.MinRequired {
		if available[cls] < need {
			return true
		}
	}
	return false
}

func totalComplexity(c *Constraints) float64 {
	total := 0.0
	for _, v := range c.Complexity {
		total += v
	}
	return total
}

// Budget is the per-region register availability record (spec §4.13).
type Budget struct {
	Available map[Class]map[Register]bool
	Allocated map[Class]uint32
}

// NewBudget returns an empty Budget with every class initialised.
func NewBudget() Budget {
	b := Budget{
		Available: make(map[Class]map[Register]bool, len(allClasses)),
		Allocated: make(map[Class]uint32, len(allClasses)),
	}
	for _, c := range allClasses {
		b.Available[c] = make(map[Register]bool)
	}
	return b
}

// RootBudget builds the Budget the root region receives: the union of
// arch's caller- and callee-saved registers for each class (spec
// §4.13, "At entry the root region receives the union of
// caller+callee saved for each class").
func RootBudget(arch target.Target) Budget {
	b := NewBudget()
	for _, cls := range allClasses {
		for _, r := range arch.CallerSaved(cls) {
			b.Available[cls][r] = true
		}
		for _, r := range arch.CalleeSaved(cls) {
			b.Available[cls][r] = true
		}
	}
	return b
}

func (b Budget) clone() Budget {
	nb := NewBudget()
	for cls, set := range b.Available {
		for r := range set {
			nb.Available[cls][r] = true
		}
	}
	for cls, n := range b.Allocated {
		nb.Allocated[cls] = n
	}
	return nb
}

func (b Budget) counts() map[Class]uint32 {
	m := make(map[Class]uint32, len(b.Available))
	for cls, set := range b.Available {
		m[cls] = uint32(len(set))
	}
	return m
}

// sortedAvailable returns cls's free registers in a stable (sorted)
// order so allocation choices are deterministic across runs, the same
// determinism concern transform/hoistexpr's sort.SliceStable already
// addresses for its candidate ordering.
func (b Budget) sortedAvailable(cls Class) []Register {
	set := b.Available[cls]
	regs := make([]Register, 0, len(set))
	for r := range set {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}

// Request is an allocation request from the instruction selector
// (spec §4.13, "Per-node allocation").
type Request struct {
	Class      Class
	Hint       Register
	HasHint    bool
	Forbidden  map[Register]bool
	AllowSpill bool
	Priority   int
}

// Result is the allocator's answer to a Request (spec §4.13): either
// a physical register, a spill marker, or "unallocated".
type Result struct {
	Reg       Register
	Allocated bool
	Spilled   bool
}

type cacheEntry struct {
	Result
	Class Class
}

// valuePlan is one node's outcome from the region-local linear-scan
// sweep (spec §4.13 step 4's live-range reuse / spill marking).
type valuePlan struct {
	Class   Class
	Def     int
	Last    int
	Spilled bool
	Reg     Register
}

type regionInfo struct {
	region      *ir.Region
	dag         *seldag.DAG
	order       []*seldag.Node
	local       *Constraints // this region's own nodes, excluding children
	constraints *Constraints // local merged with every child's constraints
	children    []*regionInfo
	plan        map[*seldag.Node]valuePlan
}

// Allocator implements the hierarchical allocation contract (spec
// §4.13) against a single target.Target.
type Allocator struct {
	Arch target.Target
	log  logrus.FieldLogger

	info    map[*ir.Region]*regionInfo
	budgets map[*ir.Region]Budget
	cache   map[*seldag.Node]cacheEntry
}

// Option configures an Allocator at construction time.
type Option func(*Allocator)

// WithLogger attaches an optional structured logger that Allocate traces
// per-region spill decisions through; nil (the default, and New's
// zero-option behaviour) disables all tracing, the same convention
// pass.WithLogger establishes.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Allocator) { a.log = l }
}

// New constructs an Allocator for arch.
func New(arch target.Target, opts ...Option) *Allocator {
	a := &Allocator{
		Arch:    arch,
		info:    make(map[*ir.Region]*regionInfo),
		budgets: make(map[*ir.Region]Budget),
		cache:   make(map[*seldag.Node]cacheEntry),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Allocator) trace(format string, args ...interface{}) {
	if a.log != nil {
		a.log.Debugf(format, args...)
	}
}

// classOf maps a DAG node's result type to a register class per
// target.ClassFor, using arch.UsesVectorForFloat to decide where
// scalar floats live. The IR carries no predicate/mask type of its
// own (spec §3's type_kind enumeration has no BOOL-vector variant), so
// target.Predicate is never inferred automatically here — a pattern
// that needs it requests the class explicitly via Request.Class.
func (a *Allocator) classOf(n *seldag.Node) Class {
	return target.ClassFor(n.Type.IsFloat(), n.Type == ir.KindVector, a.Arch.UsesVectorForFloat())
}

// needsAllocation reports whether n produces a value a register must
// hold: REGISTER/IMMEDIATE/MEMORY/CHAIN/ENTRY/REGION_BOUNDARY nodes
// either already carry their placement or never materialise into a
// value a register holds.
func needsAllocation(n *seldag.Node) bool {
	switch n.Kind {
	case seldag.KindValue, seldag.KindInstruction:
		return n.Type != ir.KindVoid
	}
	return false
}

func lastUse(n *seldag.Node) int {
	last := n.ValueID
	for _, u := range n.Users() {
		if u.ValueID > last {
			last = u.ValueID
		}
	}
	return last
}

// nodeWeight implements spec §4.13 step 1's per-node complexity
// weight (MUL=3, DIV/MOD=10, CALL=20, LOAD=2, others=1).
func nodeWeight(op ir.Opcode) float64 {
	switch op {
	case ir.OpMul:
		return 3
	case ir.OpDiv, ir.OpMod:
		return 10
	case ir.OpCall, ir.OpInvoke:
		return 20
	case ir.OpLoad, ir.OpPtrLoad:
		return 2
	default:
		return 1
	}
}

// localConstraints implements spec §4.13 step 1: min_required from a
// sweep-line over (def, last-use) events, refined to max_simultaneous
// by the same sweep (a single region's own nodes have no child
// concurrency to separately reconcile, so the two coincide locally),
// and complexity scaled by 1 + 0.3*depth^2 for loop depth.
func (a *Allocator) localConstraints(order []*seldag.Node, loopDepth int) *Constraints {
	c := newConstraints()
	scale := 1 + 0.3*float64(loopDepth)*float64(loopDepth)

	type event struct {
		pos   int
		delta int
	}
	events := make(map[Class][]event, len(allClasses))
	for _, n := range order {
		if !needsAllocation(n) {
			continue
		}
		cls := a.classOf(n)
		c.Complexity[cls] += nodeWeight(n.Op) * scale
		events[cls] = append(events[cls], event{pos: n.ValueID, delta: 1})
		events[cls] = append(events[cls], event{pos: lastUse(n) + 1, delta: -1})
	}
	for cls, evs := range events {
		sort.Slice(evs, func(i, j int) bool {
			if evs[i].pos != evs[j].pos {
				return evs[i].pos < evs[j].pos
			}
			// Defs (+1) before expiries (-1) at the same position so a
			// value defined and another expiring in the same slot both
			// count as briefly live together (conservative).
			return evs[i].delta > evs[j].delta
		})
		live, peak := 0, 0
		for _, e := range evs {
			live += e.delta
			if live > peak {
				peak = live
			}
		}
		c.MinRequired[cls] = uint32(peak)
		c.MaxSimultaneous[cls] = uint32(peak)
	}
	return c
}

// analyze implements spec §4.13 steps 1-3: compute this region's own
// constraints, recurse into children, merge by class-wise max (steps
// 1-2), then fold in the conservative "all children concurrent" state
// (step 3).
func (a *Allocator) analyze(region *ir.Region) (*regionInfo, error) {
	dag, err := seldag.Build(region)
	if err != nil {
		return nil, err
	}
	order := dag.Linearize()
	local := a.localConstraints(order, region.Depth())
	merged := local.clone()

	var children []*regionInfo
	for _, child := range region.Children {
		ci, err := a.analyze(child)
		if err != nil {
			return nil, err
		}
		children = append(children, ci)
		for _, cls := range allClasses {
			if ci.constraints.MinRequired[cls] > merged.MinRequired[cls] {
				merged.MinRequired[cls] = ci.constraints.MinRequired[cls]
			}
			if ci.constraints.MaxSimultaneous[cls] > merged.MaxSimultaneous[cls] {
				merged.MaxSimultaneous[cls] = ci.constraints.MaxSimultaneous[cls]
			}
			merged.Complexity[cls] += ci.constraints.Complexity[cls]
		}
	}

	// Step 3: conservative all-children-concurrent state — sum every
	// child's min_required per class and let it raise max_simultaneous
	// if it exceeds what step 2 already found.
	if len(children) > 0 {
		concurrent := make(map[Class]uint32, len(allClasses))
		for _, ci := range children {
			for _, cls := range allClasses {
				concurrent[cls] += ci.constraints.MinRequired[cls]
			}
		}
		for _, cls := range allClasses {
			if concurrent[cls] > merged.MaxSimultaneous[cls] {
				merged.MaxSimultaneous[cls] = concurrent[cls]
			}
		}
	}

	info := &regionInfo{region: region, dag: dag, order: order, local: local, constraints: merged, children: children}
	a.info[region] = info
	return info, nil
}

// linearScan implements spec §4.13 step 4's live-range-reuse-then-spill
// sweep over info's own nodes (not its children's — each region is
// planned against the budget it is handed, independently), recorded
// into info.plan and mirrored into a.cache so AllocateNode/Release see
// the same placement the planner chose.
func (a *Allocator) linearScan(info *regionInfo, budget Budget) Budget {
	info.plan = make(map[*seldag.Node]valuePlan)
	free := budget.clone()
	active := make(map[Class][]*seldag.Node, len(allClasses))

	expire := func(cls Class, pos int) {
		kept := active[cls][:0]
		for _, held := range active[cls] {
			if info.plan[held].Last < pos {
				free.Available[cls][info.plan[held].Reg] = true
			} else {
				kept = append(kept, held)
			}
		}
		active[cls] = kept
	}

	for _, n := range info.order {
		if !needsAllocation(n) {
			continue
		}
		cls := a.classOf(n)
		expire(cls, n.ValueID)

		last := lastUse(n)
		regs := free.sortedAvailable(cls)
		if len(regs) > 0 {
			reg := regs[0]
			delete(free.Available[cls], reg)
			info.plan[n] = valuePlan{Class: cls, Def: n.ValueID, Last: last, Reg: reg}
			active[cls] = append(active[cls], n)
			continue
		}
		// No free register: per spec §4.13 step 4, first try live-range
		// reuse (a currently-active value whose own last use is already
		// behind n's definition point would have been expired above; if
		// none qualifies we are genuinely out of registers) then spill.
		info.plan[n] = valuePlan{Class: cls, Def: n.ValueID, Last: last, Spilled: true}
		a.trace("regalloc: spilling node %d in region %q, class %s", n.ValueID, info.region.Name, cls)
	}

	for n, p := range info.plan {
		a.cache[n] = cacheEntry{Result: Result{Reg: p.Reg, Allocated: !p.Spilled, Spilled: p.Spilled}, Class: p.Class}
	}

	// free now holds, per class, the registers not still held by a
	// value live at the end of this region's own node order — the
	// budget state later AllocateNode/AllocateFrom/Pressure/Available
	// calls against this region should observe.
	free.Allocated = make(map[Class]uint32, len(allClasses))
	for _, cls := range allClasses {
		total := uint32(len(budget.Available[cls]))
		left := uint32(len(free.Available[cls]))
		if left <= total {
			free.Allocated[cls] = total - left
		}
	}
	return free
}

// distribute implements spec §4.13 step 5: split available
// proportionally to complexity between region's own nodes and its
// children (parent keeps at least ~30% when children exist), plan
// region's own live ranges against its share, then recurse.
func (a *Allocator) distribute(info *regionInfo, available Budget) {
	localTotal := totalComplexity(info.local)
	childTotal := 0.0
	for _, ci := range info.children {
		childTotal += totalComplexity(ci.constraints)
	}

	parentBudget := available
	if len(info.children) > 0 {
		total := localTotal + childTotal
		ratio := 1.0
		if total > 0 {
			ratio = localTotal / total
		}
		if ratio < 0.3 {
			ratio = 0.3
		}
		parentBudget = scaleBudget(available, ratio)
	}

	a.budgets[info.region] = a.linearScan(info, parentBudget)

	// Children are mutually exclusive execution paths through the
	// region tree (spec §3's structural-dominance model), so each
	// receives its own full clone of `available` rather than a
	// disjoint register partition: registers freed on one path are
	// available again on a sibling path that never runs concurrently
	// with it. Only the parent's own minimum share above is carved out,
	// since the parent's live values persist across every child.
	for _, ci := range info.children {
		a.distribute(ci, available.clone())
	}
}

// scaleBudget returns a Budget holding ratio's share (rounded up, at
// least 1 when any are available) of available's registers per class.
func scaleBudget(available Budget, ratio float64) Budget {
	out := NewBudget()
	for _, cls := range allClasses {
		regs := available.sortedAvailable(cls)
		n := int(float64(len(regs))*ratio + 0.999999)
		if n > len(regs) {
			n = len(regs)
		}
		for _, r := range regs[:n] {
			out.Available[cls][r] = true
		}
	}
	return out
}

// Allocate runs the full hierarchical allocation (spec §4.13) over
// region's subtree, given the budget the root of that subtree starts
// with (ordinarily regalloc.RootBudget(arch) for a function's entry
// region).
func (a *Allocator) Allocate(region *ir.Region, available Budget) error {
	info, err := a.analyze(region)
	if err != nil {
		return err
	}
	a.distribute(info, available)
	return nil
}

// DAG returns the selection DAG Allocate built and planned region
// against, or nil if Allocate has not processed region yet. Exposed
// so callers (and tests) can hand the instruction selector the exact
// node identities the allocator's cache is keyed by, rather than
// rebuilding a second, pointer-distinct DAG over the same region.
func (a *Allocator) DAG(region *ir.Region) *seldag.DAG {
	info, ok := a.info[region]
	if !ok {
		return nil
	}
	return info.dag
}

// AllocateNode implements spec §4.13's per-node allocation contract
// (called by the instruction selector): a cache hit returns the
// earlier result; otherwise req.Hint is tried first, then any free
// register in req.Class, then a spill marker if req.AllowSpill, else
// "unallocated".
func (a *Allocator) AllocateNode(region *ir.Region, node *seldag.Node, req Request) Result {
	if entry, ok := a.cache[node]; ok {
		return entry.Result
	}
	budget, ok := a.budgets[region]
	if !ok {
		budget = NewBudget()
		a.budgets[region] = budget
	}

	var res Result
	if req.HasHint && budget.Available[req.Class][req.Hint] && !req.Forbidden[req.Hint] {
		res = Result{Reg: req.Hint, Allocated: true}
	} else {
		for _, r := range budget.sortedAvailable(req.Class) {
			if req.Forbidden[r] {
				continue
			}
			res = Result{Reg: r, Allocated: true}
			break
		}
	}
	if !res.Allocated {
		if req.AllowSpill {
			res = Result{Spilled: true}
		} else {
			res = Result{}
		}
	}
	if res.Allocated {
		delete(budget.Available[req.Class], res.Reg)
		budget.Allocated[req.Class]++
	}
	a.cache[node] = cacheEntry{Result: res, Class: req.Class}
	return res
}

// AllocateFrom implements spec §4.13's FROM-node specialisation: try
// to reuse a source operand's already-allocated register before
// falling back to general allocation (this is what eliminates a
// cross-path move at the merge point); if no operand register can be
// reused, prefer a caller-saved register when one is free.
func (a *Allocator) AllocateFrom(region *ir.Region, node *seldag.Node) Result {
	if entry, ok := a.cache[node]; ok {
		return entry.Result
	}
	cls := a.classOf(node)
	budget, ok := a.budgets[region]
	if !ok {
		budget = NewBudget()
		a.budgets[region] = budget
	}

	for _, operand := range node.Operands {
		entry, ok := a.cache[operand]
		if ok && entry.Allocated && entry.Class == cls {
			res := Result{Reg: entry.Reg, Allocated: true}
			a.cache[node] = cacheEntry{Result: res, Class: cls}
			return res
		}
	}

	for _, r := range a.Arch.CallerSaved(cls) {
		if budget.Available[cls][r] {
			delete(budget.Available[cls], r)
			budget.Allocated[cls]++
			res := Result{Reg: r, Allocated: true}
			a.cache[node] = cacheEntry{Result: res, Class: cls}
			return res
		}
	}

	return a.AllocateNode(region, node, Request{Class: cls, AllowSpill: true})
}

// Release returns node's register to its region's budget (spec
// §4.13, "Release").
func (a *Allocator) Release(region *ir.Region, node *seldag.Node) {
	entry, ok := a.cache[node]
	if !ok || !entry.Allocated {
		return
	}
	budget, ok := a.budgets[region]
	if !ok {
		return
	}
	budget.Available[entry.Class][entry.Reg] = true
	if budget.Allocated[entry.Class] > 0 {
		budget.Allocated[entry.Class]--
	}
	delete(a.cache, node)
}

// Pressure returns allocated[cls] for region (spec §4.13, "Observable
// state").
func (a *Allocator) Pressure(region *ir.Region, cls Class) uint32 {
	return a.budgets[region].Allocated[cls]
}

// Available reports whether reg is free in region's budget for cls
// (spec §4.13, "Observable state").
func (a *Allocator) Available(region *ir.Region, cls Class, reg Register) bool {
	b, ok := a.budgets[region]
	if !ok {
		return false
	}
	return b.Available[cls][reg]
}

// SpillRatio reports the fraction of region's own register-needing
// nodes the linear-scan plan could not place in a register (spec §8
// scenario 5: "spill ratio < 0.5").
func (a *Allocator) SpillRatio(region *ir.Region) float64 {
	info, ok := a.info[region]
	if !ok || len(info.plan) == 0 {
		return 0
	}
	spilled := 0
	for _, p := range info.plan {
		if p.Spilled {
			spilled++
		}
	}
	return float64(spilled) / float64(len(info.plan))
}

// AllocatedInClass reports how many of region's own planned values
// landed in cls (spec §8 scenario 5: "non-zero allocation in both
// classes").
func (a *Allocator) AllocatedInClass(region *ir.Region, cls Class) int {
	info, ok := a.info[region]
	if !ok {
		return 0
	}
	n := 0
	for _, p := range info.plan {
		if p.Class == cls && !p.Spilled {
			n++
		}
	}
	return n
}
