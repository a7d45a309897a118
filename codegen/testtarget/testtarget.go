// Package testtarget is a minimal, configurable target.Target used by
// this module's own codegen tests and by embedders that want to
// exercise the selector/regalloc contract before a real architecture
// backend exists. It is not a target architecture itself (spec §1
// explicitly keeps "specific target-architecture instruction tables
// (AArch64 opcodes, registers)" out of this module's scope) — it is
// the pluggable stand-in the spec's own "target is a type satisfying
// ..." boundary (§6) calls for.
package testtarget

import "github.com/arclang/arc/codegen/target"

// Target is a configurable target.Target implementation. The zero
// value is unusable; construct with New.
type Target struct {
	maxOperands  int
	encodingSize int
	counts       map[target.RegisterClass]int
	callerSplit  map[target.RegisterClass]int // how many of the low registers are caller-saved; the rest are callee-saved
	spillCost    map[target.Register]uint32
	vectorFloat  bool
}

// Option configures a Target at construction time.
type Option func(*Target)

// WithClassCount sets cls's register count and how many of its low
// register ids (0..callerCount-1) are caller-saved (the remainder are
// callee-saved).
func WithClassCount(cls target.RegisterClass, count, callerCount int) Option {
	return func(t *Target) {
		t.counts[cls] = count
		t.callerSplit[cls] = callerCount
	}
}

// WithVectorFloat sets whether scalar floats live in the Vector class.
func WithVectorFloat(v bool) Option {
	return func(t *Target) { t.vectorFloat = v }
}

// WithMaxOperands overrides the default max-operand count.
func WithMaxOperands(n int) Option {
	return func(t *Target) { t.maxOperands = n }
}

// New constructs a Target. Defaults (spec §8 scenario 5's "target with
// 13 GP and 16 vector registers"): 13 general-purpose registers (8
// caller-saved, 5 callee-saved), 16 vector registers (8/8 split), 8
// predicate registers (all caller-saved), 4 max operands, floats in
// the vector class (WithVectorFloat(false) places them in the
// general-purpose class instead).
func New(opts ...Option) *Target {
	t := &Target{
		maxOperands:  4,
		encodingSize: 4,
		counts:       map[target.RegisterClass]int{target.GeneralPurpose: 13, target.Vector: 16, target.Predicate: 8},
		callerSplit:  map[target.RegisterClass]int{target.GeneralPurpose: 8, target.Vector: 8, target.Predicate: 8},
		spillCost:    make(map[target.Register]uint32),
		vectorFloat:  true,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Target) MaxOperands() int  { return t.maxOperands }
func (t *Target) EncodingSize() int { return t.encodingSize }

func (t *Target) Count(cls target.RegisterClass) int { return t.counts[cls] }

func (t *Target) CallerSaved(cls target.RegisterClass) []target.Register {
	n := t.callerSplit[cls]
	regs := make([]target.Register, 0, n)
	for i := 0; i < n; i++ {
		regs = append(regs, target.Register(i))
	}
	return regs
}

func (t *Target) CalleeSaved(cls target.RegisterClass) []target.Register {
	total := t.counts[cls]
	start := t.callerSplit[cls]
	regs := make([]target.Register, 0, total-start)
	for i := start; i < total; i++ {
		regs = append(regs, target.Register(i))
	}
	return regs
}

// SpillCost returns a per-register override from the spillCost map if
// one is present, else a uniform default of 1. New leaves the map
// empty and no Option fills it, so every register costs 1.
func (t *Target) SpillCost(reg target.Register) uint32 {
	if c, ok := t.spillCost[reg]; ok {
		return c
	}
	return 1
}

func (t *Target) UsesVectorForFloat() bool { return t.vectorFloat }
