// Package pool implements the two-pool allocation model of spec §5: a
// shared pool whose lifetime is the Module, and a local pool whose
// lifetime is a single pass batch and which is reset between batches.
// It is grounded on the reference implementation's
// include/arc/support/allocator.hpp arena allocator, adapted to Go's
// garbage collector: rather than hand-rolling bump allocation, Pool
// gives pass authors a scratch arena whose Reset() drops every
// allocation's references at once, which is the part of the arena
// contract that actually matters once GC owns the bytes.
package pool

// Pool is a simple generation-tagged scratch arena. It does not
// allocate memory itself (Go's GC already does that efficiently);
// instead it tracks objects handed out during the current generation
// so Reset can drop every reference in one step, letting the GC
// reclaim them without the caller walking the (potentially large)
// pass-local working set by hand.
type Pool struct {
	gen   int
	items []interface{}
}

// New creates an empty pool, generation 0.
func New() *Pool { return &Pool{} }

// Put registers v with the pool's current generation and returns it
// unchanged, so call sites can wrap a construction expression:
// n := pool.Put(p, ir.NewNode(...)).(*ir.Node).
func Put(p *Pool, v interface{}) interface{} {
	p.items = append(p.items, v)
	return v
}

// Reset drops every reference tracked since the last Reset (or since
// New), advancing the generation counter. Call between pass batches
// (spec §5: "The local pool is reset between pass batches").
func (p *Pool) Reset() {
	p.items = nil
	p.gen++
}

// Generation returns the number of times Reset has been called.
func (p *Pool) Generation() int { return p.gen }

// Len reports how many objects are tracked in the current generation.
func (p *Pool) Len() int { return len(p.items) }
