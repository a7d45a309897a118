package pass

import (
	"sync"

	"github.com/arclang/arc/ir"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Pass-contract errors (spec §7.2).
var (
	ErrMissingDependency = xerrors.New("pass: required dependency is not registered")
	ErrMissingAnalysis   = xerrors.New("pass: analysis result not computed")
	ErrNullResult        = xerrors.New("pass: analysis produced a nil result")
	ErrUnknownPass       = xerrors.New("pass: no pass registered under this name")
	ErrCycle             = xerrors.New("pass: dependency graph contains a cycle")
)

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger attaches an optional structured logger; nil (the
// default) disables all tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithWorkers caps the number of goroutines a parallel batch may use;
// 0 (the default) means unbounded (errgroup.SetLimit is not called).
func WithWorkers(n int) Option {
	return func(m *Manager) { m.workers = n }
}

// Manager is the PassManager of spec §4.1: a name->Pass registry, a
// result cache guarded by a reader/writer lock (spec §5, "Shared
// mutable state"), and the pass-name->result-name mapping that
// invalidation clears alongside a dropped result. Get looks results
// up by result name directly.
type Manager struct {
	log     logrus.FieldLogger
	workers int

	passes    map[string]Pass
	order     []string // insertion order, for Sequential()

	mu       sync.RWMutex
	results  map[string]Result // analysis-name -> cached result
	produces map[string]string // pass-name -> result-name
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		passes:   make(map[string]Pass),
		results:  make(map[string]Result),
		produces: make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Add registers p in insertion order (spec §4.1, "Imperative" mode).
func (m *Manager) Add(p Pass) {
	m.passes[p.Name()] = p
	m.order = append(m.order, p.Name())
}

// checkDeps validates that every dependency of p is itself registered
// (spec §4.1, "Dependency validation"). It does not check that a
// required analysis's result is already cached; Get reports a missing
// result with ErrMissingAnalysis.
func (m *Manager) checkDeps(p Pass) error {
	for _, dep := range p.Requires() {
		if _, ok := m.passes[dep]; !ok {
			return xerrors.Errorf("pass %q requires %q: %w", p.Name(), dep, ErrMissingDependency)
		}
	}
	return nil
}

func (m *Manager) trace(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Debugf(format, args...)
	}
}

// runOne executes a single pass, storing an Analysis's result in the
// cache (writer lock) or running a Transform and invalidating the
// analyses it declares (spec §4.1, "Invalidation").
func (m *Manager) runOne(mod *ir.Module, p Pass) error {
	if err := m.checkDeps(p); err != nil {
		return err
	}
	switch pp := p.(type) {
	case Analysis:
		res, err := pp.Run(mod, m)
		if err != nil {
			return xerrors.Errorf("analysis %q: %w", p.Name(), err)
		}
		if res == nil {
			return xerrors.Errorf("analysis %q: %w", p.Name(), ErrNullResult)
		}
		m.mu.Lock()
		m.results[res.Name()] = res
		m.produces[p.Name()] = res.Name()
		m.mu.Unlock()
		m.trace("analysis %s -> result %s", p.Name(), res.Name())
	case Transform:
		modified, err := pp.Run(mod, m)
		if err != nil {
			return xerrors.Errorf("transform %q: %w", p.Name(), err)
		}
		m.invalidate(pp.Invalidates(), modified)
		m.trace("transform %s modified %d region(s)", p.Name(), len(modified))
	default:
		return xerrors.Errorf("pass %q is neither Analysis nor Transform", p.Name())
	}
	return nil
}

// invalidate implements spec §4.1's invalidation rule: for every
// analysis name a Transform declares invalidated, call its cached
// result's Update(modified); false means drop the cache entry (and
// the pass->result mapping that produced it).
func (m *Manager) invalidate(names []string, modified []*ir.Region) {
	if len(names) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		res, ok := m.results[name]
		if !ok {
			continue
		}
		if !res.Update(modified) {
			delete(m.results, name)
			for passName, resultName := range m.produces {
				if resultName == name {
					delete(m.produces, passName)
				}
			}
		}
	}
}

// Sequential runs every registered pass once, in registration order
// (spec §4.1, mode 1).
func (m *Manager) Sequential(mod *ir.Module) error {
	for _, name := range m.order {
		if err := m.runOne(mod, m.passes[name]); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves the cached result for analysisName under the reader
// lock (spec §5). It fails with ErrMissingAnalysis if nothing has
// produced that result yet.
func (m *Manager) Get(analysisName string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[analysisName]
	if !ok {
		return nil, xerrors.Errorf("%q: %w", analysisName, ErrMissingAnalysis)
	}
	return res, nil
}

// MustGet is a convenience wrapper for callers (typically other
// passes) that treat a missing analysis as a programming error.
func (m *Manager) MustGet(analysisName string) Result {
	res, err := m.Get(analysisName)
	if err != nil {
		panic(err)
	}
	return res
}
