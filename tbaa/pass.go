package tbaa

import (
	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
)

// AnalysisPass adapts Build to the pass.Analysis contract (spec §4.1)
// so a Manager can schedule it by name and cache its Result.
type AnalysisPass struct{}

// New registers a tbaa analysis pass under the name "tbaa", the key
// every consumer (mem2reg, sroa, cse, dse, hoistexpr) requests via
// Manager.Get.
func New() *AnalysisPass { return &AnalysisPass{} }

func (p *AnalysisPass) Name() string       { return "tbaa" }
func (p *AnalysisPass) Requires() []string { return nil }

func (p *AnalysisPass) Run(m *ir.Module, mgr *pass.Manager) (pass.Result, error) {
	return Build(m), nil
}
