package callgraph

import (
	"github.com/arclang/arc/ir"
	"github.com/arclang/arc/pass"
)

// AnalysisPass adapts Build to the pass.Analysis contract (spec §4.1).
type AnalysisPass struct{}

// New registers a call-graph analysis pass under the name "callgraph".
func New() *AnalysisPass { return &AnalysisPass{} }

func (p *AnalysisPass) Name() string       { return "callgraph" }
func (p *AnalysisPass) Requires() []string { return nil }

func (p *AnalysisPass) Run(m *ir.Module, mgr *pass.Manager) (pass.Result, error) {
	return Build(m), nil
}
