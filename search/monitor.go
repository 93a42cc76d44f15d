package search

import (
	"github.com/poiesic/curata/core"
)

// Recall sources reported to SearchMonitor.AfterRecall.
const (
	SourceVector  = "vector"
	SourceKeyword = "keyword"
)

// SearchMonitor provides hooks to observe the pipeline.
// Implement this interface to track intermediate candidates during a request.
type SearchMonitor interface {
	Start(req Request)
	AfterRecall(source string, candidates []core.Candidate)
	AfterFusion(candidates []core.Candidate)
	AfterFilter(kept []core.Candidate, filtered int)
	Finish(result *core.RankedResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                          {}
func (n *noopMonitor) AfterRecall(_ string, _ []core.Candidate) {}
func (n *noopMonitor) AfterFusion(_ []core.Candidate)           {}
func (n *noopMonitor) AfterFilter(_ []core.Candidate, _ int)    {}
func (n *noopMonitor) Finish(_ *core.RankedResult)              {}
