package search

import "github.com/poiesic/memvault/core"

// SearchMonitor provides hooks to observe a semantic search.
type SearchMonitor interface {
	Start(userID core.ID, query []float32)
	AfterCandidateSelection(ids []core.ID)
	AfterScoring(results []*Result)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.ID, _ []float32)        {}
func (n *noopMonitor) AfterCandidateSelection(_ []core.ID) {}
func (n *noopMonitor) AfterScoring(_ []*Result)            {}
func (n *noopMonitor) Finish(_ []*Result)                  {}
