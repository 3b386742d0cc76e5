// Package store provides persistence for reasoning workspaces. Every mutating
// write pairs the primary change with its trace entry in one atomic unit, so
// the trace is always a complete narration of workspace history.
package store

import (
	"docket/internal/workspace/models"
)

// Mutation is one atomic workspace change: the updated workspace row, at most
// one child write, and exactly one trace entry. ExpectedVersion is the
// version the change was computed from; implementations must reject the whole
// mutation with sentinel.ErrConflict when the stored version differs, which
// serializes concurrent mutations per workspace.
type Mutation struct {
	Workspace       *models.Workspace
	ExpectedVersion int64

	NewFact         *models.Fact
	NewElement      *models.MissingElement
	ResolvedElement *models.MissingElement
	NewRisk         *models.Risk
	NewAction       *models.ProposedAction
	ExecutedAction  *models.ProposedAction

	Trace *models.TraceEntry
}
