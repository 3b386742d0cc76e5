package store

import (
	"context"
	"sort"
	"sync"

	"docket/internal/workspace/models"
	id "docket/pkg/domain"
	"docket/pkg/platform/sentinel"
)

// Memory is a thread-safe in-memory workspace store. One mutex guards all
// tables, so a Mutation commits atomically: either every write lands or none
// does.
type Memory struct {
	mu         sync.RWMutex
	workspaces map[id.WorkspaceID]*models.Workspace
	facts      map[id.FactID]*models.Fact
	elements   map[id.ElementID]*models.MissingElement
	risks      map[id.RiskID]*models.Risk
	actions    map[id.ActionID]*models.ProposedAction
	traces     map[id.WorkspaceID][]*models.TraceEntry
}

func NewMemory() *Memory {
	return &Memory{
		workspaces: make(map[id.WorkspaceID]*models.Workspace),
		facts:      make(map[id.FactID]*models.Fact),
		elements:   make(map[id.ElementID]*models.MissingElement),
		risks:      make(map[id.RiskID]*models.Risk),
		actions:    make(map[id.ActionID]*models.ProposedAction),
		traces:     make(map[id.WorkspaceID][]*models.TraceEntry),
	}
}

// InTx mirrors the SQL store's rollback: writes fn made through this store are
// discarded when fn fails. Assumes no concurrent writers while fn runs, which
// holds for the unit-test and local setups this store serves.
func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := m.snapshot()
	if err := fn(ctx); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	workspaces map[id.WorkspaceID]*models.Workspace
	facts      map[id.FactID]*models.Fact
	elements   map[id.ElementID]*models.MissingElement
	risks      map[id.RiskID]*models.Risk
	actions    map[id.ActionID]*models.ProposedAction
	traces     map[id.WorkspaceID][]*models.TraceEntry
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memorySnapshot{
		workspaces: make(map[id.WorkspaceID]*models.Workspace, len(m.workspaces)),
		facts:      make(map[id.FactID]*models.Fact, len(m.facts)),
		elements:   make(map[id.ElementID]*models.MissingElement, len(m.elements)),
		risks:      make(map[id.RiskID]*models.Risk, len(m.risks)),
		actions:    make(map[id.ActionID]*models.ProposedAction, len(m.actions)),
		traces:     make(map[id.WorkspaceID][]*models.TraceEntry, len(m.traces)),
	}
	for k, v := range m.workspaces {
		snap.workspaces[k] = v
	}
	for k, v := range m.facts {
		snap.facts[k] = v
	}
	for k, v := range m.elements {
		snap.elements[k] = v
	}
	for k, v := range m.risks {
		snap.risks[k] = v
	}
	for k, v := range m.actions {
		snap.actions[k] = v
	}
	for k, v := range m.traces {
		snap.traces[k] = append([]*models.TraceEntry(nil), v...)
	}
	return snap
}

func (m *Memory) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workspaces = snap.workspaces
	m.facts = snap.facts
	m.elements = snap.elements
	m.risks = snap.risks
	m.actions = snap.actions
	m.traces = snap.traces
}

// Create stores a new workspace together with its creation trace.
func (m *Memory) Create(ctx context.Context, ws *models.Workspace, trace *models.TraceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workspaces[ws.ID]; ok {
		return sentinel.ErrConflict
	}
	stored := *ws
	m.workspaces[ws.ID] = &stored
	t := *trace
	m.traces[ws.ID] = append(m.traces[ws.ID], &t)
	return nil
}

func (m *Memory) FindByID(ctx context.Context, wsID id.WorkspaceID) (*models.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[wsID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *ws
	return &out, nil
}

// Apply commits one mutation atomically. Returns sentinel.ErrConflict when
// the stored workspace version differs from ExpectedVersion.
func (m *Memory) Apply(ctx context.Context, mut Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.workspaces[mut.Workspace.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != mut.ExpectedVersion {
		return sentinel.ErrConflict
	}

	ws := *mut.Workspace
	m.workspaces[ws.ID] = &ws

	if mut.NewFact != nil {
		f := *mut.NewFact
		m.facts[f.ID] = &f
	}
	if mut.NewElement != nil {
		e := *mut.NewElement
		m.elements[e.ID] = &e
	}
	if mut.ResolvedElement != nil {
		e := *mut.ResolvedElement
		m.elements[e.ID] = &e
	}
	if mut.NewRisk != nil {
		r := *mut.NewRisk
		m.risks[r.ID] = &r
	}
	if mut.NewAction != nil {
		a := *mut.NewAction
		m.actions[a.ID] = &a
	}
	if mut.ExecutedAction != nil {
		a := *mut.ExecutedAction
		m.actions[a.ID] = &a
	}

	t := *mut.Trace
	m.traces[ws.ID] = append(m.traces[ws.ID], &t)
	return nil
}

func (m *Memory) FindElement(ctx context.Context, elementID id.ElementID) (*models.MissingElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.elements[elementID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (m *Memory) FindAction(ctx context.Context, actionID id.ActionID) (*models.ProposedAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.actions[actionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (m *Memory) ListFacts(ctx context.Context, wsID id.WorkspaceID) ([]*models.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Fact, 0)
	for _, f := range m.facts {
		if f.WorkspaceID == wsID {
			fact := *f
			out = append(out, &fact)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *Memory) ListElements(ctx context.Context, wsID id.WorkspaceID) ([]*models.MissingElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.MissingElement, 0)
	for _, e := range m.elements {
		if e.WorkspaceID == wsID {
			element := *e
			out = append(out, &element)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *Memory) ListRisks(ctx context.Context, wsID id.WorkspaceID) ([]*models.Risk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Risk, 0)
	for _, r := range m.risks {
		if r.WorkspaceID == wsID {
			risk := *r
			out = append(out, &risk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *Memory) ListActions(ctx context.Context, wsID id.WorkspaceID) ([]*models.ProposedAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ProposedAction, 0)
	for _, a := range m.actions {
		if a.WorkspaceID == wsID {
			action := *a
			out = append(out, &action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.Before(out[j].ProposedAt) })
	return out, nil
}

func (m *Memory) ListTraces(ctx context.Context, wsID id.WorkspaceID) ([]*models.TraceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.traces[wsID]
	out := make([]*models.TraceEntry, 0, len(stored))
	for _, t := range stored {
		trace := *t
		out = append(out, &trace)
	}
	return out, nil
}
